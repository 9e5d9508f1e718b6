// Package engine runs a node's gossip protocol: a peer-rebroadcast loop
// that fans membership knowledge out to every live peer, a receive loop
// that dispatches inbound datagrams, and a send loop that disseminates
// locally authored snippets. The loops share the membership table, the
// Lamport clock, and the snippet ledgers, and never block on each other.
//
// Shutdown is cooperative and acknowledgment-based: the first stop
// datagram moves the coordinator out of its running state, the data
// plane winds down, and the receive loop keeps answering duplicate stops
// with acks until the process context is cancelled.
package engine
