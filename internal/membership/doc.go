// Package membership tracks the addresses a node has heard from and
// when. Entries are never deleted: a peer that goes quiet past the
// liveness window is simply excluded from gossip fan-out until it is
// heard from again.
package membership
