// Package registry implements the rendezvous service: a TCP listener
// that onboards nodes with a line-oriented prompt session, hands each
// one a bounded random subset of the directory, and drives the run and
// drain windows that end with a UDP stop broadcast and report
// collection.
package registry
