// Package clock provides a Lamport logical clock for ordering snippets
// across an unreliable transport. The counter advances locally on every
// authored message and merges via max on every received timestamp,
// giving a partial happened-before order without synchronized wall
// clocks.
package clock
