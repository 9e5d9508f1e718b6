// Package snippet holds the user-authored messages a node has observed
// and orders them by Lamport timestamp. A node keeps two ledgers: a
// pending queue drained by the display loop and an all-time archive
// drained once for the final report.
package snippet
