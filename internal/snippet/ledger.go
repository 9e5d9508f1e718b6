package snippet

import (
	"container/heap"
	"fmt"
	"sync"

	"gossipnet/internal/wire"
)

// Snippet is a disseminated message. Immutable once constructed; the
// ordering key is Timestamp with Origin as a deterministic tie-break.
type Snippet struct {
	Timestamp int
	Content   string
	Origin    wire.Address
}

// String renders the snippet in the report's line format.
func (s Snippet) String() string {
	return fmt.Sprintf("%d %s %s", s.Timestamp, s.Content, s.Origin)
}

// Less orders snippets by timestamp, then by origin address. Equal
// Lamport timestamps have no causal order; the origin tie-break just
// makes drain output deterministic.
func Less(a, b Snippet) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Origin.String() < b.Origin.String()
}

// Ledger is a concurrent min-ordered buffer of snippets. Admission does
// not deduplicate: a snippet re-delivered by gossip is admitted again.
type Ledger struct {
	mu sync.Mutex
	h  snippetHeap
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Admit inserts a snippet.
func (l *Ledger) Admit(s Snippet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	heap.Push(&l.h, s)
}

// Pop removes and returns the smallest snippet, or false if the ledger
// is empty.
func (l *Ledger) Pop() (Snippet, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.h.Len() == 0 {
		return Snippet{}, false
	}
	return heap.Pop(&l.h).(Snippet), true
}

// DrainOrdered removes and returns every snippet in ascending timestamp
// order. Destructive: a second call only sees snippets admitted since
// the first.
func (l *Ledger) DrainOrdered() []Snippet {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Snippet, 0, l.h.Len())
	for l.h.Len() > 0 {
		out = append(out, heap.Pop(&l.h).(Snippet))
	}
	return out
}

// Len returns the number of buffered snippets.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.Len()
}

type snippetHeap []Snippet

func (h snippetHeap) Len() int            { return len(h) }
func (h snippetHeap) Less(i, j int) bool  { return Less(h[i], h[j]) }
func (h snippetHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *snippetHeap) Push(x interface{}) { *h = append(*h, x.(Snippet)) }

func (h *snippetHeap) Pop() interface{} {
	old := *h
	n := len(old)
	s := old[n-1]
	*h = old[:n-1]
	return s
}
