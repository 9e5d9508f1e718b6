package membership

import (
	"sync"
	"time"

	"gossipnet/internal/wire"
)

// Table is a concurrent map of peer address to last-seen time. It is
// shared by every engine loop, so all access is internally synchronized.
type Table struct {
	mu       sync.RWMutex
	lastSeen map[wire.Address]time.Time
	now      func() time.Time
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		lastSeen: make(map[wire.Address]time.Time),
		now:      time.Now,
	}
}

// Observe records or refreshes the last-seen time for addr.
func (t *Table) Observe(addr wire.Address) {
	t.ObserveAt(addr, t.now())
}

// ObserveAt records addr as seen at the given time. Mostly a test seam;
// Observe is the normal path.
func (t *Table) ObserveAt(addr wire.Address, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[addr] = at
}

// Live returns the addresses seen within threshold of now. Stale entries
// stay in the table but are excluded here.
func (t *Table) Live(threshold time.Duration) []wire.Address {
	cutoff := t.now().Add(-threshold)

	t.mu.RLock()
	defer t.mu.RUnlock()

	live := make([]wire.Address, 0, len(t.lastSeen))
	for addr, seen := range t.lastSeen {
		if !seen.Before(cutoff) {
			live = append(live, addr)
		}
	}
	return live
}

// All returns every address ever observed, live or stale.
func (t *Table) All() []wire.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]wire.Address, 0, len(t.lastSeen))
	for addr := range t.lastSeen {
		all = append(all, addr)
	}
	return all
}

// LastSeen returns the recorded time for addr, if any.
func (t *Table) LastSeen(addr wire.Address) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen, ok := t.lastSeen[addr]
	return seen, ok
}

// Len returns the number of addresses in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lastSeen)
}
