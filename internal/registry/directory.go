package registry

import (
	"math/rand"
	"sync"
	"time"

	"gossipnet/internal/telemetry"
	"gossipnet/internal/wire"
)

type entry struct {
	addr wire.Address
	// cached is the subset handed to this node before. A node that
	// registers again inherits it so its seed view stays stable across
	// reconnects.
	cached []wire.Address
}

// Directory is the registry's view of registered nodes, keyed by team
// identity. Re-registration under the same identity replaces the
// address but keeps the cached subset. Entries survive until the drain
// window resets the run.
type Directory struct {
	mu         sync.Mutex
	rng        *rand.Rand
	subsetSize int
	entries    map[string]*entry
}

func NewDirectory(subsetSize int) *Directory {
	return &Directory{
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		subsetSize: subsetSize,
		entries:    make(map[string]*entry),
	}
}

// Register upserts a node under its team identity.
func (d *Directory) Register(team string, addr wire.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[team]
	if !ok {
		e = &entry{}
		d.entries[team] = e
		telemetry.RegisteredPeers.Set(float64(len(d.entries)))
	}
	e.addr = addr
}

// SubsetFor returns the seed list for the given team: the cached subset
// when it is still a full draw, a fresh bounded random draw otherwise.
// The fresh draw is cached when the team is registered.
func (d *Directory) SubsetFor(team string) []wire.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entries[team]
	if e != nil && len(e.cached) >= d.subsetSize {
		return append([]wire.Address(nil), e.cached...)
	}
	subset := d.drawLocked(d.subsetSize)
	if e != nil {
		e.cached = subset
	}
	return append([]wire.Address(nil), subset...)
}

// RandomSubset draws up to n registered addresses uniformly: everyone
// when the directory holds n or fewer, an unbiased shuffle's prefix
// otherwise.
func (d *Directory) RandomSubset(n int) []wire.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drawLocked(n)
}

func (d *Directory) drawLocked(n int) []wire.Address {
	all := make([]wire.Address, 0, len(d.entries))
	for _, e := range d.entries {
		all = append(all, e.addr)
	}
	d.rng.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Addresses returns every registered node's current address.
func (d *Directory) Addresses() []wire.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	all := make([]wire.Address, 0, len(d.entries))
	for _, e := range d.entries {
		all = append(all, e.addr)
	}
	return all
}

// Clear empties the directory at the end of a drain window.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]*entry)
	telemetry.RegisteredPeers.Set(0)
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
