package clock

import "sync"

// Lamport is a monotonically advancing logical counter. All methods are
// safe for concurrent use; the gossip loops share one instance.
type Lamport struct {
	mu      sync.Mutex
	counter int
}

// New creates a clock starting at zero.
func New() *Lamport {
	return &Lamport{}
}

// Tick advances the counter and returns the new value. Called when
// authoring a new snippet.
func (c *Lamport) Tick() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// Merge raises the counter to remote if remote is ahead and returns the
// resulting value. Merge is a max, not an addition: merging the same
// remote value twice leaves the counter unchanged.
func (c *Lamport) Merge(remote int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.counter {
		c.counter = remote
	}
	return c.counter
}

// Now returns the current counter without advancing it.
func (c *Lamport) Now() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}
