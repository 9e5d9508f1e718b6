package engine

import (
	"sync"

	"go.uber.org/zap"

	"gossipnet/internal/wire"
)

// State is the shutdown coordinator's phase.
type State int

const (
	// Running is normal operation: all loops active.
	Running State = iota
	// Acking: a stop arrived, the data plane is winding down, and every
	// further stop is answered with an ack because the registry cannot
	// know whether its stop or our ack was lost.
	Acking
	// Draining is terminal: the process is exiting.
	Draining
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Acking:
		return "acking"
	case Draining:
		return "draining"
	default:
		return "invalid"
	}
}

// Coordinator is the node-side stop/ack state machine. It decides the
// transitions; the engine's receive loop does the actual sending.
type Coordinator struct {
	mu       sync.Mutex
	state    State
	identity string
	log      *zap.Logger
	stopped  chan struct{}
}

// NewCoordinator creates a coordinator in the Running state.
func NewCoordinator(identity string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		identity: identity,
		log:      logger,
		stopped:  make(chan struct{}),
	}
}

// State returns the current phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stopped is closed once the first stop arrives. The rebroadcast, send,
// and display loops select on it to cease scheduling further work.
func (c *Coordinator) Stopped() <-chan struct{} {
	return c.stopped
}

// HandleStop processes one inbound stop and returns the ack to send to
// its sender. Every stop gets exactly one ack, duplicates included;
// first reports whether this was the stop that ended normal operation.
func (c *Coordinator) HandleStop() (ack wire.Message, first bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Running {
		c.state = Acking
		close(c.stopped)
		first = true
		c.log.Info("stop received, leaving the gossip data plane")
	}
	return wire.AckMessage(c.identity), first
}

// Drain marks the terminal state at process shutdown.
func (c *Coordinator) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Running {
		// Process exit without a stop handshake still closes the
		// channel so nothing waits forever.
		close(c.stopped)
	}
	c.state = Draining
}
