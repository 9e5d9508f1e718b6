package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gossipnet/internal/clock"
	"gossipnet/internal/membership"
	"gossipnet/internal/report"
	"gossipnet/internal/snippet"
	"gossipnet/internal/telemetry"
	"gossipnet/internal/transport"
	"gossipnet/internal/wire"
)

// Transport is the datagram channel the engine gossips over.
type Transport interface {
	SendTo(addr wire.Address, m wire.Message) error
	Receive(timeout time.Duration) (wire.Message, wire.Address, error)
}

// Config carries the engine tunables.
type Config struct {
	// Identity is the team name sent inside acks.
	Identity string
	// Self is the address other peers reach this node at; authored
	// snippets carry it as their origin.
	Self wire.Address
	// FanoutInterval paces the peer-rebroadcast loop.
	FanoutInterval time.Duration
	// LivenessWindow bounds how stale a peer may be and still receive
	// fan-out.
	LivenessWindow time.Duration
	// ReceiveTimeout bounds each blocking receive during normal
	// operation so the loop stays responsive to cancellation.
	ReceiveTimeout time.Duration
	// AckReceiveTimeout replaces ReceiveTimeout once a stop arrives.
	AckReceiveTimeout time.Duration
	// DisplayInterval paces the delivery loop's ledger poll.
	DisplayInterval time.Duration
}

// Engine orchestrates the gossip loops over the shared structures.
type Engine struct {
	cfg     Config
	log     *zap.Logger
	tr      Transport
	table   *membership.Table
	clk     *clock.Lamport
	pending *snippet.Ledger
	archive *snippet.Ledger
	rep     *report.Builder
	input   io.Reader
	display io.Writer
	coord   *Coordinator
}

// New wires an engine over the shared structures. The input reader is
// the source of locally authored snippet content, one per line; display
// receives delivered snippets.
func New(cfg Config, logger *zap.Logger, tr Transport, table *membership.Table,
	clk *clock.Lamport, pending, archive *snippet.Ledger, rep *report.Builder,
	input io.Reader, display io.Writer) *Engine {
	if cfg.DisplayInterval <= 0 {
		cfg.DisplayInterval = 250 * time.Millisecond
	}
	return &Engine{
		cfg:     cfg,
		log:     logger,
		tr:      tr,
		table:   table,
		clk:     clk,
		pending: pending,
		archive: archive,
		rep:     rep,
		input:   input,
		display: display,
		coord:   NewCoordinator(cfg.Identity, logger),
	}
}

// Coordinator exposes the shutdown state machine.
func (e *Engine) Coordinator() *Coordinator {
	return e.coord
}

// Stopped is closed once the stop handshake has fired.
func (e *Engine) Stopped() <-chan struct{} {
	return e.coord.Stopped()
}

// Run starts the loops and blocks until the context is cancelled and
// every loop has exited. The receive loop outlives the stop handshake on
// purpose: it answers duplicate stops until cancellation.
func (e *Engine) Run(ctx context.Context) {
	lines := make(chan string, 16)
	go e.readInput(lines)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); e.rebroadcastLoop(ctx) }()
	go func() { defer wg.Done(); e.receiveLoop(ctx) }()
	go func() { defer wg.Done(); e.sendLoop(ctx, lines) }()
	go func() { defer wg.Done(); e.displayLoop(ctx) }()
	wg.Wait()

	e.coord.Drain()
}

// readInput feeds authored lines into the send loop. It exits on EOF;
// the channel close tells the send loop the input source is gone.
func (e *Engine) readInput(lines chan<- string) {
	defer close(lines)
	if e.input == nil {
		return
	}
	sc := bufio.NewScanner(e.input)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		lines <- line
	}
}

// rebroadcastLoop is the anti-entropy step: every interval, announce
// each live peer to every other live peer. This is what grows a node's
// bootstrap subset toward global membership knowledge.
func (e *Engine) rebroadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FanoutInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.coord.Stopped():
			return
		case <-ticker.C:
			e.fanout()
		}
	}
}

func (e *Engine) fanout() {
	live := e.table.Live(e.cfg.LivenessWindow)
	telemetry.LivePeers.Set(float64(len(live)))

	// Announcing ourselves first is the heartbeat that keeps this node
	// live in its peers' tables.
	announce := append([]wire.Address{e.cfg.Self}, live...)
	for _, announced := range announce {
		m := wire.PeerMessage(announced)
		for _, to := range live {
			if to == announced || to == e.cfg.Self {
				continue
			}
			if err := e.tr.SendTo(to, m); err != nil {
				e.log.Warn("peer fan-out send failed",
					zap.String("to", to.String()), zap.Error(err))
				continue
			}
			e.rep.RecordPeerSent(to, announced, time.Now())
		}
	}
}

// receiveLoop dispatches inbound datagrams. It is the only loop that
// runs past the stop handshake: in the acking phase it ignores the data
// plane and answers stops, bounded by the process context.
func (e *Engine) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		timeout := e.cfg.ReceiveTimeout
		acking := e.coord.State() != Running
		if acking {
			timeout = e.cfg.AckReceiveTimeout
		}

		m, from, err := e.tr.Receive(timeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			e.log.Warn("receive failed", zap.Error(err))
			continue
		}

		if m.Type == wire.Stop {
			ack, first := e.coord.HandleStop()
			if err := e.tr.SendTo(from, ack); err != nil {
				e.log.Warn("ack send failed",
					zap.String("to", from.String()), zap.Error(err))
			}
			if first {
				e.log.Info("acknowledged stop", zap.String("to", from.String()))
			}
			continue
		}

		if acking {
			// Data plane is down; only stops matter now.
			continue
		}

		switch m.Type {
		case wire.Peer:
			e.observe(from)
			e.observe(m.Addr)
			e.rep.RecordPeerReceived(from, m.Addr, time.Now())
		case wire.Snip:
			e.clk.Merge(m.Timestamp)
			e.observe(from)
			e.pending.Admit(snippet.Snippet{
				Timestamp: m.Timestamp,
				Content:   m.Content,
				Origin:    from,
			})
		case wire.Ack:
			// Acks belong to the registry's stop broadcast socket; a
			// stray one here is harmless.
		case wire.Unknown:
			// Counted and logged by the transport; fail-open drop.
		}
	}
}

// sendLoop disseminates authored content: tick the clock, build a snip,
// send it to every live peer. No backpressure: overload is the kernel's
// problem on a best-effort transport.
func (e *Engine) sendLoop(ctx context.Context, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.coord.Stopped():
			return
		case line, ok := <-lines:
			if !ok {
				// Input exhausted; nothing left to author.
				lines = nil
				continue
			}
			e.author(line)
		}
	}
}

// observe records a sighting, never of ourselves: the table holds
// remote peers only.
func (e *Engine) observe(addr wire.Address) {
	if addr == e.cfg.Self {
		return
	}
	e.table.Observe(addr)
}

func (e *Engine) author(content string) {
	ts := e.clk.Tick()
	m := wire.SnipMessage(ts, content)

	for _, to := range e.table.Live(e.cfg.LivenessWindow) {
		if to == e.cfg.Self {
			continue
		}
		if err := e.tr.SendTo(to, m); err != nil {
			e.log.Warn("snippet send failed",
				zap.String("to", to.String()), zap.Error(err))
		}
	}

	// The author sees its own snippet too.
	e.pending.Admit(snippet.Snippet{Timestamp: ts, Content: content, Origin: e.cfg.Self})
}

// displayLoop delivers pending snippets in timestamp order and retains
// them in the all-time archive for the final report.
func (e *Engine) displayLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.DisplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.deliverPending()
			return
		case <-e.coord.Stopped():
			e.deliverPending()
			return
		case <-ticker.C:
			e.deliverPending()
		}
	}
}

func (e *Engine) deliverPending() {
	for {
		s, ok := e.pending.Pop()
		if !ok {
			return
		}
		e.archive.Admit(s)
		telemetry.SnippetsDelivered.Inc()
		if e.display != nil {
			fmt.Fprintf(e.display, "%s\n", s)
		}
	}
}
