package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gossipnet/internal/clock"
	"gossipnet/internal/membership"
	"gossipnet/internal/report"
	"gossipnet/internal/snippet"
	"gossipnet/internal/transport"
	"gossipnet/internal/wire"
)

// fakeTransport feeds the receive loop from a channel and records sends.
type fakeTransport struct {
	mu    sync.Mutex
	inbox chan inboundMsg
	sent  []sentMsg
}

type inboundMsg struct {
	m    wire.Message
	from wire.Address
}

type sentMsg struct {
	m  wire.Message
	to wire.Address
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan inboundMsg, 64)}
}

func (f *fakeTransport) SendTo(addr wire.Address, m wire.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMsg{m: m, to: addr})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Receive(timeout time.Duration) (wire.Message, wire.Address, error) {
	select {
	case in := <-f.inbox:
		return in.m, in.from, nil
	case <-time.After(timeout):
		return wire.Message{}, wire.Address{}, transport.ErrTimeout
	}
}

func (f *fakeTransport) sentOfType(t wire.MsgType) []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMsg
	for _, s := range f.sent {
		if s.m.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func newTestEngine(t *testing.T, tr Transport, input string) (*Engine, *membership.Table, *clock.Lamport, *snippet.Ledger, *snippet.Ledger) {
	t.Helper()
	table := membership.NewTable()
	clk := clock.New()
	pending := snippet.NewLedger()
	archive := snippet.NewLedger()
	cfg := Config{
		Identity:          "team test",
		Self:              wire.Address{Host: "127.0.0.1", Port: 7000},
		FanoutInterval:    40 * time.Millisecond,
		LivenessWindow:    10 * time.Second,
		ReceiveTimeout:    20 * time.Millisecond,
		AckReceiveTimeout: 50 * time.Millisecond,
		DisplayInterval:   10 * time.Millisecond,
	}
	e := New(cfg, zaptest.NewLogger(t), tr, table, clk, pending, archive,
		report.NewBuilder(), strings.NewReader(input), nil)
	return e, table, clk, pending, archive
}

func TestEngine_PeerMessageGrowsMembership(t *testing.T) {
	tr := newFakeTransport()
	e, table, _, _, _ := newTestEngine(t, tr, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); e.Run(ctx) }()

	sender := wire.Address{Host: "10.0.0.2", Port: 9002}
	announced := wire.Address{Host: "10.0.0.3", Port: 9003}
	tr.inbox <- inboundMsg{m: wire.PeerMessage(announced), from: sender}

	require.Eventually(t, func() bool {
		return table.Len() == 2
	}, 2*time.Second, 10*time.Millisecond, "sender and announced address should both be observed")

	live := table.Live(10 * time.Second)
	assert.Contains(t, live, sender)
	assert.Contains(t, live, announced)

	cancel()
	<-done
}

func TestEngine_SnipMergesClockAndDelivers(t *testing.T) {
	tr := newFakeTransport()
	e, _, clk, _, archive := newTestEngine(t, tr, "")

	clk.Tick()
	clk.Tick() // local clock at 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); e.Run(ctx) }()

	origin := wire.Address{Host: "10.0.0.4", Port: 9004}
	tr.inbox <- inboundMsg{m: wire.SnipMessage(5, "from afar"), from: origin}

	require.Eventually(t, func() bool {
		return archive.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Next authored snippet must carry a timestamp of at least 6.
	assert.GreaterOrEqual(t, clk.Tick(), 6)

	cancel()
	<-done
}

func TestEngine_FanoutAnnouncesLivePeers(t *testing.T) {
	tr := newFakeTransport()
	e, table, _, _, _ := newTestEngine(t, tr, "")

	a := wire.Address{Host: "10.0.0.5", Port: 9005}
	b := wire.Address{Host: "10.0.0.6", Port: 9006}
	table.Observe(a)
	table.Observe(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); e.Run(ctx) }()

	// One pass announces self to a and b, a to b, and b to a.
	require.Eventually(t, func() bool {
		return len(tr.sentOfType(wire.Peer)) >= 4
	}, 2*time.Second, 10*time.Millisecond)

	self := wire.Address{Host: "127.0.0.1", Port: 7000}
	heartbeats := make(map[wire.Address]bool)
	for _, s := range tr.sentOfType(wire.Peer) {
		assert.NotEqual(t, s.to, s.m.Addr, "a peer is never announced to itself")
		assert.NotEqual(t, self, s.to, "nothing is sent to our own socket")
		if s.m.Addr == self {
			heartbeats[s.to] = true
		}
	}
	assert.True(t, heartbeats[a] && heartbeats[b], "own address is announced to every live peer")

	cancel()
	<-done
}

func TestEngine_AuthoredSnippetReachesLivePeers(t *testing.T) {
	tr := newFakeTransport()
	e, table, _, _, archive := newTestEngine(t, tr, "hello network\n")

	peer := wire.Address{Host: "10.0.0.7", Port: 9007}
	table.Observe(peer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); e.Run(ctx) }()

	require.Eventually(t, func() bool {
		snips := tr.sentOfType(wire.Snip)
		return len(snips) == 1 && snips[0].to == peer
	}, 2*time.Second, 10*time.Millisecond)

	sent := tr.sentOfType(wire.Snip)[0]
	assert.Equal(t, 1, sent.m.Timestamp)
	assert.Equal(t, "hello network", sent.m.Content)

	// The author delivers its own snippet locally too.
	require.Eventually(t, func() bool {
		return archive.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestEngine_StopYieldsOneAckPerStop(t *testing.T) {
	tr := newFakeTransport()
	e, _, _, _, _ := newTestEngine(t, tr, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); e.Run(ctx) }()

	registry := wire.Address{Host: "127.0.0.1", Port: 55921}

	// First stop: handshake fires.
	tr.inbox <- inboundMsg{m: wire.StopMessage(), from: registry}
	select {
	case <-e.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("stop handshake did not fire")
	}

	// Retransmitted stops each get their own ack.
	tr.inbox <- inboundMsg{m: wire.StopMessage(), from: registry}
	tr.inbox <- inboundMsg{m: wire.StopMessage(), from: registry}

	require.Eventually(t, func() bool {
		return len(tr.sentOfType(wire.Ack)) == 3
	}, 2*time.Second, 10*time.Millisecond, "one ack per stop, duplicates included")

	for _, s := range tr.sentOfType(wire.Ack) {
		assert.Equal(t, "team test", s.m.Identity)
		assert.Equal(t, registry, s.to)
	}

	assert.Equal(t, Acking, e.Coordinator().State())

	cancel()
	<-done
	assert.Equal(t, Draining, e.Coordinator().State())
}

func TestEngine_DataPlaneIgnoredWhileAcking(t *testing.T) {
	tr := newFakeTransport()
	e, table, _, _, archive := newTestEngine(t, tr, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); e.Run(ctx) }()

	registry := wire.Address{Host: "127.0.0.1", Port: 55921}
	tr.inbox <- inboundMsg{m: wire.StopMessage(), from: registry}
	<-e.Stopped()

	tr.inbox <- inboundMsg{
		m:    wire.SnipMessage(9, "too late"),
		from: wire.Address{Host: "10.0.0.8", Port: 9008},
	}
	tr.inbox <- inboundMsg{
		m:    wire.PeerMessage(wire.Address{Host: "10.0.0.9", Port: 9009}),
		from: wire.Address{Host: "10.0.0.8", Port: 9008},
	}

	// Give the receive loop time to drain the inbox.
	require.Eventually(t, func() bool { return len(tr.inbox) == 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, archive.Len(), "snippets after stop are not admitted")
	assert.Zero(t, table.Len(), "peers after stop are not observed")

	cancel()
	<-done
}

func TestCoordinator_Transitions(t *testing.T) {
	c := NewCoordinator("id", zaptest.NewLogger(t))
	require.Equal(t, Running, c.State())

	ack, first := c.HandleStop()
	require.True(t, first)
	require.Equal(t, wire.Ack, ack.Type)
	require.Equal(t, "id", ack.Identity)
	require.Equal(t, Acking, c.State())

	_, first = c.HandleStop()
	require.False(t, first)

	c.Drain()
	require.Equal(t, Draining, c.State())
}
