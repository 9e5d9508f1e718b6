// Package node wires one gossip participant together: the UDP
// transport, the registry onboarding session, the engine loops, and
// the final report delivery after shutdown.
package node

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gossipnet/internal/clock"
	"gossipnet/internal/config"
	"gossipnet/internal/engine"
	"gossipnet/internal/membership"
	"gossipnet/internal/regclient"
	"gossipnet/internal/report"
	"gossipnet/internal/snippet"
	"gossipnet/internal/transport"
	"gossipnet/internal/wire"
)

// Node is one gossip participant.
type Node struct {
	cfg config.Peer
	log *zap.Logger

	table   *membership.Table
	clk     *clock.Lamport
	pending *snippet.Ledger
	archive *snippet.Ledger
	rep     *report.Builder

	// self is the advertised UDP endpoint, set once the socket binds.
	self wire.Address
}

func New(cfg config.Peer, logger *zap.Logger) *Node {
	return &Node{
		cfg:     cfg,
		log:     logger.Named("node"),
		table:   membership.NewTable(),
		clk:     clock.New(),
		pending: snippet.NewLedger(),
		archive: snippet.NewLedger(),
		rep:     report.NewBuilder(),
	}
}

// Run executes the node's full lifetime: bind the gossip socket,
// onboard with the registry, gossip until the stop handshake or
// cancellation, deliver the report, then linger as an ack responder
// before exiting. Input supplies locally authored snippet content, one
// per line; display receives delivered snippets.
func (n *Node) Run(ctx context.Context, input io.Reader, display io.Writer) error {
	udp, err := transport.Listen(n.cfg.UDPPort, n.log)
	if err != nil {
		return errors.Wrap(err, "bind gossip socket")
	}
	defer udp.Close()

	n.self = wire.Address{Host: n.cfg.AdvertiseHost, Port: udp.Port()}
	n.log.Info("gossip socket bound", zap.Stringer("self", n.self))

	rc := regclient.New(regclient.Config{
		RegistryAddr: n.cfg.RegistryAddr,
		TeamName:     n.cfg.TeamName,
		Location:     n.self,
		CodePath:     n.cfg.CodePath,
	}, n.log)

	if err := n.onboard(ctx, rc); err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		Identity:          n.cfg.TeamName,
		Self:              n.self,
		FanoutInterval:    n.cfg.FanoutInterval.Std(),
		LivenessWindow:    n.cfg.LivenessWindow.Std(),
		ReceiveTimeout:    n.cfg.ReceiveTimeout.Std(),
		AckReceiveTimeout: n.cfg.AckReceiveTimeout.Std(),
		DisplayInterval:   n.cfg.InputPollInterval.Std(),
	}, n.log, udp, n.table, n.clk, n.pending, n.archive, n.rep, input, display)

	engCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	engDone := make(chan struct{})
	go func() {
		defer close(engDone)
		eng.Run(engCtx)
	}()

	select {
	case <-ctx.Done():
		<-engDone
		return ctx.Err()
	case <-eng.Stopped():
	}
	n.log.Info("stop handshake fired, delivering report")

	// The drain session hands the registry the final report. The engine
	// keeps answering duplicate stops in the background until we cancel.
	if err := n.deliverReport(ctx, rc); err != nil {
		n.log.Warn("report delivery failed", zap.Error(err))
	}

	linger := time.NewTimer(n.cfg.DrainLinger.Std())
	defer linger.Stop()
	select {
	case <-ctx.Done():
	case <-linger.C:
	}
	cancel()
	<-engDone
	return nil
}

// onboard runs the startup session and seeds the membership table with
// the subset the registry handed out.
func (n *Node) onboard(ctx context.Context, rc *regclient.Client) error {
	res, err := rc.Session(ctx, n.renderReport)
	if err != nil {
		return errors.Wrap(err, "registry onboarding")
	}
	for _, seed := range res.Seeds {
		if seed == n.self {
			continue
		}
		n.table.Observe(seed)
	}
	source := report.Source{ReceivedAt: res.SeedsReceivedAt, Peers: res.Seeds}
	if addr, err := wire.ParseAddress(n.cfg.RegistryAddr); err == nil {
		source.Addr = addr
	}
	n.rep.AddSource(source)
	n.log.Info("onboarded", zap.Int("seeds", len(res.Seeds)))
	return nil
}

func (n *Node) deliverReport(ctx context.Context, rc *regclient.Client) error {
	_, err := rc.Session(ctx, n.renderReport)
	return err
}

// renderReport serializes the report from the node's current state.
// The archive drain is destructive, so the report can only be rendered
// once with content; the registry requests it once per session.
func (n *Node) renderReport() string {
	return n.rep.Render(n.table.All(), n.archive.DrainOrdered())
}
