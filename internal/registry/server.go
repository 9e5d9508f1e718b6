package registry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gossipnet/internal/config"
	"gossipnet/internal/transport"
	"gossipnet/internal/wire"
)

// Server accepts node sessions and drives the run lifecycle: a run
// window where sessions receive peer subsets, a stop broadcast, and a
// drain window where sessions deliver reports instead. After the drain
// window the directory is cleared and the next run begins.
type Server struct {
	cfg config.Registry
	log *zap.Logger
	dir *Directory

	epoch    atomic.Int64
	draining atomic.Bool
	doneCh   chan struct{}

	mu sync.Mutex
	ln net.Listener
}

func NewServer(cfg config.Registry, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		log:    logger.Named("registry"),
		dir:    NewDirectory(cfg.SubsetSize),
		doneCh: make(chan struct{}, 1),
	}
	s.epoch.Store(1)
	return s
}

// Directory exposes the registered-node view, mostly for tests.
func (s *Server) Directory() *Directory {
	return s.dir
}

// Draining reports whether the current run is collecting reports.
func (s *Server) Draining() bool {
	return s.draining.Load()
}

// Done ends the current run window early, as if the run timer fired.
// Safe to call repeatedly; extra calls within one run are dropped.
func (s *Server) Done() {
	select {
	case s.doneCh <- struct{}{}:
	default:
	}
}

// ListenAndServe binds the TCP listener and serves sessions until the
// context is cancelled. A bind failure is fatal; per-session failures
// are logged and never take the server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", s.cfg.ListenPort))
	if err != nil {
		return errors.Wrapf(err, "bind registry port %d", s.cfg.ListenPort)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	go s.lifecycle(ctx)
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	// Fixed-size session pool: the semaphore caps how many peer
	// conversations run at once.
	sem := make(chan struct{}, s.cfg.PoolSize)
	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.handleSession(conn)
		}()
	}
}

// Addr returns the bound listener address, nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// lifecycle alternates run and drain windows until cancellation. The
// operator's done signal cuts a run window short.
func (s *Server) lifecycle(ctx context.Context) {
	for {
		run := time.NewTimer(s.cfg.RunDuration.Std())
		select {
		case <-ctx.Done():
			run.Stop()
			return
		case <-s.doneCh:
			run.Stop()
			s.log.Info("run ended by operator")
		case <-run.C:
			s.log.Info("run window expired")
		}

		s.draining.Store(true)
		s.broadcastStop()

		drain := time.NewTimer(s.cfg.DrainDuration.Std())
		select {
		case <-ctx.Done():
			drain.Stop()
			return
		case <-drain.C:
		}
		s.reset()
	}
}

// reset clears the directory and advances the run counter used for the
// persistence directories.
func (s *Server) reset() {
	s.dir.Clear()
	s.draining.Store(false)
	next := s.epoch.Add(1)
	s.log.Info("run reset", zap.Int64("epoch", next))
}

// broadcastStop sends stop to every registered node over a dedicated
// UDP socket and collects acks, rebroadcasting to non-ackers for a
// bounded number of rounds.
func (s *Server) broadcastStop() {
	peers := s.dir.Addresses()
	if len(peers) == 0 {
		return
	}
	udp, err := transport.Listen(0, s.log.Named("stopcast"))
	if err != nil {
		s.log.Error("stop broadcast socket", zap.Error(err))
		return
	}
	defer udp.Close()

	pending := make(map[wire.Address]struct{}, len(peers))
	for _, p := range peers {
		pending[p] = struct{}{}
	}

	for round := 0; round <= s.cfg.StopRetries && len(pending) > 0; round++ {
		for p := range pending {
			if err := udp.SendTo(p, wire.StopMessage()); err != nil {
				s.log.Warn("stop send", zap.Stringer("peer", p), zap.Error(err))
			}
		}
		deadline := time.Now().Add(s.cfg.AckWait.Std())
		for len(pending) > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			m, from, err := udp.Receive(remaining)
			if errors.Is(err, transport.ErrTimeout) {
				break
			}
			if err != nil {
				s.log.Warn("stop ack receive", zap.Error(err))
				break
			}
			if m.Type != wire.Ack {
				continue
			}
			if _, ok := pending[from]; ok {
				delete(pending, from)
				s.log.Info("stop acked",
					zap.Stringer("peer", from), zap.String("identity", m.Identity))
			}
		}
	}
	if len(pending) > 0 {
		s.log.Warn("peers never acked stop", zap.Int("count", len(pending)))
	}
}
