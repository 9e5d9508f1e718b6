// Package it holds the in-process integration harness: a real registry
// listener and real nodes on loopback sockets, wired to in-memory
// stdin/stdout stand-ins.
package it

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gossipnet/internal/config"
	"gossipnet/internal/node"
	"gossipnet/internal/registry"
)

// syncBuffer is a bytes.Buffer safe for the display goroutine and the
// test to share.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// TestNode is one running gossip participant.
type TestNode struct {
	Input   *io.PipeWriter
	Display *syncBuffer
	Done    chan error
}

// Cluster is a registry plus nodes, all in-process on loopback.
type Cluster struct {
	t      *testing.T
	ctx    context.Context
	cancel context.CancelFunc

	Registry *registry.Server
	DataDir  string
	Nodes    []*TestNode
}

// NewCluster starts a registry with timing turned down far enough for
// tests. The run window is effectively unbounded; tests end it with
// Registry.Done().
func NewCluster(t *testing.T) *Cluster {
	t.Helper()
	cfg := config.Default().Registry
	cfg.ListenPort = 0
	cfg.RunDuration = config.Duration(time.Hour)
	cfg.DrainDuration = config.Duration(time.Hour)
	cfg.AckWait = config.Duration(500 * time.Millisecond)
	cfg.StopRetries = 3
	cfg.DataDir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cluster{
		t:        t,
		ctx:      ctx,
		cancel:   cancel,
		Registry: registry.NewServer(cfg, zaptest.NewLogger(t)),
		DataDir:  cfg.DataDir,
	}

	srvDone := make(chan error, 1)
	go func() { srvDone <- c.Registry.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		for _, n := range c.Nodes {
			n.Input.Close()
			select {
			case <-n.Done:
			case <-time.After(10 * time.Second):
				t.Error("node did not shut down")
			}
		}
		select {
		case <-srvDone:
		case <-time.After(10 * time.Second):
			t.Error("registry did not shut down")
		}
	})
	require.Eventually(t, func() bool { return c.Registry.Addr() != nil },
		5*time.Second, 10*time.Millisecond)
	return c
}

// StartNode onboards one node and returns its handle once it is
// registered with the registry.
func (c *Cluster) StartNode(team string) *TestNode {
	c.t.Helper()

	cfg := config.Default().Peer
	cfg.RegistryAddr = c.Registry.Addr().String()
	cfg.TeamName = team
	cfg.AdvertiseHost = "127.0.0.1"
	cfg.FanoutInterval = config.Duration(100 * time.Millisecond)
	cfg.LivenessWindow = config.Duration(5 * time.Second)
	cfg.ReceiveTimeout = config.Duration(50 * time.Millisecond)
	cfg.AckReceiveTimeout = config.Duration(200 * time.Millisecond)
	cfg.InputPollInterval = config.Duration(20 * time.Millisecond)
	cfg.DrainLinger = config.Duration(300 * time.Millisecond)

	pr, pw := io.Pipe()
	n := &TestNode{
		Input:   pw,
		Display: &syncBuffer{},
		Done:    make(chan error, 1),
	}
	before := c.Registry.Directory().Len()
	go func() {
		n.Done <- node.New(cfg, zaptest.NewLogger(c.t)).Run(c.ctx, pr, n.Display)
		close(n.Done)
	}()
	require.Eventually(c.t, func() bool {
		return c.Registry.Directory().Len() > before
	}, 10*time.Second, 10*time.Millisecond, "node never registered")

	c.Nodes = append(c.Nodes, n)
	return n
}

// Say authors one snippet on the node.
func (n *TestNode) Say(t *testing.T, content string) {
	t.Helper()
	_, err := io.WriteString(n.Input, content+"\n")
	require.NoError(t, err)
}
