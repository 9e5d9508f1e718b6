package it

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmoke_SnippetPropagation(t *testing.T) {
	c := NewCluster(t)
	alpha := c.StartNode("alpha")
	beta := c.StartNode("beta")

	// Let a fan-out round or two run so both nodes know each other.
	time.Sleep(300 * time.Millisecond)

	alpha.Say(t, "hello from alpha")

	require.Eventually(t, func() bool {
		return strings.Contains(beta.Display.String(), "hello from alpha")
	}, 10*time.Second, 50*time.Millisecond, "snippet never reached the other node")

	// The author delivers its own snippet locally too.
	assert.Contains(t, alpha.Display.String(), "hello from alpha")
}

func TestSmoke_ThreeNodesConverge(t *testing.T) {
	c := NewCluster(t)
	nodes := []*TestNode{
		c.StartNode("one"),
		c.StartNode("two"),
		c.StartNode("three"),
	}
	time.Sleep(500 * time.Millisecond)

	lines := []string{"first post", "second post", "third post"}
	for i, n := range nodes {
		n.Say(t, lines[i])
	}

	require.Eventually(t, func() bool {
		for _, n := range nodes {
			out := n.Display.String()
			for _, l := range lines {
				if !strings.Contains(out, l) {
					return false
				}
			}
		}
		return true
	}, 15*time.Second, 100*time.Millisecond, "not every snippet reached every node")
}

func TestSmoke_DoneCollectsReports(t *testing.T) {
	c := NewCluster(t)
	alpha := c.StartNode("alpha")
	_ = c.StartNode("beta")

	time.Sleep(300 * time.Millisecond)
	alpha.Say(t, "goodbye world")
	require.Eventually(t, func() bool {
		return strings.Contains(alpha.Display.String(), "goodbye world")
	}, 10*time.Second, 50*time.Millisecond)

	c.Registry.Done()

	// Both nodes must ack the stop broadcast, deliver a report, and
	// exit on their own.
	for _, n := range c.Nodes {
		select {
		case err := <-n.Done:
			require.NoError(t, err)
		case <-time.After(20 * time.Second):
			t.Fatal("node did not finish after the stop broadcast")
		}
	}

	reportPath := filepath.Join(c.DataDir, "reports1", "alphaReport.txt")
	b, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, "in list:")
	assert.Contains(t, text, "sources:")
	assert.Contains(t, text, "snippets:")
	assert.Contains(t, text, "goodbye world")
}
