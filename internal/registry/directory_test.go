package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gossipnet/internal/wire"
)

func addr(i int) wire.Address {
	return wire.Address{Host: fmt.Sprintf("10.0.0.%d", i), Port: 9000 + i}
}

func TestDirectory_RegisterUpserts(t *testing.T) {
	d := NewDirectory(4)
	d.Register("alpha", addr(1))
	d.Register("beta", addr(2))
	require.Equal(t, 2, d.Len())

	// Re-registration replaces the address, not the entry.
	d.Register("alpha", addr(3))
	assert.Equal(t, 2, d.Len())
	assert.ElementsMatch(t, []wire.Address{addr(3), addr(2)}, d.Addresses())
}

func TestDirectory_SubsetBounded(t *testing.T) {
	d := NewDirectory(4)
	for i := 1; i <= 6; i++ {
		d.Register(fmt.Sprintf("team%d", i), addr(i))
	}
	assert.Len(t, d.SubsetFor("team1"), 4)

	// Fewer registered than the bound: everyone is included.
	small := NewDirectory(4)
	small.Register("a", addr(1))
	small.Register("b", addr(2))
	assert.Len(t, small.SubsetFor("a"), 2)
}

func TestDirectory_SubsetCoverage(t *testing.T) {
	// Over many draws every registered peer must appear and no draw may
	// exceed the bound.
	d := NewDirectory(4)
	for i := 1; i <= 6; i++ {
		d.Register(fmt.Sprintf("team%d", i), addr(i))
	}

	seen := make(map[wire.Address]int)
	for i := 0; i < 100; i++ {
		draw := d.RandomSubset(4)
		require.LessOrEqual(t, len(draw), 4)
		uniq := make(map[wire.Address]struct{})
		for _, a := range draw {
			uniq[a] = struct{}{}
			seen[a]++
		}
		require.Len(t, uniq, len(draw), "draw contains duplicates")
	}
	for i := 1; i <= 6; i++ {
		assert.Positive(t, seen[addr(i)], "peer %d never drawn", i)
	}
}

func TestDirectory_SubsetAffinity(t *testing.T) {
	d := NewDirectory(4)
	for i := 1; i <= 8; i++ {
		d.Register(fmt.Sprintf("team%d", i), addr(i))
	}

	first := d.SubsetFor("team1")
	require.Len(t, first, 4)

	// A reconnecting node inherits the cached subset, even from a new
	// address.
	d.Register("team1", addr(42))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.SubsetFor("team1"))
	}
}

func TestDirectory_PartialSubsetRedrawn(t *testing.T) {
	d := NewDirectory(4)
	d.Register("a", addr(1))
	d.Register("b", addr(2))

	first := d.SubsetFor("a")
	require.Len(t, first, 2)

	// The cache was short of a full draw; once more peers exist a
	// re-registration gets a fresh full subset.
	for i := 3; i <= 8; i++ {
		d.Register(fmt.Sprintf("team%d", i), addr(i))
	}
	assert.Len(t, d.SubsetFor("a"), 4)
}

func TestDirectory_UnknownTeamGetsUncachedDraw(t *testing.T) {
	d := NewDirectory(4)
	for i := 1; i <= 6; i++ {
		d.Register(fmt.Sprintf("team%d", i), addr(i))
	}
	// A draw for an unregistered identity is served but not cached.
	assert.Len(t, d.SubsetFor("stranger"), 4)
	assert.Equal(t, 6, d.Len())
}

func TestDirectory_Clear(t *testing.T) {
	d := NewDirectory(4)
	d.Register("a", addr(1))
	d.Clear()
	assert.Zero(t, d.Len())
	assert.Empty(t, d.Addresses())
	assert.Empty(t, d.SubsetFor("a"))
}
