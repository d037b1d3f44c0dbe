package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelgate.ai/internal/sim/teleport/model"
)

type fakeEnv struct {
	cells map[model.Location]model.CellType
	dests map[model.Location]model.Location
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{cells: map[model.Location]model.CellType{}, dests: map[model.Location]model.Location{}}
}

func (e *fakeEnv) CellType(p model.Location) model.CellType {
	return e.cells[p]
}

func (e *fakeEnv) SelectedDestination(p model.Location) (model.Location, bool) {
	d, ok := e.dests[p]
	return d, ok
}

func at(x, y, z int) model.Location { return model.Location{Dim: "overworld", X: x, Y: y, Z: z} }

func TestScan_CountsNodesThroughRelays(t *testing.T) {
	env := newFakeEnv()
	origin := at(0, 0, 0)
	env.cells[origin] = model.CellSource
	// relay line along +X with a node hanging off every relay.
	for x := 1; x <= 10; x++ {
		env.cells[at(x, 0, 0)] = model.CellRelay
		env.cells[at(x, 1, 0)] = model.CellNode
	}
	// Disconnected node must not count.
	env.cells[at(50, 0, 0)] = model.CellNode

	res := Scan(env, origin, DefaultMaxVisited)
	assert.Equal(t, 10, res.Nodes)
	assert.Equal(t, 20, res.Visited)
}

func TestScan_NodesAreTraversable(t *testing.T) {
	env := newFakeEnv()
	origin := at(0, 0, 0)
	for z := 1; z <= 4; z++ {
		env.cells[at(0, 0, z)] = model.CellNode
	}
	assert.Equal(t, 4, Scan(env, origin, DefaultMaxVisited).Nodes)
}

func TestScan_NoNeighbors(t *testing.T) {
	env := newFakeEnv()
	res := Scan(env, at(0, 0, 0), DefaultMaxVisited)
	assert.Zero(t, res.Nodes)
	assert.Zero(t, res.Visited)
}

func TestScan_CapBoundsLargeCyclicGraph(t *testing.T) {
	env := newFakeEnv()
	// 30x30x30 solid block of nodes: 27000 cells, heavily cyclic.
	for x := 1; x <= 30; x++ {
		for y := 0; y < 30; y++ {
			for z := 0; z < 30; z++ {
				env.cells[at(x, y, z)] = model.CellNode
			}
		}
	}
	const capVisited = 500
	res := Scan(env, at(0, 0, 0), capVisited)
	assert.LessOrEqual(t, res.Visited, capVisited)
	assert.LessOrEqual(t, res.Nodes, capVisited)
	assert.Greater(t, res.Nodes, 0)
}

func TestScan_ZeroCap(t *testing.T) {
	env := newFakeEnv()
	env.cells[at(1, 0, 0)] = model.CellNode
	assert.Zero(t, Scan(env, at(0, 0, 0), 0).Nodes)
	assert.Zero(t, Scan(nil, at(0, 0, 0), 10).Nodes)
}

func TestResolveTerminal_FollowsRelays(t *testing.T) {
	env := newFakeEnv()
	pad := at(80, 0, 0)
	for x := 1; x <= 5; x++ {
		env.cells[at(x, 0, 0)] = model.CellRelay
	}
	env.cells[at(6, 0, 0)] = model.CellTerminal
	env.dests[at(6, 0, 0)] = pad

	got, ok := ResolveTerminal(env, at(0, 0, 0), DefaultMaxVisited)
	require.True(t, ok)
	assert.Equal(t, pad, got)
}

func TestResolveTerminal_NodesDoNotRelay(t *testing.T) {
	env := newFakeEnv()
	env.cells[at(1, 0, 0)] = model.CellNode
	env.cells[at(2, 0, 0)] = model.CellTerminal
	env.dests[at(2, 0, 0)] = at(9, 9, 9)

	_, ok := ResolveTerminal(env, at(0, 0, 0), DefaultMaxVisited)
	assert.False(t, ok)
}

func TestResolveTerminal_FixedNeighborOrderTieBreak(t *testing.T) {
	env := newFakeEnv()
	env.cells[at(1, 0, 0)] = model.CellTerminal
	env.dests[at(1, 0, 0)] = at(100, 0, 0)
	env.cells[at(-1, 0, 0)] = model.CellTerminal
	env.dests[at(-1, 0, 0)] = at(-100, 0, 0)
	env.cells[at(0, 0, 1)] = model.CellTerminal
	env.dests[at(0, 0, 1)] = at(0, 0, 100)

	got, ok := ResolveTerminal(env, at(0, 0, 0), DefaultMaxVisited)
	require.True(t, ok)
	assert.Equal(t, at(100, 0, 0), got, "+X is expanded first")
}

func TestResolveTerminal_FirstFoundEvenWithoutSelection(t *testing.T) {
	env := newFakeEnv()
	// The nearer terminal has nothing selected; resolution stops there.
	env.cells[at(1, 0, 0)] = model.CellTerminal
	env.cells[at(-1, 0, 0)] = model.CellRelay
	env.cells[at(-2, 0, 0)] = model.CellTerminal
	env.dests[at(-2, 0, 0)] = at(5, 5, 5)

	_, ok := ResolveTerminal(env, at(0, 0, 0), DefaultMaxVisited)
	assert.False(t, ok)
}
