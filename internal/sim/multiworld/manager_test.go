package multiworld

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelgate.ai/internal/sim/teleport/discovery"
	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/sim/teleport/runtime"
	"voxelgate.ai/internal/sim/voxel"
)

type fixture struct {
	u       *voxel.Universe
	m       *Manager
	src     model.Location
	pad     model.Location
	commits chan runtime.Commit
}

func newFixture(t *testing.T, tickRate int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		u:       voxel.NewUniverse("overworld", "nether"),
		src:     model.Location{Dim: "overworld", Y: 64},
		pad:     model.Location{Dim: "overworld", X: 30, Y: 64, Z: 10},
		commits: make(chan runtime.Commit, 4),
	}
	f.u.SetCell(f.src, model.CellSource)
	f.u.SetPowered(f.src, true)
	for x := 1; x <= 5; x++ {
		f.u.SetCell(f.src.Offset(x, 0, 0), model.CellRelay)
		f.u.SetCell(f.src.Offset(x, -1, 0), model.CellNode)
	}
	f.u.SetCell(f.pad, model.CellLandingPad)
	_, err := f.u.PlaceTerminal(f.src.Offset(-1, 0, 0)).AddPad(f.pad, "")
	require.NoError(t, err)

	sources, err := discovery.Open(ctx, discovery.KindSource, nil)
	require.NoError(t, err)
	_, err = sources.Add(ctx, f.src)
	require.NoError(t, err)

	engine, err := runtime.NewEngine(runtime.Options{
		Config: runtime.DefaultConfig(),
		World:  f.u,
		Actors: f.u,
		Clock:  f.u,
		Hooks:  runtime.Hooks{OnCommit: func(c runtime.Commit) { f.commits <- c }},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	f.m, err = NewManager(Options{
		Universe:        f.u,
		Engine:          engine,
		Sources:         sources,
		TickRateHz:      tickRate,
		PruneEveryTicks: 10,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, err)
	return f
}

func TestNewManager_Validates(t *testing.T) {
	_, err := NewManager(Options{})
	assert.Error(t, err)

	f := newFixture(t, 20)
	_, err = NewManager(Options{Universe: f.u, Engine: f.m.engine, Sources: f.m.loops["overworld"].sources})
	assert.Error(t, err, "tick rate is required")
}

func TestManager_DimensionsAndRoot(t *testing.T) {
	f := newFixture(t, 20)
	assert.Equal(t, []string{"nether", "overworld"}, f.m.Dimensions())
	assert.Equal(t, "overworld", f.m.RootDimension())

	l, ok := f.m.Loop("overworld")
	require.True(t, ok)
	assert.True(t, l.root)
	l, ok = f.m.Loop("nether")
	require.True(t, ok)
	assert.False(t, l.root)
}

func TestLoop_StepDrivesTransportAndPrunes(t *testing.T) {
	f := newFixture(t, 20)
	p := f.u.Spawn(voxel.SpawnSpec{Player: true, Dim: "overworld", Pos: f.src.Up().Center(), Width: 0.6, Height: 1.8})

	l, _ := f.m.Loop("overworld")
	for i := 0; i < 50; i++ {
		l.Step()
	}
	require.Len(t, f.commits, 1)
	c := <-f.commits
	assert.Equal(t, uint64(150), c.CooldownUntil)
	_, pos, _ := f.u.Position(p)
	assert.Equal(t, f.pad.Up().Center(), pos)

	// Nether ticks never touch the global clock.
	nl, _ := f.m.Loop("nether")
	nl.Step()
	assert.Equal(t, uint64(50), f.m.GlobalTicks())

	assert.Equal(t, 1, f.m.engine.Cooldowns().Len())
	for i := 0; i < 100; i++ {
		l.Step()
	}
	assert.Zero(t, f.m.engine.Cooldowns().Len())
}

func TestManager_RunServesRequestsUntilCanceled(t *testing.T) {
	f := newFixture(t, 200)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.m.Run(ctx) }()

	ins, pend, err := f.m.Inspect(ctx, f.src)
	require.NoError(t, err)
	assert.Equal(t, 5, ins.Nodes)
	assert.Equal(t, 50, ins.Range)
	assert.True(t, ins.HasDestination)
	assert.Empty(t, pend)

	err = f.m.Do(ctx, "end", func() {})
	assert.True(t, errors.Is(err, ErrUnknownDimension))

	require.Eventually(t, func() bool { return f.m.GlobalTicks() > 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestManager_DoTimesOutWithoutLoop(t *testing.T) {
	f := newFixture(t, 20)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Fill the request buffer so the next send has to wait for a loop that is not running.
	l, _ := f.m.Loop("overworld")
	for i := 0; i < cap(l.req); i++ {
		l.req <- request{fn: func() {}, done: make(chan struct{})}
	}
	err := f.m.Do(ctx, "overworld", func() {})
	assert.ErrorIs(t, err, ErrLoopBusy)
}
