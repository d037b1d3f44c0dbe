package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelgate.ai/internal/persistence/indexdb"
	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/sim/teleport/runtime"
	"voxelgate.ai/internal/sim/tuning"
	"voxelgate.ai/internal/sim/voxel"
)

func loadApp(t *testing.T, dataDir string, disableDB bool) *app {
	t.Helper()
	tune, err := tuning.Load("../../configs/teleport.yaml")
	require.NoError(t, err)
	layout, err := voxel.LoadLayout("../../configs/world.yaml")
	require.NoError(t, err)

	a, err := buildApp(context.Background(), appConfig{
		DataDir:   dataDir,
		DisableDB: disableDB,
		Tuning:    tune,
		Layout:    layout,
	}, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func stepN(t *testing.T, a *app, dim string, n int) {
	t.Helper()
	l, ok := a.manager.Loop(dim)
	require.True(t, ok)
	for i := 0; i < n; i++ {
		l.Step()
	}
}

func TestBuildApp_ShippedWorldTransportsMountedPlayer(t *testing.T) {
	dir := t.TempDir()
	a := loadApp(t, dir, false)

	assert.Equal(t, []string{"nether", "overworld"}, a.manager.Dimensions())
	assert.Equal(t, 2, a.sources.Len())
	assert.Equal(t, 3, a.pads.Len())

	// The nether pad sits in an unloaded region; its force makes it resident.
	netherPad := model.Location{Dim: "nether", X: 12, Y: 32, Z: 12}
	assert.True(t, a.universe.RegionLoaded(netherPad))

	stepN(t, a, "overworld", 50)

	pad := model.Location{Dim: "overworld", X: 40, Y: 64, Z: 40}
	var horse model.ActorID
	for _, id := range a.universe.ActorsInVolume("overworld", model.BoxAt(pad.Up().Center(), 4, 4)) {
		if _, ok := a.universe.VehicleOf(id); !ok {
			horse = id
		}
	}
	require.NotEqual(t, model.ActorID{}, horse, "stack arrives on the selected pad")
	assert.Len(t, a.universe.Riders(horse), 1)
	assert.Equal(t, 1, a.engine.Cooldowns().Len())

	a.Close()

	files, err := filepath.Glob(filepath.Join(dir, "audit", "commits-*.jsonl.zst"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
	files, err = filepath.Glob(filepath.Join(dir, "events", "teleport-*.jsonl.zst"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "teleport.sqlite"))
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.CountEvents(context.Background(), runtime.EventCommit)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = idx.CountEvents(context.Background(), runtime.EventCue)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestBuildApp_RestartKeepsMarkersAndForces(t *testing.T) {
	dir := t.TempDir()
	a := loadApp(t, dir, false)
	a.Close()

	b := loadApp(t, dir, false)
	defer b.Close()
	assert.Equal(t, 2, b.sources.Len())
	assert.Equal(t, 3, b.pads.Len())
	k := model.Location{Dim: "overworld", X: 40, Y: 64, Z: 40}.Region()
	assert.Equal(t, 1, b.forces.Count(k), "a restart must not double-count pad forces")
}

func TestRoutes_HealthMetricsStats(t *testing.T) {
	a := loadApp(t, t.TempDir(), true)
	defer a.Close()
	stepN(t, a, "overworld", 5)

	ts := httptest.NewServer(a.routes())
	defer ts.Close()

	get := func(path string) (int, string) {
		res, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		return res.StatusCode, string(b)
	}

	code, body := get("/healthz")
	assert.Equal(t, 200, code)
	assert.Equal(t, "ok", body)

	code, body = get("/metrics")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "voxelgate_tick 5\n")
	assert.Contains(t, body, `voxelgate_markers{kind="landing_pad"} 3`)
	assert.Contains(t, body, `voxelgate_queue_depth{source="overworld@0,64,0"} 1`)
	assert.NotContains(t, body, "voxelgate_index_dropped_total")

	code, body = get("/v1/stats")
	assert.Equal(t, 200, code)
	var s stats
	require.NoError(t, json.NewDecoder(strings.NewReader(body)).Decode(&s))
	assert.Equal(t, uint64(5), s.Tick)
	assert.Equal(t, 1, s.ArmedSources)
	assert.Nil(t, s.Index)
}
