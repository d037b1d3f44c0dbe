package regionload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelgate.ai/internal/sim/teleport/model"
)

type recForcer struct {
	calls  []bool
	forced map[model.RegionKey]bool
}

func (f *recForcer) SetRegionForced(k model.RegionKey, forced bool) {
	if f.forced == nil {
		f.forced = map[model.RegionKey]bool{}
	}
	f.calls = append(f.calls, forced)
	f.forced[k] = forced
}

type memStore map[model.RegionKey]int

func (s memStore) SaveRegionForce(_ context.Context, k model.RegionKey, n int) error {
	if n == 0 {
		delete(s, k)
		return nil
	}
	s[k] = n
	return nil
}

func (s memStore) LoadRegionForces(context.Context) (map[model.RegionKey]int, error) {
	out := map[model.RegionKey]int{}
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

func TestForces_RefCounted(t *testing.T) {
	ctx := context.Background()
	fr := &recForcer{}
	store := memStore{}
	f, err := OpenForces(ctx, fr, store)
	require.NoError(t, err)

	a := model.Location{Dim: "overworld", X: 1, Y: 64, Z: 1}
	b := model.Location{Dim: "overworld", X: 15, Y: 70, Z: 2} // same region
	require.NoError(t, f.Acquire(ctx, a))
	require.NoError(t, f.Acquire(ctx, b))
	assert.Equal(t, []bool{true}, fr.calls)
	assert.Equal(t, 2, f.Count(a.Region()))

	require.NoError(t, f.Release(ctx, a))
	assert.Equal(t, []bool{true}, fr.calls)
	require.NoError(t, f.Release(ctx, b))
	assert.Equal(t, []bool{true, false}, fr.calls)

	// Extra releases never go negative or unforce twice.
	require.NoError(t, f.Release(ctx, b))
	assert.Equal(t, []bool{true, false}, fr.calls)
	assert.Empty(t, store)
}

func TestForces_ReassertOnOpen(t *testing.T) {
	ctx := context.Background()
	k := model.RegionKey{Dim: "overworld", X: 3, Z: -1}
	store := memStore{k: 2}
	fr := &recForcer{}

	f, err := OpenForces(ctx, fr, store)
	require.NoError(t, err)
	assert.True(t, fr.forced[k])
	assert.Equal(t, 2, f.Count(k))
}

func TestRequests_OncePerRegion(t *testing.T) {
	r := NewRequests()
	a := model.Location{Dim: "overworld", X: 100, Z: 100}
	b := model.Location{Dim: "overworld", X: 101, Z: 110}

	assert.True(t, r.Begin(a))
	assert.False(t, r.Begin(b))
	assert.Equal(t, 1, r.Pending())

	r.Settle(b)
	assert.True(t, r.Begin(a))
}

func TestRequests_SettleLoadedClearsServedRegionsInDimension(t *testing.T) {
	r := NewRequests()
	a := model.Location{Dim: "overworld", X: 100, Z: 100}
	b := model.Location{Dim: "overworld", X: -300, Z: 40}
	n := model.Location{Dim: "nether", X: 12, Z: 12}
	for _, l := range []model.Location{a, b, n} {
		require.True(t, r.Begin(l))
	}

	loaded := func(l model.Location) bool { return l != b }
	assert.Equal(t, 1, r.SettleLoaded("overworld", loaded))
	assert.Equal(t, 2, r.Pending(), "other dimensions and still-loading regions stay pending")
	assert.False(t, r.Begin(b))
	assert.True(t, r.Begin(a), "a served region can be requested again")

	assert.Equal(t, 1, r.SettleLoaded("nether", loaded))
}
