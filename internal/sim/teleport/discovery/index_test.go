package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelgate.ai/internal/sim/teleport/model"
)

type memStore struct {
	rows map[string][]model.Location
	fail error
}

func (s *memStore) AppendMarker(_ context.Context, kind string, l model.Location) error {
	if s.fail != nil {
		return s.fail
	}
	s.rows[kind] = append(s.rows[kind], l)
	return nil
}

func (s *memStore) RemoveMarker(_ context.Context, kind string, l model.Location) error {
	if s.fail != nil {
		return s.fail
	}
	rows := s.rows[kind]
	for i, p := range rows {
		if p == l {
			s.rows[kind] = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memStore) LoadMarkers(_ context.Context, kind string) ([]model.Location, error) {
	return append([]model.Location(nil), s.rows[kind]...), nil
}

func loc(dim string, x, y, z int) model.Location { return model.Location{Dim: dim, X: x, Y: y, Z: z} }

func TestIndex_NearestSameDimension(t *testing.T) {
	ctx := context.Background()
	ix, err := Open(ctx, KindSource, nil)
	require.NoError(t, err)

	for _, l := range []model.Location{
		loc("overworld", 100, 64, 0),
		loc("overworld", -10, 64, 0),
		loc("nether", 1, 64, 0),
	} {
		added, err := ix.Add(ctx, l)
		require.NoError(t, err)
		assert.True(t, added)
	}
	added, err := ix.Add(ctx, loc("overworld", 100, 64, 0))
	require.NoError(t, err)
	assert.False(t, added)

	got, ok := ix.Nearest(loc("overworld", 0, 64, 0))
	require.True(t, ok)
	assert.Equal(t, loc("overworld", -10, 64, 0), got)

	_, ok = ix.Nearest(loc("end", 0, 0, 0))
	assert.False(t, ok)
}

func TestIndex_PersistsInOrder(t *testing.T) {
	ctx := context.Background()
	store := &memStore{rows: map[string][]model.Location{}}
	ix, err := Open(ctx, KindSource, store)
	require.NoError(t, err)

	a, b, c := loc("overworld", 1, 0, 0), loc("overworld", 2, 0, 0), loc("overworld", 3, 0, 0)
	for _, l := range []model.Location{a, b, c} {
		_, err := ix.Add(ctx, l)
		require.NoError(t, err)
	}
	removed, err := ix.Remove(ctx, b)
	require.NoError(t, err)
	assert.True(t, removed)

	reopened, err := Open(ctx, KindSource, store)
	require.NoError(t, err)
	assert.Equal(t, []model.Location{a, c}, reopened.Locations("overworld"))
	assert.False(t, reopened.Contains(b))

	other, err := Open(ctx, KindLandingPad, store)
	require.NoError(t, err)
	assert.Zero(t, other.Len())
}

func TestIndex_StoreErrorsSurface(t *testing.T) {
	ctx := context.Background()
	store := &memStore{rows: map[string][]model.Location{}, fail: errors.New("disk full")}
	ix, err := Open(ctx, KindSource, store)
	require.NoError(t, err)

	_, err = ix.Add(ctx, loc("overworld", 0, 0, 0))
	assert.ErrorContains(t, err, "disk full")
	// The in-memory view still reflects the placement.
	assert.True(t, ix.Contains(loc("overworld", 0, 0, 0)))
}
