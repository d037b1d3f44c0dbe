// Package discovery keeps the set of placed markers (sources or landing pads) so nearest
// lookups never scan the world.
package discovery

import (
	"context"
	"fmt"
	"sync"

	"voxelgate.ai/internal/sim/teleport/model"
)

const (
	KindSource     = "source"
	KindLandingPad = "landing_pad"
)

// Store persists the marker list in insertion order. Implementations only append and
// remove.
type Store interface {
	AppendMarker(ctx context.Context, kind string, loc model.Location) error
	RemoveMarker(ctx context.Context, kind string, loc model.Location) error
	LoadMarkers(ctx context.Context, kind string) ([]model.Location, error)
}

type Index struct {
	kind  string
	store Store

	mu    sync.RWMutex
	byDim map[string][]model.Location
	set   map[model.Location]struct{}
}

// Open builds an index of kind and restores it from store (nil store keeps it in memory).
func Open(ctx context.Context, kind string, store Store) (*Index, error) {
	ix := &Index{
		kind:  kind,
		store: store,
		byDim: map[string][]model.Location{},
		set:   map[model.Location]struct{}{},
	}
	if store == nil {
		return ix, nil
	}
	locs, err := store.LoadMarkers(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s markers: %w", kind, err)
	}
	for _, l := range locs {
		ix.addLocked(l)
	}
	return ix, nil
}

func (ix *Index) Kind() string { return ix.kind }

func (ix *Index) addLocked(l model.Location) bool {
	if _, ok := ix.set[l]; ok {
		return false
	}
	ix.set[l] = struct{}{}
	ix.byDim[l.Dim] = append(ix.byDim[l.Dim], l)
	return true
}

// Add registers a placed marker. Re-adding is a no-op.
func (ix *Index) Add(ctx context.Context, l model.Location) (bool, error) {
	ix.mu.Lock()
	added := ix.addLocked(l)
	ix.mu.Unlock()
	if !added || ix.store == nil {
		return added, nil
	}
	if err := ix.store.AppendMarker(ctx, ix.kind, l); err != nil {
		return true, fmt.Errorf("persist %s %s: %w", ix.kind, l, err)
	}
	return true, nil
}

// Remove forgets a destroyed marker.
func (ix *Index) Remove(ctx context.Context, l model.Location) (bool, error) {
	ix.mu.Lock()
	_, ok := ix.set[l]
	if ok {
		delete(ix.set, l)
		list := ix.byDim[l.Dim]
		for i, p := range list {
			if p == l {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(ix.byDim, l.Dim)
		} else {
			ix.byDim[l.Dim] = list
		}
	}
	ix.mu.Unlock()
	if !ok || ix.store == nil {
		return ok, nil
	}
	if err := ix.store.RemoveMarker(ctx, ix.kind, l); err != nil {
		return true, fmt.Errorf("unpersist %s %s: %w", ix.kind, l, err)
	}
	return true, nil
}

func (ix *Index) Contains(l model.Location) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.set[l]
	return ok
}

// Locations returns the markers of dim in insertion order.
func (ix *Index) Locations(dim string) []model.Location {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]model.Location(nil), ix.byDim[dim]...)
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.set)
}

// Nearest returns the marker in from's dimension with the smallest squared distance.
// Ties keep the earlier-registered marker.
func (ix *Index) Nearest(from model.Location) (model.Location, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var (
		best  model.Location
		bestD int64
		found bool
	)
	for _, l := range ix.byDim[from.Dim] {
		d := l.DistSq(from)
		if !found || d < bestD {
			best, bestD, found = l, d, true
		}
	}
	return best, found
}
