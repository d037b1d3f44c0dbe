// Package regionload keeps destination regions resident: landing pads hold a refcounted
// force on their region, and transport attempts into unloaded regions issue at most one
// outstanding load request per region.
package regionload

import (
	"context"
	"fmt"
	"sync"

	"voxelgate.ai/internal/sim/teleport/model"
)

// Forcer is the host's region residency switch.
type Forcer interface {
	SetRegionForced(key model.RegionKey, forced bool)
}

type Store interface {
	SaveRegionForce(ctx context.Context, key model.RegionKey, count int) error
	LoadRegionForces(ctx context.Context) (map[model.RegionKey]int, error)
}

type Forces struct {
	forcer Forcer
	store  Store

	mu     sync.Mutex
	counts map[model.RegionKey]int
}

// OpenForces restores persisted counts and re-asserts every forced region.
func OpenForces(ctx context.Context, forcer Forcer, store Store) (*Forces, error) {
	f := &Forces{forcer: forcer, store: store, counts: map[model.RegionKey]int{}}
	if store == nil {
		return f, nil
	}
	counts, err := store.LoadRegionForces(ctx)
	if err != nil {
		return nil, fmt.Errorf("load region forces: %w", err)
	}
	for k, n := range counts {
		if n <= 0 {
			continue
		}
		f.counts[k] = n
		if forcer != nil {
			forcer.SetRegionForced(k, true)
		}
	}
	return f, nil
}

// Acquire adds one force on the region containing loc.
func (f *Forces) Acquire(ctx context.Context, loc model.Location) error {
	k := loc.Region()
	f.mu.Lock()
	n := f.counts[k] + 1
	f.counts[k] = n
	f.mu.Unlock()
	if n == 1 && f.forcer != nil {
		f.forcer.SetRegionForced(k, true)
	}
	return f.save(ctx, k, n)
}

// Release drops one force; the region is unforced when the count reaches zero.
func (f *Forces) Release(ctx context.Context, loc model.Location) error {
	k := loc.Region()
	f.mu.Lock()
	prev := f.counts[k]
	n := prev - 1
	if n <= 0 {
		n = 0
		delete(f.counts, k)
	} else {
		f.counts[k] = n
	}
	f.mu.Unlock()
	if prev > 0 && n == 0 && f.forcer != nil {
		f.forcer.SetRegionForced(k, false)
	}
	return f.save(ctx, k, n)
}

func (f *Forces) Count(k model.RegionKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[k]
}

func (f *Forces) save(ctx context.Context, k model.RegionKey, n int) error {
	if f.store == nil {
		return nil
	}
	if err := f.store.SaveRegionForce(ctx, k, n); err != nil {
		return fmt.Errorf("save region force %s: %w", k, err)
	}
	return nil
}

// Requests de-duplicates asynchronous load requests. A request stays outstanding until its
// region is observed loaded, either by the next attempt or by SettleLoaded.
type Requests struct {
	mu      sync.Mutex
	pending map[model.RegionKey]model.Location
}

func NewRequests() *Requests {
	return &Requests{pending: map[model.RegionKey]model.Location{}}
}

// Begin reports whether a new request for loc's region should be issued.
func (r *Requests) Begin(loc model.Location) bool {
	k := loc.Region()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[k]; ok {
		return false
	}
	r.pending[k] = loc
	return true
}

// Settle clears the outstanding request once the region is observed loaded.
func (r *Requests) Settle(loc model.Location) {
	r.mu.Lock()
	delete(r.pending, loc.Region())
	r.mu.Unlock()
}

// SettleLoaded clears every outstanding request in dim whose region has finished loading
// and returns how many it cleared. A region evicted again later gets a fresh request.
func (r *Requests) SettleLoaded(dim string, loaded func(model.Location) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, loc := range r.pending {
		if k.Dim == dim && loaded(loc) {
			delete(r.pending, k)
			n++
		}
	}
	return n
}

func (r *Requests) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
