package main

import (
	"context"
	"errors"
	"fmt"

	"voxelgate.ai/internal/sim/teleport/discovery"
	"voxelgate.ai/internal/sim/teleport/model"
)

var errUnknownKind = errors.New("unknown marker kind")

// onLoop runs fn on the loop that owns dim and returns its result.
func (a *app) onLoop(ctx context.Context, dim string, fn func() (bool, error)) (bool, error) {
	type result struct {
		ok  bool
		err error
	}
	ch := make(chan result, 1)
	if err := a.manager.Do(ctx, dim, func() {
		ok, err := fn()
		ch <- result{ok, err}
	}); err != nil {
		return false, err
	}
	r := <-ch
	return r.ok, r.err
}

func checkKind(kind string) error {
	switch kind {
	case discovery.KindSource, discovery.KindLandingPad:
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownKind, kind)
}

// placeMarker puts a source or landing pad into the world on its dimension's loop. It
// reports false when the marker was already registered.
func (a *app) placeMarker(ctx context.Context, kind string, loc model.Location, powered bool) (bool, error) {
	if err := checkKind(kind); err != nil {
		return false, err
	}
	return a.onLoop(ctx, loc.Dim, func() (bool, error) { return a.place(ctx, kind, loc, powered) })
}

// destroyMarker removes a registered source or landing pad on its dimension's loop.
func (a *app) destroyMarker(ctx context.Context, kind string, loc model.Location) (bool, error) {
	if err := checkKind(kind); err != nil {
		return false, err
	}
	return a.onLoop(ctx, loc.Dim, func() (bool, error) { return a.destroy(ctx, kind, loc) })
}

// place runs on the loop that owns loc. Placing a pad forces its region resident.
func (a *app) place(ctx context.Context, kind string, loc model.Location, powered bool) (bool, error) {
	if kind == discovery.KindSource {
		a.universe.SetCell(loc, model.CellSource)
		a.universe.SetPowered(loc, powered)
		return a.sources.Add(ctx, loc)
	}
	a.universe.SetCell(loc, model.CellLandingPad)
	added, err := a.pads.Add(ctx, loc)
	if err != nil || !added {
		return added, err
	}
	return true, a.forces.Acquire(ctx, loc)
}

// destroy runs on the loop that owns loc. A destroyed source drops the transports queued
// on it; a destroyed pad releases its region force.
func (a *app) destroy(ctx context.Context, kind string, loc model.Location) (bool, error) {
	if kind == discovery.KindSource {
		if !a.sources.Contains(loc) {
			return false, nil
		}
		if n := a.engine.RemoveSource(loc); n > 0 {
			a.log.Info().Str("source", loc.String()).Int("dropped", n).Msg("source removed with queued transports")
		}
		a.universe.SetCell(loc, model.CellEmpty)
		return a.sources.Remove(ctx, loc)
	}
	removed, err := a.pads.Remove(ctx, loc)
	if err != nil || !removed {
		return removed, err
	}
	a.universe.SetCell(loc, model.CellEmpty)
	return true, a.forces.Release(ctx, loc)
}
