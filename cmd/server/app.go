package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"voxelgate.ai/internal/persistence/indexdb"
	persistlog "voxelgate.ai/internal/persistence/log"
	"voxelgate.ai/internal/sim/multiworld"
	"voxelgate.ai/internal/sim/teleport/discovery"
	"voxelgate.ai/internal/sim/teleport/regionload"
	"voxelgate.ai/internal/sim/teleport/runtime"
	"voxelgate.ai/internal/sim/tuning"
	"voxelgate.ai/internal/sim/voxel"
	"voxelgate.ai/internal/transport/observer"
)

type appConfig struct {
	DataDir   string
	DisableDB bool
	Tuning    tuning.Tuning
	Layout    voxel.Layout
}

// app is everything the server runs, wired together.
type app struct {
	universe *voxel.Universe
	engine   *runtime.Engine
	sources  *discovery.Index
	pads     *discovery.Index
	forces   *regionload.Forces
	manager  *multiworld.Manager
	observer *observer.Server

	idx     *indexdb.SQLiteIndex
	events  *persistlog.EventLogger
	commits *persistlog.CommitLogger

	log zerolog.Logger
}

func buildApp(ctx context.Context, cfg appConfig, logger zerolog.Logger) (*app, error) {
	a := &app{log: logger}

	u, placed, err := voxel.Build(cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("world layout: %w", err)
	}
	a.universe = u

	var (
		markerStore discovery.Store
		forceStore  regionload.Store
	)
	if !cfg.DisableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "teleport.sqlite"))
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		a.idx = idx
		markerStore, forceStore = idx, idx
	}

	if a.sources, err = discovery.Open(ctx, discovery.KindSource, markerStore); err != nil {
		a.Close()
		return nil, err
	}
	if a.pads, err = discovery.Open(ctx, discovery.KindLandingPad, markerStore); err != nil {
		a.Close()
		return nil, err
	}
	if a.forces, err = regionload.OpenForces(ctx, u, forceStore); err != nil {
		a.Close()
		return nil, err
	}
	for _, src := range placed.Sources {
		if _, err := a.sources.Add(ctx, src); err != nil {
			a.Close()
			return nil, err
		}
	}
	// Each landing pad keeps its region resident; persisted pads already hold their force.
	for _, pad := range placed.Pads {
		added, err := a.pads.Add(ctx, pad)
		if err != nil {
			a.Close()
			return nil, err
		}
		if added {
			if err := a.forces.Acquire(ctx, pad); err != nil {
				a.Close()
				return nil, err
			}
		}
	}

	a.events = persistlog.NewEventLogger(cfg.DataDir)
	a.commits = persistlog.NewCommitLogger(cfg.DataDir)

	a.engine, err = runtime.NewEngine(runtime.Options{
		Config: cfg.Tuning.ToConfig(),
		World:  u,
		Actors: u,
		Clock:  u,
		Hooks:  runtime.Hooks{OnEvent: a.onEvent, OnCommit: a.onCommit},
		Logger: logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.manager, err = multiworld.NewManager(multiworld.Options{
		Universe:        u,
		Engine:          a.engine,
		Sources:         a.sources,
		TickRateHz:      cfg.Tuning.TickRateHz,
		PruneEveryTicks: cfg.Tuning.PruneEveryTicks,
		Logger:          logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.observer = observer.NewServer(a.manager, map[string]observer.Locator{
		discovery.KindSource:     a.sources,
		discovery.KindLandingPad: a.pads,
	}, logger)

	logger.Info().
		Strs("dimensions", a.manager.Dimensions()).
		Int("sources", a.sources.Len()).
		Int("landing_pads", a.pads.Len()).
		Bool("index", a.idx != nil).
		Msg("teleport runtime ready")
	return a, nil
}

func (a *app) onEvent(ev runtime.Event) {
	if err := a.events.WriteEvent(ev); err != nil {
		a.log.Warn().Err(err).Msg("event log write failed")
	}
	if a.idx != nil {
		a.idx.WriteEvent(ev)
	}
	if a.observer != nil {
		a.observer.Publish(ev)
	}
}

func (a *app) onCommit(c runtime.Commit) {
	if err := a.commits.WriteCommit(c); err != nil {
		a.log.Warn().Err(err).Msg("commit log write failed")
	}
}

func (a *app) Close() {
	if a.events != nil {
		_ = a.events.Close()
	}
	if a.commits != nil {
		_ = a.commits.Close()
	}
	if a.idx != nil {
		_ = a.idx.Close()
	}
}
