package multiworld

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voxelgate.ai/internal/sim/teleport/discovery"
	"voxelgate.ai/internal/sim/teleport/runtime"
	"voxelgate.ai/internal/sim/voxel"
)

type request struct {
	fn   func()
	done chan struct{}
}

// Loop owns one dimension: it advances the dimension clock and every source placed in it.
// All engine calls that touch the dimension's queues happen on this goroutine.
type Loop struct {
	dim        string
	root       bool
	universe   *voxel.Universe
	engine     *runtime.Engine
	sources    *discovery.Index
	interval   time.Duration
	pruneEvery uint64

	req chan request
	log zerolog.Logger
}

func (l *Loop) Dimension() string { return l.dim }

func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Info().Dur("interval", l.interval).Bool("root", l.root).Msg("dimension loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("dimension loop stopped")
			return ctx.Err()
		case r := <-l.req:
			r.fn()
			close(r.done)
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step runs one tick. Run calls it from the ticker; tests call it directly.
func (l *Loop) Step() uint64 {
	tick, err := l.universe.Tick(l.dim)
	if err != nil {
		l.log.Error().Err(err).Msg("tick failed")
		return 0
	}
	for _, src := range l.sources.Locations(l.dim) {
		l.engine.Advance(src)
	}
	if l.root && l.pruneEvery > 0 && tick%l.pruneEvery == 0 {
		if n := l.engine.Cooldowns().Prune(tick); n > 0 {
			l.log.Debug().Int("pruned", n).Uint64("tick", tick).Msg("expired cooldowns dropped")
		}
	}
	return tick
}
