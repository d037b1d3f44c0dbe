package multiworld

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voxelgate.ai/internal/sim/teleport/discovery"
	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/sim/teleport/runtime"
	"voxelgate.ai/internal/sim/voxel"
)

const worldRequestTimeout = 3 * time.Second

var (
	ErrUnknownDimension = errors.New("unknown dimension")
	ErrLoopBusy         = errors.New("dimension loop did not answer in time")
)

type Options struct {
	Universe   *voxel.Universe
	Engine     *runtime.Engine
	Sources    *discovery.Index
	TickRateHz int
	// PruneEveryTicks drops expired cooldowns on the root dimension's loop; 0 disables it.
	PruneEveryTicks int
	Logger          zerolog.Logger
}

// Manager runs one Loop per dimension of the universe.
type Manager struct {
	universe *voxel.Universe
	engine   *runtime.Engine
	loops    map[string]*Loop
	tickRate int
	log      zerolog.Logger
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Universe == nil || opts.Engine == nil || opts.Sources == nil {
		return nil, errors.New("multiworld: universe, engine and sources are required")
	}
	if opts.TickRateHz <= 0 {
		return nil, fmt.Errorf("multiworld: tick_rate_hz must be > 0")
	}
	m := &Manager{
		universe: opts.Universe,
		engine:   opts.Engine,
		loops:    map[string]*Loop{},
		tickRate: opts.TickRateHz,
		log:      opts.Logger.With().Str("component", "multiworld").Logger(),
	}
	interval := time.Second / time.Duration(opts.TickRateHz)
	for _, dim := range opts.Universe.Dimensions() {
		m.loops[dim] = &Loop{
			dim:        dim,
			root:       dim == opts.Universe.RootDimension(),
			universe:   opts.Universe,
			engine:     opts.Engine,
			sources:    opts.Sources,
			interval:   interval,
			pruneEvery: uint64(max(opts.PruneEveryTicks, 0)),
			req:        make(chan request, 64),
			log:        m.log.With().Str("dim", dim).Logger(),
		}
	}
	return m, nil
}

func (m *Manager) RootDimension() string { return m.universe.RootDimension() }
func (m *Manager) TickRateHz() int       { return m.tickRate }
func (m *Manager) GlobalTicks() uint64   { return m.universe.GlobalTicks() }

func (m *Manager) Dimensions() []string {
	out := make([]string, 0, len(m.loops))
	for dim := range m.loops {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Loop(dim string) (*Loop, bool) {
	l, ok := m.loops[dim]
	return l, ok
}

// Run starts every dimension loop and returns when ctx ends or a loop fails.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, dim := range m.Dimensions() {
		l := m.loops[dim]
		g.Go(func() error { return l.Run(gctx) })
	}
	return g.Wait()
}

// Do runs fn on dim's loop goroutine between ticks and waits for it to finish.
func (m *Manager) Do(ctx context.Context, dim string, fn func()) error {
	l, ok := m.loops[dim]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
	}
	ctx, cancel := context.WithTimeout(ctx, worldRequestTimeout)
	defer cancel()

	r := request{fn: fn, done: make(chan struct{})}
	select {
	case l.req <- r:
	case <-ctx.Done():
		return ErrLoopBusy
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ErrLoopBusy
	}
}

// Inspect reads a source's state and its pending queue from the owning loop.
func (m *Manager) Inspect(ctx context.Context, src model.Location) (runtime.Inspection, []runtime.PendingView, error) {
	type result struct {
		ins  runtime.Inspection
		pend []runtime.PendingView
	}
	ch := make(chan result, 1)
	if err := m.Do(ctx, src.Dim, func() {
		ch <- result{ins: m.engine.Inspect(src), pend: m.engine.Pending(src)}
	}); err != nil {
		return runtime.Inspection{}, nil, err
	}
	r := <-ch
	return r.ins, r.pend, nil
}
