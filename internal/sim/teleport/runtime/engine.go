package runtime

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"voxelgate.ai/internal/sim/teleport/logic/cooldown"
	"voxelgate.ai/internal/sim/teleport/logic/edge"
	"voxelgate.ai/internal/sim/teleport/logic/mathx"
	"voxelgate.ai/internal/sim/teleport/logic/mesh"
	"voxelgate.ai/internal/sim/teleport/logic/stack"
	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/sim/teleport/regionload"
)

const (
	scaleBase = 0.60
	scaleMin  = 0.75
	scaleMax  = 4.0
)

type Options struct {
	Config Config
	World  World
	Actors Actors
	Clock  Clock

	// Shared registries; nil gets a fresh instance.
	Edge      *edge.Tracker
	Cooldowns *cooldown.Registry
	Queues    *Queues
	Loads     *regionload.Requests

	Hooks  Hooks
	Logger zerolog.Logger
}

// Engine drives trigger detection, the staged queue and relocation for every source. It is
// safe to call from several dimension goroutines as long as each source location is only
// advanced by the goroutine that owns its dimension.
type Engine struct {
	cfg    Config
	world  World
	actors Actors
	clock  Clock

	edge      *edge.Tracker
	cooldowns *cooldown.Registry
	queues    *Queues
	loads     *regionload.Requests

	hooks Hooks
	log   zerolog.Logger
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.World == nil || opts.Actors == nil || opts.Clock == nil {
		return nil, errors.New("teleport engine: world, actors and clock are required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("teleport engine: %w", err)
	}
	e := &Engine{
		cfg:       opts.Config,
		world:     opts.World,
		actors:    opts.Actors,
		clock:     opts.Clock,
		edge:      opts.Edge,
		cooldowns: opts.Cooldowns,
		queues:    opts.Queues,
		loads:     opts.Loads,
		hooks:     opts.Hooks,
		log:       opts.Logger.With().Str("component", "teleport").Logger(),
	}
	if e.edge == nil {
		e.edge = edge.NewTracker()
	}
	if e.cooldowns == nil {
		e.cooldowns = cooldown.NewRegistry()
	}
	if e.queues == nil {
		e.queues = NewQueues()
	}
	if e.loads == nil {
		e.loads = regionload.NewRequests()
	}
	return e, nil
}

func (e *Engine) Config() Config                { return e.cfg }
func (e *Engine) Edge() *edge.Tracker           { return e.edge }
func (e *Engine) Cooldowns() *cooldown.Registry { return e.cooldowns }
func (e *Engine) Queues() *Queues               { return e.queues }
func (e *Engine) Loads() *regionload.Requests   { return e.loads }

// Inspection is what a player sees when using a source.
type Inspection struct {
	Source         model.Location `json:"source"`
	Nodes          int            `json:"nodes"`
	Range          int            `json:"range"`
	Active         bool           `json:"active"`
	Destination    model.Location `json:"destination,omitempty"`
	HasDestination bool           `json:"has_destination"`
	Queued         int            `json:"queued"`
}

func (e *Engine) Inspect(src model.Location) Inspection {
	res := mesh.Scan(e.world, src, e.cfg.MaxMeshScan)
	dest, ok := mesh.ResolveTerminal(e.world, src, e.cfg.MaxMeshScan)
	return Inspection{
		Source:         src,
		Nodes:          res.Nodes,
		Range:          res.Nodes * e.cfg.RangePerNode,
		Active:         e.powered(src),
		Destination:    dest,
		HasDestination: ok,
		Queued:         e.queues.Len(src),
	}
}

// Pending copies src's queue. Call it from the goroutine that ticks src.
func (e *Engine) Pending(src model.Location) []PendingView {
	return e.queues.Snapshot(src)
}

// OnActorSteppedInVolume is the collision-system entry point for an actor touching src.
func (e *Engine) OnActorSteppedInVolume(src model.Location, actor model.ActorID) {
	if !e.powered(src) {
		return
	}
	e.tryQueue(src, actor)
}

// RemoveSource drops every transport queued at src and forgets its armed groups. Call it
// from the goroutine that ticks src, before the source is unregistered.
func (e *Engine) RemoveSource(src model.Location) int {
	n := 0
	for cur := e.queues.Head(src); cur != nil; cur = e.queues.Head(src) {
		var notify model.ActorID
		if e.actors.Alive(cur.Root) {
			notify = e.actors.RootOf(cur.Root)
		}
		e.drop(cur, fail(ErrInactive, "source removed."), notify)
		n++
	}
	e.edge.Clear(src)
	return n
}

// Advance runs one simulation tick for src: scan the trigger column, forget groups that
// walked out, then drive the head of the queue.
func (e *Engine) Advance(src model.Location) {
	e.loads.SettleLoaded(src.Dim, e.world.RegionLoaded)
	if e.powered(src) {
		for _, id := range e.world.ActorsInVolume(src.Dim, e.cfg.TriggerBox(src)) {
			e.tryQueue(src, id)
		}
	} else {
		// Power loss disarms the source; groups must re-enter once it returns.
		e.edge.Clear(src)
	}
	e.sweepExited(src)
	e.step(src)
}

func (e *Engine) powered(src model.Location) bool {
	return !e.cfg.RequirePower || e.world.Powered(src)
}

// stackInside reports whether any member of root's mount stack touches src's trigger column.
func (e *Engine) stackInside(root model.ActorID, src model.Location) bool {
	box := e.cfg.TriggerBox(src)
	snap := stack.Capture(e.actors, root, e.cfg.MaxStackMembers)
	for _, id := range snap.Members {
		dim, b, ok := e.actors.Bounds(id)
		if !ok || dim != src.Dim {
			continue
		}
		if b.Intersects(box) {
			return true
		}
	}
	return false
}

func (e *Engine) sweepExited(src model.Location) {
	for _, g := range e.edge.Members(src) {
		if at, busy := e.queues.InFlight(g); busy && at == src {
			continue
		}
		if !e.actors.Alive(g) || !e.stackInside(e.actors.RootOf(g), src) {
			e.edge.MarkLeft(src, g)
		}
	}
}

func (e *Engine) reject(src model.Location, g model.GroupID, notify model.ActorID, f *Failure, arm bool) {
	if arm {
		e.edge.MarkEntered(src, g)
	}
	if notify != (model.ActorID{}) && f.Message != "" {
		e.actors.Notify(notify, "Teleporter: "+f.Message)
	}
	e.log.Debug().
		Str("source", src.String()).
		Str("group", g.String()).
		Str("code", f.Code).
		Msg("transport rejected")
	e.hooks.emit(Event{
		Kind:    EventReject,
		Tick:    e.clock.GlobalTicks(),
		Source:  src,
		Group:   g,
		Code:    f.Code,
		Message: f.Message,
	})
}

// tryQueue validates an entry edge and enqueues a transport. Every rejection except an
// unloaded destination region arms the group, so it must leave and re-enter to retry.
func (e *Engine) tryQueue(src model.Location, actor model.ActorID) {
	if !e.actors.Alive(actor) {
		return
	}
	root := e.actors.RootOf(actor)
	g := root

	if !e.stackInside(root, src) {
		e.edge.MarkLeft(src, g)
		return
	}
	if e.edge.Inside(src, g) {
		return
	}
	if !e.powered(src) {
		return
	}

	now := e.clock.GlobalTicks()
	if e.cooldowns.Active(g, now) {
		e.reject(src, g, model.ActorID{}, fail(ErrCooldown, ""), true)
		return
	}
	if _, busy := e.queues.InFlight(g); busy {
		e.reject(src, g, model.ActorID{}, fail(ErrBusy, ""), true)
		return
	}

	res := mesh.Scan(e.world, src, e.cfg.MaxMeshScan)
	if res.Nodes <= 0 {
		e.reject(src, g, actor, fail(ErrNoMesh, "no mesh connected."), true)
		return
	}
	rng := res.Nodes * e.cfg.RangePerNode

	dest, ok := mesh.ResolveTerminal(e.world, src, e.cfg.MaxMeshScan)
	if !ok {
		e.reject(src, g, actor, fail(ErrNoDestination, "no destination selected."), true)
		return
	}
	if dest.Dim != src.Dim || dest.Manhattan(src) > rng {
		e.reject(src, g, actor, fail(ErrOutOfRange, "target out of range (%d blocks).", rng), true)
		return
	}
	if !e.world.RegionLoaded(dest) {
		if e.loads.Begin(dest) {
			e.world.RequestRegionLoad(dest)
			e.reject(src, g, actor, fail(ErrRegionLoading, "loading destination region..."), false)
		}
		return
	}
	e.loads.Settle(dest)
	if e.world.CellType(dest) != model.CellLandingPad {
		e.reject(src, g, actor, fail(ErrNoLandingPad, "no landing pad at the target coordinates."), true)
		return
	}

	p := &Pending{
		Group:       g,
		Root:        root,
		Source:      src,
		Destination: dest,
		Scale:       e.scaleFor(actor, root),
		Stage:       model.StageLarge,
		QueuedTick:  now,
	}
	if !e.queues.Push(p) {
		e.reject(src, g, model.ActorID{}, fail(ErrBusy, ""), true)
		return
	}
	e.edge.MarkEntered(src, g)

	e.log.Info().
		Str("source", src.String()).
		Str("destination", dest.String()).
		Str("group", g.String()).
		Int("range", rng).
		Msg("transport queued")
	e.hooks.emit(Event{
		Kind:        EventQueued,
		Tick:        now,
		Source:      src,
		Destination: dest,
		Group:       g,
		Stage:       p.Stage,
		Scale:       p.Scale,
	})
}

func (e *Engine) scaleFor(actor, root model.ActorID) float64 {
	w1, h1 := e.actors.Size(actor)
	w2, h2 := e.actors.Size(root)
	base := max(max(w1, h1), max(w2, h2))
	return mathx.Clamp(base/scaleBase, scaleMin, scaleMax)
}

// step advances the head transport at src by one tick.
func (e *Engine) step(src model.Location) {
	cur := e.queues.Head(src)
	if cur == nil {
		return
	}

	if !e.actors.Alive(cur.Root) {
		e.drop(cur, fail(ErrRootLost, "root actor lost."), model.ActorID{})
		return
	}
	root := e.actors.RootOf(cur.Root)

	// The beam stage is committed; leaving no longer cancels it.
	if cur.Stage < model.StageBeam && !e.stackInside(root, src) {
		e.drop(cur, fail(ErrCanceled, "sequence canceled (left trigger column)."), root)
		return
	}

	if cur.cues.advance(cur.Stage) {
		e.hooks.emit(Event{
			Kind:        EventCue,
			Tick:        e.clock.GlobalTicks(),
			Source:      cur.Source,
			Destination: cur.Destination,
			Group:       cur.Group,
			Stage:       cur.Stage,
			Scale:       cur.Scale,
		})
	}

	cur.Timer++
	if cur.Timer < e.cfg.DwellTicks[cur.Stage] {
		return
	}
	if cur.Stage < model.StageBeam {
		cur.Stage++
		cur.Timer = 0
		return
	}
	e.commit(cur, root)
}

// drop removes a transport that never departed. No cooldown is charged.
func (e *Engine) drop(cur *Pending, f *Failure, notify model.ActorID) {
	e.queues.Pop(cur)
	e.edge.MarkLeft(cur.Source, cur.Group)
	e.abort(cur, f, notify)
}

func (e *Engine) abort(cur *Pending, f *Failure, notify model.ActorID) {
	if notify != (model.ActorID{}) {
		e.actors.Notify(notify, "Teleporter: "+f.Message)
	}
	e.log.Info().
		Str("source", cur.Source.String()).
		Str("group", cur.Group.String()).
		Str("stage", cur.Stage.String()).
		Str("code", f.Code).
		Msg("transport aborted")
	e.hooks.emit(Event{
		Kind:        EventAbort,
		Tick:        e.clock.GlobalTicks(),
		Source:      cur.Source,
		Destination: cur.Destination,
		Group:       cur.Group,
		Stage:       cur.Stage,
		Code:        f.Code,
		Message:     f.Message,
	})
}

func (e *Engine) commit(cur *Pending, root model.ActorID) {
	if e.world.CellType(cur.Destination) != model.CellLandingPad {
		// The group never left; it stays armed so it has to step out before retrying.
		e.queues.Pop(cur)
		e.abort(cur, fail(ErrDestinationMissing, "destination pad missing."), root)
		return
	}

	_, from, _ := e.actors.Position(root)
	snap := stack.Capture(e.actors, root, e.cfg.MaxStackMembers)
	dest := cur.Destination.Up().Center()
	if err := snap.Apply(e.actors, cur.Destination.Dim, dest, e.cfg.RiderYStep); err != nil {
		e.queues.Pop(cur)
		e.abort(cur, fail(ErrRelocationRefused, "relocation refused (%v).", err), root)
		return
	}

	now := e.clock.GlobalTicks()
	until := now + e.cfg.CooldownTicks
	e.cooldowns.Set(cur.Group, until)
	e.queues.Pop(cur)
	e.edge.MarkLeft(cur.Source, cur.Group)

	e.log.Info().
		Str("source", cur.Source.String()).
		Str("destination", cur.Destination.String()).
		Str("group", cur.Group.String()).
		Int("members", len(snap.Members)).
		Uint64("cooldown_until", until).
		Msg("transport committed")
	e.hooks.emit(Event{
		Kind:        EventCommit,
		Tick:        now,
		Source:      cur.Source,
		Destination: cur.Destination,
		Group:       cur.Group,
		Stage:       cur.Stage,
		Scale:       cur.Scale,
		Members:     len(snap.Members),
	})
	e.hooks.commit(Commit{
		Tick:          now,
		Source:        cur.Source,
		Destination:   cur.Destination,
		Group:         cur.Group,
		From:          from,
		To:            dest,
		Members:       snap.Members,
		CooldownUntil: until,
	})
}
