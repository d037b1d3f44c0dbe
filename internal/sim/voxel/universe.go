// Package voxel is an in-memory, multi-dimension world that satisfies the teleport
// engine's collaborator interfaces. The server uses it as its simulation state and tests use
// it as a harness.
package voxel

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/sim/teleport/terminal"
)

type Actor struct {
	ID      model.ActorID
	Name    string
	Player  bool
	Dim     string
	Pos     model.Vec3
	Width   float64
	Height  float64
	Alive   bool
	Vehicle model.ActorID
	Riders  []model.ActorID
}

type Dimension struct {
	ID   string
	tick uint64

	cells     map[model.Location]model.CellType
	terminals map[model.Location]*terminal.Terminal
	powered   map[model.Location]bool
	unloaded  map[model.RegionKey]bool
	forced    map[model.RegionKey]bool
	loading   map[model.RegionKey]bool
}

func newDimension(id string) *Dimension {
	return &Dimension{
		ID:        id,
		cells:     map[model.Location]model.CellType{},
		terminals: map[model.Location]*terminal.Terminal{},
		powered:   map[model.Location]bool{},
		unloaded:  map[model.RegionKey]bool{},
		forced:    map[model.RegionKey]bool{},
		loading:   map[model.RegionKey]bool{},
	}
}

// Universe owns every dimension and every actor.
type Universe struct {
	mu      sync.RWMutex
	rootDim string
	dims    map[string]*Dimension
	actors  map[model.ActorID]*Actor
	inbox   map[model.ActorID][]string
}

// NewUniverse creates the given dimensions; rootDim's tick counter is the global clock.
func NewUniverse(rootDim string, others ...string) *Universe {
	u := &Universe{
		rootDim: rootDim,
		dims:    map[string]*Dimension{rootDim: newDimension(rootDim)},
		actors:  map[model.ActorID]*Actor{},
		inbox:   map[model.ActorID][]string{},
	}
	for _, id := range others {
		if _, ok := u.dims[id]; !ok {
			u.dims[id] = newDimension(id)
		}
	}
	return u
}

func (u *Universe) RootDimension() string { return u.rootDim }

func (u *Universe) Dimensions() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, 0, len(u.dims))
	for id := range u.dims {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (u *Universe) dim(id string) *Dimension {
	return u.dims[id]
}

// Tick advances dim's clock and completes region loads requested before this tick.
func (u *Universe) Tick(dim string) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	d := u.dim(dim)
	if d == nil {
		return 0, fmt.Errorf("unknown dimension %q", dim)
	}
	d.tick++
	for k := range d.loading {
		delete(d.unloaded, k)
		delete(d.loading, k)
	}
	return d.tick, nil
}

func (u *Universe) Ticks(dim string) uint64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if d := u.dim(dim); d != nil {
		return d.tick
	}
	return 0
}

// GlobalTicks is the root dimension's tick counter.
func (u *Universe) GlobalTicks() uint64 { return u.Ticks(u.rootDim) }

/* ---------- cells ---------- */

func (u *Universe) SetCell(loc model.Location, c model.CellType) {
	u.mu.Lock()
	defer u.mu.Unlock()
	d := u.dim(loc.Dim)
	if d == nil {
		return
	}
	if c == model.CellEmpty {
		delete(d.cells, loc)
	} else {
		d.cells[loc] = c
	}
	if c != model.CellTerminal {
		delete(d.terminals, loc)
	}
}

// PlaceTerminal puts a terminal cell at loc and returns its pad list.
func (u *Universe) PlaceTerminal(loc model.Location) *terminal.Terminal {
	u.mu.Lock()
	defer u.mu.Unlock()
	d := u.dim(loc.Dim)
	if d == nil {
		return nil
	}
	d.cells[loc] = model.CellTerminal
	t := d.terminals[loc]
	if t == nil {
		t = terminal.New()
		d.terminals[loc] = t
	}
	return t
}

func (u *Universe) Terminal(loc model.Location) *terminal.Terminal {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if d := u.dim(loc.Dim); d != nil {
		return d.terminals[loc]
	}
	return nil
}

func (u *Universe) CellType(loc model.Location) model.CellType {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if d := u.dim(loc.Dim); d != nil {
		return d.cells[loc]
	}
	return model.CellEmpty
}

func (u *Universe) SelectedDestination(loc model.Location) (model.Location, bool) {
	t := u.Terminal(loc)
	if t == nil {
		return model.Location{}, false
	}
	return t.Selected()
}

func (u *Universe) SetPowered(loc model.Location, on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	d := u.dim(loc.Dim)
	if d == nil {
		return
	}
	if on {
		d.powered[loc] = true
	} else {
		delete(d.powered, loc)
	}
}

func (u *Universe) Powered(loc model.Location) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if d := u.dim(loc.Dim); d != nil {
		return d.powered[loc]
	}
	return false
}

/* ---------- regions ---------- */

// UnloadRegion evicts the region holding loc unless something forces it resident.
func (u *Universe) UnloadRegion(loc model.Location) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	d := u.dim(loc.Dim)
	if d == nil {
		return false
	}
	k := loc.Region()
	if d.forced[k] {
		return false
	}
	d.unloaded[k] = true
	return true
}

func (u *Universe) RegionLoaded(loc model.Location) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	d := u.dim(loc.Dim)
	return d != nil && !d.unloaded[loc.Region()]
}

// RequestRegionLoad schedules the region to load on the dimension's next tick.
func (u *Universe) RequestRegionLoad(loc model.Location) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if d := u.dim(loc.Dim); d != nil && d.unloaded[loc.Region()] {
		d.loading[loc.Region()] = true
	}
}

func (u *Universe) SetRegionForced(k model.RegionKey, forced bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	d := u.dim(k.Dim)
	if d == nil {
		return
	}
	if forced {
		d.forced[k] = true
		delete(d.unloaded, k)
	} else {
		delete(d.forced, k)
	}
}

func (u *Universe) RegionForced(k model.RegionKey) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	d := u.dim(k.Dim)
	return d != nil && d.forced[k]
}

/* ---------- actors ---------- */

type SpawnSpec struct {
	Name   string
	Player bool
	Dim    string
	Pos    model.Vec3
	Width  float64
	Height float64
}

func (u *Universe) Spawn(s SpawnSpec) model.ActorID {
	u.mu.Lock()
	defer u.mu.Unlock()
	id := uuid.New()
	u.actors[id] = &Actor{
		ID:     id,
		Name:   s.Name,
		Player: s.Player,
		Dim:    s.Dim,
		Pos:    s.Pos,
		Width:  s.Width,
		Height: s.Height,
		Alive:  true,
	}
	return id
}

// Actor returns a copy of the actor's current state.
func (u *Universe) Actor(id model.ActorID) (Actor, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	a := u.actors[id]
	if a == nil {
		return Actor{}, false
	}
	cp := *a
	cp.Riders = append([]model.ActorID(nil), a.Riders...)
	return cp, true
}

func (u *Universe) Kill(id model.ActorID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if a := u.actors[id]; a != nil {
		a.Alive = false
		u.dismountLocked(a)
	}
}

// Walk moves an actor and carries its riders along, leaving mount links intact.
func (u *Universe) Walk(id model.ActorID, pos model.Vec3) {
	u.mu.Lock()
	defer u.mu.Unlock()
	a := u.actors[id]
	if a == nil {
		return
	}
	delta := model.Vec3{X: pos.X - a.Pos.X, Y: pos.Y - a.Pos.Y, Z: pos.Z - a.Pos.Z}
	seen := map[model.ActorID]bool{}
	todo := []model.ActorID{id}
	for len(todo) > 0 {
		cur := u.actors[todo[len(todo)-1]]
		todo = todo[:len(todo)-1]
		if cur == nil || seen[cur.ID] {
			continue
		}
		seen[cur.ID] = true
		cur.Pos = cur.Pos.Add(delta)
		todo = append(todo, cur.Riders...)
	}
}

func (u *Universe) Alive(id model.ActorID) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	a := u.actors[id]
	return a != nil && a.Alive
}

func (u *Universe) Riders(id model.ActorID) []model.ActorID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if a := u.actors[id]; a != nil {
		return append([]model.ActorID(nil), a.Riders...)
	}
	return nil
}

func (u *Universe) VehicleOf(id model.ActorID) (model.ActorID, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	a := u.actors[id]
	if a == nil || a.Vehicle == uuid.Nil {
		return uuid.Nil, false
	}
	return a.Vehicle, true
}

func (u *Universe) RootOf(id model.ActorID) model.ActorID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	cur := id
	seen := map[model.ActorID]bool{}
	for {
		a := u.actors[cur]
		if a == nil || a.Vehicle == uuid.Nil || seen[cur] {
			return cur
		}
		seen[cur] = true
		cur = a.Vehicle
	}
}

func (u *Universe) Position(id model.ActorID) (string, model.Vec3, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	a := u.actors[id]
	if a == nil {
		return "", model.Vec3{}, false
	}
	return a.Dim, a.Pos, true
}

func (u *Universe) Bounds(id model.ActorID) (string, model.Box, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	a := u.actors[id]
	if a == nil || !a.Alive {
		return "", model.Box{}, false
	}
	return a.Dim, model.BoxAt(a.Pos, a.Width, a.Height), true
}

func (u *Universe) Size(id model.ActorID) (float64, float64) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if a := u.actors[id]; a != nil {
		return a.Width, a.Height
	}
	return 0, 0
}

// MoveTo teleports an actor. Like most hosts, teleporting detaches the actor from its
// vehicle and ejects its riders.
func (u *Universe) MoveTo(id model.ActorID, dim string, pos model.Vec3) {
	u.mu.Lock()
	defer u.mu.Unlock()
	a := u.actors[id]
	if a == nil {
		return
	}
	u.dismountLocked(a)
	for _, r := range append([]model.ActorID(nil), a.Riders...) {
		if ra := u.actors[r]; ra != nil {
			u.dismountLocked(ra)
		}
	}
	a.Dim = dim
	a.Pos = pos
}

// Mount makes child ride parent. Riders take the vehicle's dimension and position.
func (u *Universe) Mount(child, parent model.ActorID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, p := u.actors[child], u.actors[parent]
	if c == nil || p == nil || child == parent {
		return
	}
	u.dismountLocked(c)
	c.Vehicle = parent
	c.Dim = p.Dim
	c.Pos = p.Pos.Add(model.Vec3{Y: p.Height})
	p.Riders = append(p.Riders, child)
}

func (u *Universe) Dismount(id model.ActorID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if a := u.actors[id]; a != nil {
		u.dismountLocked(a)
	}
}

func (u *Universe) dismountLocked(a *Actor) {
	if a.Vehicle == uuid.Nil {
		return
	}
	if v := u.actors[a.Vehicle]; v != nil {
		for i, r := range v.Riders {
			if r == a.ID {
				v.Riders = append(v.Riders[:i:i], v.Riders[i+1:]...)
				break
			}
		}
	}
	a.Vehicle = uuid.Nil
}

func (u *Universe) ActorsInVolume(dim string, box model.Box) []model.ActorID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var out []model.ActorID
	for id, a := range u.actors {
		if !a.Alive || a.Dim != dim {
			continue
		}
		if model.BoxAt(a.Pos, a.Width, a.Height).Intersects(box) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Notify delivers a user-visible message; only players keep them.
func (u *Universe) Notify(id model.ActorID, msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if a := u.actors[id]; a != nil && a.Player {
		u.inbox[id] = append(u.inbox[id], msg)
	}
}

// Messages drains id's notifications.
func (u *Universe) Messages(id model.ActorID) []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := u.inbox[id]
	delete(u.inbox, id)
	return out
}
