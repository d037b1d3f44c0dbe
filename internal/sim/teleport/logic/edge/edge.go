// Package edge remembers which groups are currently inside a source's trigger volume so a
// transport attempt fires once per entry rather than once per tick.
package edge

import (
	"bytes"
	"sort"

	"voxelgate.ai/internal/sim/teleport/logic/mathx"
	"voxelgate.ai/internal/sim/teleport/logic/shard"
	"voxelgate.ai/internal/sim/teleport/model"
)

type groupSet map[model.GroupID]struct{}

type Tracker struct {
	inside *shard.Map[model.Location, groupSet]
}

func NewTracker() *Tracker {
	return &Tracker{inside: shard.New[model.Location, groupSet](mathx.HashLocation)}
}

func (t *Tracker) Inside(loc model.Location, g model.GroupID) bool {
	in := false
	t.inside.View(loc, func(set groupSet, ok bool) {
		if ok {
			_, in = set[g]
		}
	})
	return in
}

func (t *Tracker) MarkEntered(loc model.Location, g model.GroupID) {
	t.inside.Update(loc, func(set groupSet, ok bool) (groupSet, bool) {
		if !ok {
			set = groupSet{}
		}
		set[g] = struct{}{}
		return set, true
	})
}

// MarkLeft forgets g at loc and drops the location once nobody is inside.
func (t *Tracker) MarkLeft(loc model.Location, g model.GroupID) {
	t.inside.Update(loc, func(set groupSet, ok bool) (groupSet, bool) {
		if !ok {
			return nil, false
		}
		delete(set, g)
		return set, len(set) > 0
	})
}

// Clear forgets every group at loc.
func (t *Tracker) Clear(loc model.Location) {
	t.inside.Delete(loc)
}

// Members returns the groups inside loc in byte order.
func (t *Tracker) Members(loc model.Location) []model.GroupID {
	var out []model.GroupID
	t.inside.View(loc, func(set groupSet, ok bool) {
		if !ok {
			return
		}
		out = make([]model.GroupID, 0, len(set))
		for g := range set {
			out = append(out, g)
		}
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Locations reports how many source locations currently hold members.
func (t *Tracker) Locations() int { return t.inside.Len() }
