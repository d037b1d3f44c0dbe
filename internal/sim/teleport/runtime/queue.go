package runtime

import (
	"voxelgate.ai/internal/sim/teleport/logic/mathx"
	"voxelgate.ai/internal/sim/teleport/logic/shard"
	"voxelgate.ai/internal/sim/teleport/model"
)

// cueProgress counts the stage cues already fired. Cues fire strictly in stage order, so
// "stage n fired while stage n-1 did not" cannot be represented.
type cueProgress uint8

func (c cueProgress) fired(s model.Stage) bool { return uint8(s) < uint8(c) }

// advance marks s fired if it is the next cue due and reports whether it did.
func (c *cueProgress) advance(s model.Stage) bool {
	if uint8(s) != uint8(*c) {
		return false
	}
	*c++
	return true
}

// Pending is one queued transport. Only the dimension goroutine that owns Source mutates it.
type Pending struct {
	Group       model.GroupID
	Root        model.ActorID
	Source      model.Location
	Destination model.Location
	Scale       float64
	Stage       model.Stage
	Timer       int
	QueuedTick  uint64

	cues cueProgress
}

// PendingView is a read-only copy for observers.
type PendingView struct {
	Group       model.GroupID  `json:"group"`
	Destination model.Location `json:"destination"`
	Stage       model.Stage    `json:"stage"`
	Timer       int            `json:"timer"`
	Scale       float64        `json:"scale"`
	CuesFired   int            `json:"cues_fired"`
}

func (p *Pending) view() PendingView {
	return PendingView{
		Group:       p.Group,
		Destination: p.Destination,
		Stage:       p.Stage,
		Timer:       p.Timer,
		Scale:       p.Scale,
		CuesFired:   int(p.cues),
	}
}

// Queues holds the per-source FIFOs plus the set of groups in flight anywhere.
type Queues struct {
	bySource *shard.Map[model.Location, []*Pending]
	inFlight *shard.Map[model.GroupID, model.Location]
}

func NewQueues() *Queues {
	return &Queues{
		bySource: shard.New[model.Location, []*Pending](mathx.HashLocation),
		inFlight: shard.New[model.GroupID, model.Location](mathx.HashID),
	}
}

// Push appends p to its source queue unless the group is already in flight somewhere.
func (q *Queues) Push(p *Pending) bool {
	claimed := false
	q.inFlight.Update(p.Group, func(cur model.Location, ok bool) (model.Location, bool) {
		if ok {
			return cur, true
		}
		claimed = true
		return p.Source, true
	})
	if !claimed {
		return false
	}
	q.bySource.Update(p.Source, func(list []*Pending, _ bool) ([]*Pending, bool) {
		return append(list, p), true
	})
	return true
}

func (q *Queues) Head(src model.Location) *Pending {
	var head *Pending
	q.bySource.View(src, func(list []*Pending, ok bool) {
		if ok && len(list) > 0 {
			head = list[0]
		}
	})
	return head
}

// Pop removes p from the head of its source queue and releases its group.
func (q *Queues) Pop(p *Pending) {
	q.bySource.Update(p.Source, func(list []*Pending, ok bool) ([]*Pending, bool) {
		if !ok || len(list) == 0 || list[0] != p {
			return list, ok
		}
		list[0] = nil
		list = list[1:]
		return list, len(list) > 0
	})
	q.inFlight.Update(p.Group, func(cur model.Location, ok bool) (model.Location, bool) {
		return cur, ok && cur != p.Source
	})
}

func (q *Queues) Len(src model.Location) int {
	n := 0
	q.bySource.View(src, func(list []*Pending, _ bool) { n = len(list) })
	return n
}

// InFlight returns the source holding g's pending transport, if any.
func (q *Queues) InFlight(g model.GroupID) (model.Location, bool) {
	return q.inFlight.Load(g)
}

// Snapshot copies the queue at src. Call it from the goroutine that ticks src.
func (q *Queues) Snapshot(src model.Location) []PendingView {
	var out []PendingView
	q.bySource.View(src, func(list []*Pending, _ bool) {
		for _, p := range list {
			out = append(out, p.view())
		}
	})
	return out
}
