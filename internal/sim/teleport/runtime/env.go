package runtime

import (
	"voxelgate.ai/internal/sim/teleport/logic/mesh"
	"voxelgate.ai/internal/sim/teleport/logic/stack"
	"voxelgate.ai/internal/sim/teleport/model"
)

// World is the cell-level view the engine reads. Every call carries its dimension in the
// location, so one implementation may serve many dimensions.
type World interface {
	mesh.Env
	ActorsInVolume(dim string, box model.Box) []model.ActorID
	Powered(model.Location) bool
	RegionLoaded(model.Location) bool
	// RequestRegionLoad starts an asynchronous load and returns immediately.
	RequestRegionLoad(model.Location)
}

// Actors exposes the mount hierarchy and lets the engine move and message actors.
type Actors interface {
	stack.Body
	// RootOf returns the outermost vehicle of id, or id itself when it rides nothing.
	RootOf(model.ActorID) model.ActorID
	Position(model.ActorID) (dim string, pos model.Vec3, ok bool)
	Bounds(model.ActorID) (dim string, box model.Box, ok bool)
	Size(model.ActorID) (width, height float64)
	Notify(model.ActorID, string)
}

// Clock is the single authoritative time base (the root dimension's tick counter).
type Clock interface {
	GlobalTicks() uint64
}

type EventKind string

const (
	EventQueued EventKind = "QUEUED"
	EventReject EventKind = "REJECT"
	EventCue    EventKind = "CUE"
	EventCommit EventKind = "COMMIT"
	EventAbort  EventKind = "ABORT"
)

type Event struct {
	Kind        EventKind      `json:"kind"`
	Tick        uint64         `json:"tick"`
	Source      model.Location `json:"source"`
	Destination model.Location `json:"destination,omitempty"`
	Group       model.GroupID  `json:"group"`
	Stage       model.Stage    `json:"stage"`
	Scale       float64        `json:"scale,omitempty"`
	Members     int            `json:"members,omitempty"`
	Code        string         `json:"code,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// Commit describes a completed relocation.
type Commit struct {
	Tick          uint64          `json:"tick"`
	Source        model.Location  `json:"source"`
	Destination   model.Location  `json:"destination"`
	Group         model.GroupID   `json:"group"`
	From          model.Vec3      `json:"from"`
	To            model.Vec3      `json:"to"`
	Members       []model.ActorID `json:"members"`
	CooldownUntil uint64          `json:"cooldown_until"`
}

type Hooks struct {
	OnEvent  func(Event)
	OnCommit func(Commit)
}

func (h Hooks) emit(ev Event) {
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}

func (h Hooks) commit(c Commit) {
	if h.OnCommit != nil {
		h.OnCommit(c)
	}
}
