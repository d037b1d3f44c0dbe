// Package stack moves a whole mount hierarchy (a root plus every transitive rider) as one
// unit.
package stack

import (
	"errors"

	"voxelgate.ai/internal/sim/teleport/model"
)

// DefaultMaxMembers bounds a capture even if rider links form a cycle.
const DefaultMaxMembers = 64

var (
	ErrMemberLost    = errors.New("stack member no longer alive")
	ErrStackTooLarge = errors.New("mount stack exceeds member cap")
)

type Body interface {
	Alive(model.ActorID) bool
	Riders(model.ActorID) []model.ActorID
	VehicleOf(model.ActorID) (model.ActorID, bool)
	MoveTo(id model.ActorID, dim string, pos model.Vec3)
	Mount(child, parent model.ActorID)
}

// Snapshot is the rider tree as it was before anything moved.
type Snapshot struct {
	Root model.ActorID
	// Members lists the root first, then riders in depth-first order.
	Members   []model.ActorID
	Parent    map[model.ActorID]model.ActorID
	Truncated bool
}

// Capture walks root's riders with an explicit stack and a visited set.
func Capture(body Body, root model.ActorID, maxMembers int) Snapshot {
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	s := Snapshot{
		Root:   root,
		Parent: map[model.ActorID]model.ActorID{},
	}
	seen := map[model.ActorID]bool{root: true}
	todo := []model.ActorID{root}
	for len(todo) > 0 {
		cur := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if len(s.Members) >= maxMembers {
			s.Truncated = true
			break
		}
		s.Members = append(s.Members, cur)

		riders := body.Riders(cur)
		for i := len(riders) - 1; i >= 0; i-- {
			r := riders[i]
			if seen[r] {
				continue
			}
			seen[r] = true
			s.Parent[r] = cur
			todo = append(todo, r)
		}
	}
	return s
}

// Apply moves the root to dest, stacks every rider at small vertical steps above it, and
// re-mounts riders whose vehicle link was lost during the move. Nothing moves unless every
// captured member is still alive.
func (s Snapshot) Apply(body Body, dim string, dest model.Vec3, yStep float64) error {
	if s.Truncated {
		return ErrStackTooLarge
	}
	for _, id := range s.Members {
		if !body.Alive(id) {
			return ErrMemberLost
		}
	}
	if len(s.Members) == 0 {
		return ErrMemberLost
	}

	body.MoveTo(s.Root, dim, dest)
	for i := 1; i < len(s.Members); i++ {
		body.MoveTo(s.Members[i], dim, dest.Add(model.Vec3{Y: yStep * float64(i)}))
	}
	for i := 1; i < len(s.Members); i++ {
		child := s.Members[i]
		parent, ok := s.Parent[child]
		if !ok {
			continue
		}
		if cur, mounted := body.VehicleOf(child); !mounted || cur != parent {
			body.Mount(child, parent)
		}
	}
	return nil
}

// Relocate captures and applies in one step.
func Relocate(body Body, root model.ActorID, dim string, dest model.Vec3, yStep float64, maxMembers int) (Snapshot, error) {
	s := Capture(body, root, maxMembers)
	return s, s.Apply(body, dim, dest, yStep)
}
