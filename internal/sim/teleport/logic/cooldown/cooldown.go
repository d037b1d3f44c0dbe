// Package cooldown tracks, per group, the global tick before which no source may transport
// the group again.
package cooldown

import (
	"voxelgate.ai/internal/sim/teleport/logic/mathx"
	"voxelgate.ai/internal/sim/teleport/logic/shard"
	"voxelgate.ai/internal/sim/teleport/model"
)

// DefaultWindowTicks is 5s at 20 ticks per second.
const DefaultWindowTicks = 100

type Registry struct {
	until *shard.Map[model.GroupID, uint64]
}

func NewRegistry() *Registry {
	return &Registry{until: shard.New[model.GroupID, uint64](mathx.HashID)}
}

// Active reports whether g is still cooling down at global tick now.
func (r *Registry) Active(g model.GroupID, now uint64) bool {
	until, ok := r.until.Load(g)
	return ok && now < until
}

// Until returns the stored deadline (0 when none).
func (r *Registry) Until(g model.GroupID) uint64 {
	until, _ := r.until.Load(g)
	return until
}

// Set raises g's deadline to until. Deadlines never move backwards.
func (r *Registry) Set(g model.GroupID, until uint64) {
	r.until.Update(g, func(cur uint64, ok bool) (uint64, bool) {
		if ok && cur >= until {
			return cur, true
		}
		return until, true
	})
}

// Prune drops deadlines that have passed; it returns how many were removed.
func (r *Registry) Prune(now uint64) int {
	var expired []model.GroupID
	r.until.Range(func(g model.GroupID, until uint64) bool {
		if now >= until {
			expired = append(expired, g)
		}
		return true
	})
	n := 0
	for _, g := range expired {
		r.until.Update(g, func(cur uint64, ok bool) (uint64, bool) {
			if ok && now >= cur {
				n++
				return 0, false
			}
			return cur, ok
		})
	}
	return n
}

func (r *Registry) Len() int { return r.until.Len() }
