package runtime

import (
	"fmt"

	"voxelgate.ai/internal/sim/teleport/logic/cooldown"
	"voxelgate.ai/internal/sim/teleport/logic/mesh"
	"voxelgate.ai/internal/sim/teleport/logic/stack"
	"voxelgate.ai/internal/sim/teleport/model"
)

type Config struct {
	RequirePower    bool
	MaxMeshScan     int
	RangePerNode    int
	TriggerYStart   int
	TriggerHeight   int
	DwellTicks      [model.StageCount]int
	CooldownTicks   uint64
	MaxStackMembers int
	RiderYStep      float64
}

func DefaultConfig() Config {
	return Config{
		RequirePower:    true,
		MaxMeshScan:     mesh.DefaultMaxVisited,
		RangePerNode:    10,
		TriggerYStart:   1,
		TriggerHeight:   5,
		DwellTicks:      [model.StageCount]int{10, 10, 10, 20},
		CooldownTicks:   cooldown.DefaultWindowTicks,
		MaxStackMembers: stack.DefaultMaxMembers,
		RiderYStep:      0.06,
	}
}

func (c Config) Validate() error {
	if c.MaxMeshScan <= 0 {
		return fmt.Errorf("max_mesh_scan must be > 0")
	}
	if c.RangePerNode <= 0 {
		return fmt.Errorf("range_per_node must be > 0")
	}
	if c.TriggerHeight <= 0 {
		return fmt.Errorf("trigger_height must be > 0")
	}
	for i, d := range c.DwellTicks {
		if d <= 0 {
			return fmt.Errorf("dwell ticks for stage %s must be > 0", model.Stage(i))
		}
	}
	if c.MaxStackMembers <= 0 {
		return fmt.Errorf("max_stack_members must be > 0")
	}
	return nil
}

// TriggerBox is the column above a source that arms it.
func (c Config) TriggerBox(src model.Location) model.Box {
	y1 := float64(src.Y + c.TriggerYStart)
	return model.Box{
		Min: model.Vec3{X: float64(src.X), Y: y1, Z: float64(src.Z)},
		Max: model.Vec3{X: float64(src.X + 1), Y: y1 + float64(c.TriggerHeight), Z: float64(src.Z + 1)},
	}
}
