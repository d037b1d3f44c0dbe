package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/sim/teleport/runtime"
)

//go:embed teleport.schema.json
var schemaJSON string

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version,omitempty"`

	TickRateHz int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	// PruneEveryTicks controls how often expired cooldowns are dropped.
	PruneEveryTicks int `yaml:"prune_every_ticks" json:"prune_every_ticks"`

	Teleport Teleport `yaml:"teleport" json:"teleport"`
}

type Teleport struct {
	RequirePower    bool       `yaml:"require_power" json:"require_power"`
	MaxMeshScan     int        `yaml:"max_mesh_scan" json:"max_mesh_scan"`
	RangePerNode    int        `yaml:"range_per_node" json:"range_per_node"`
	TriggerYStart   int        `yaml:"trigger_y_start" json:"trigger_y_start"`
	TriggerHeight   int        `yaml:"trigger_height" json:"trigger_height"`
	DwellTicks      DwellTicks `yaml:"dwell_ticks" json:"dwell_ticks"`
	CooldownTicks   int        `yaml:"cooldown_ticks" json:"cooldown_ticks"`
	MaxStackMembers int        `yaml:"max_stack_members" json:"max_stack_members"`
	RiderYStep      float64    `yaml:"rider_y_step" json:"rider_y_step"`
}

type DwellTicks struct {
	Large  int `yaml:"large" json:"large"`
	Medium int `yaml:"medium" json:"medium"`
	Small  int `yaml:"small" json:"small"`
	Beam   int `yaml:"beam" json:"beam"`
}

func Default() Tuning {
	c := runtime.DefaultConfig()
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		PruneEveryTicks: 200,
		Teleport: Teleport{
			RequirePower:  c.RequirePower,
			MaxMeshScan:   c.MaxMeshScan,
			RangePerNode:  c.RangePerNode,
			TriggerYStart: c.TriggerYStart,
			TriggerHeight: c.TriggerHeight,
			DwellTicks: DwellTicks{
				Large:  c.DwellTicks[model.StageLarge],
				Medium: c.DwellTicks[model.StageMedium],
				Small:  c.DwellTicks[model.StageSmall],
				Beam:   c.DwellTicks[model.StageBeam],
			},
			CooldownTicks:   int(c.CooldownTicks),
			MaxStackMembers: c.MaxStackMembers,
			RiderYStep:      c.RiderYStep,
		},
	}
}

// Load reads path over the defaults and validates the merged result against the embedded schema.
func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	schema, err := jsonschema.CompileString("teleport.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	// The validator wants decoded JSON values, not Go structs.
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	if strings.TrimSpace(t.ProtocolVersion) == "" {
		return fmt.Errorf("protocol_version is required")
	}
	return t.ToConfig().Validate()
}

// ToConfig converts to the engine's config.
func (t Tuning) ToConfig() runtime.Config {
	tp := t.Teleport
	return runtime.Config{
		RequirePower:    tp.RequirePower,
		MaxMeshScan:     tp.MaxMeshScan,
		RangePerNode:    tp.RangePerNode,
		TriggerYStart:   tp.TriggerYStart,
		TriggerHeight:   tp.TriggerHeight,
		DwellTicks:      [model.StageCount]int{tp.DwellTicks.Large, tp.DwellTicks.Medium, tp.DwellTicks.Small, tp.DwellTicks.Beam},
		CooldownTicks:   uint64(max(tp.CooldownTicks, 0)),
		MaxStackMembers: tp.MaxStackMembers,
		RiderYStep:      tp.RiderYStep,
	}
}
