package voxel

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelgate.ai/internal/sim/teleport/model"
)

// Layout seeds a universe from world.yaml.
type Layout struct {
	RootDimension string            `yaml:"root_dimension"`
	Dimensions    []DimensionLayout `yaml:"dimensions"`
}

type DimensionLayout struct {
	ID        string         `yaml:"id"`
	Cells     []CellSpec     `yaml:"cells"`
	Lines     []LineSpec     `yaml:"lines,omitempty"`
	Sources   []SourceSpec   `yaml:"sources,omitempty"`
	Pads      [][3]int       `yaml:"landing_pads,omitempty"`
	Terminals []TerminalSpec `yaml:"terminals,omitempty"`
	Actors    []ActorSpec    `yaml:"actors,omitempty"`
	Unloaded  [][3]int       `yaml:"unloaded,omitempty"`
}

type CellSpec struct {
	Type string `yaml:"type"`
	At   [3]int `yaml:"at"`
}

// LineSpec fills an axis-aligned run of cells from From to To inclusive.
type LineSpec struct {
	Type string `yaml:"type"`
	From [3]int `yaml:"from"`
	To   [3]int `yaml:"to"`
}

type SourceSpec struct {
	At      [3]int `yaml:"at"`
	Powered bool   `yaml:"powered"`
}

type TerminalSpec struct {
	At       [3]int   `yaml:"at"`
	Pads     [][3]int `yaml:"pads"`
	Selected int      `yaml:"selected"`
}

type ActorSpec struct {
	Name   string     `yaml:"name"`
	Player bool       `yaml:"player"`
	Pos    [3]float64 `yaml:"pos"`
	Width  float64    `yaml:"width"`
	Height float64    `yaml:"height"`
	Rides  string     `yaml:"rides,omitempty"`
}

// Placed lists the markers a layout created, for the discovery index.
type Placed struct {
	Sources []model.Location
	Pads    []model.Location
	Actors  map[string]model.ActorID
}

func LoadLayout(path string) (Layout, error) {
	var l Layout
	raw, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return l, fmt.Errorf("world.yaml: %w", err)
	}
	if strings.TrimSpace(l.RootDimension) == "" {
		return l, fmt.Errorf("world.yaml: root_dimension is required")
	}
	return l, nil
}

// Build creates a universe holding every dimension in l and places its contents.
func Build(l Layout) (*Universe, Placed, error) {
	others := make([]string, 0, len(l.Dimensions))
	for _, d := range l.Dimensions {
		others = append(others, d.ID)
	}
	u := NewUniverse(l.RootDimension, others...)
	placed := Placed{Actors: map[string]model.ActorID{}}

	at := func(dim string, p [3]int) model.Location {
		return model.Location{Dim: dim, X: p[0], Y: p[1], Z: p[2]}
	}
	for _, d := range l.Dimensions {
		for _, c := range d.Cells {
			ct, ok := model.ParseCellType(strings.ToUpper(c.Type))
			if !ok {
				return nil, placed, fmt.Errorf("dimension %s: unknown cell type %q", d.ID, c.Type)
			}
			u.SetCell(at(d.ID, c.At), ct)
		}
		for _, ln := range d.Lines {
			ct, ok := model.ParseCellType(strings.ToUpper(ln.Type))
			if !ok {
				return nil, placed, fmt.Errorf("dimension %s: unknown cell type %q", d.ID, ln.Type)
			}
			if err := fillLine(u, d.ID, ln.From, ln.To, ct); err != nil {
				return nil, placed, fmt.Errorf("dimension %s: %w", d.ID, err)
			}
		}
		for _, s := range d.Sources {
			loc := at(d.ID, s.At)
			u.SetCell(loc, model.CellSource)
			u.SetPowered(loc, s.Powered)
			placed.Sources = append(placed.Sources, loc)
		}
		for _, p := range d.Pads {
			loc := at(d.ID, p)
			u.SetCell(loc, model.CellLandingPad)
			placed.Pads = append(placed.Pads, loc)
		}
		for _, ts := range d.Terminals {
			t := u.PlaceTerminal(at(d.ID, ts.At))
			for _, p := range ts.Pads {
				if _, err := t.AddPad(at(d.ID, p), ""); err != nil {
					return nil, placed, fmt.Errorf("dimension %s: terminal %v: %w", d.ID, ts.At, err)
				}
			}
			t.Select(ts.Selected)
		}
		for _, p := range d.Unloaded {
			u.UnloadRegion(at(d.ID, p))
		}
		for _, a := range d.Actors {
			w, h := a.Width, a.Height
			if w <= 0 {
				w = 0.6
			}
			if h <= 0 {
				h = 1.8
			}
			id := u.Spawn(SpawnSpec{
				Name:   a.Name,
				Player: a.Player,
				Dim:    d.ID,
				Pos:    model.Vec3{X: a.Pos[0], Y: a.Pos[1], Z: a.Pos[2]},
				Width:  w,
				Height: h,
			})
			placed.Actors[a.Name] = id
		}
		for _, a := range d.Actors {
			if a.Rides == "" {
				continue
			}
			parent, ok := placed.Actors[a.Rides]
			if !ok {
				return nil, placed, fmt.Errorf("dimension %s: %s rides unknown actor %q", d.ID, a.Name, a.Rides)
			}
			u.Mount(placed.Actors[a.Name], parent)
		}
	}
	return u, placed, nil
}

func fillLine(u *Universe, dim string, from, to [3]int, ct model.CellType) error {
	axes := 0
	for i := 0; i < 3; i++ {
		if from[i] != to[i] {
			axes++
		}
	}
	if axes > 1 {
		return fmt.Errorf("line %v..%v is not axis-aligned", from, to)
	}
	step := func(a, b int) int {
		switch {
		case b > a:
			return 1
		case b < a:
			return -1
		}
		return 0
	}
	d := [3]int{step(from[0], to[0]), step(from[1], to[1]), step(from[2], to[2])}
	p := from
	for {
		u.SetCell(model.Location{Dim: dim, X: p[0], Y: p[1], Z: p[2]}, ct)
		if p == to {
			return nil
		}
		p = [3]int{p[0] + d[0], p[1] + d[1], p[2] + d[2]}
	}
}
