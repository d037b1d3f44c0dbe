package model

import (
	"fmt"

	"github.com/google/uuid"
)

// ActorID identifies a live actor in any dimension.
type ActorID = uuid.UUID

// GroupID is the ActorID of the root of a mount stack.
type GroupID = uuid.UUID

// Location is a cell coordinate inside one dimension.
type Location struct {
	Dim string `json:"dim" yaml:"dim"`
	X   int    `json:"x" yaml:"x"`
	Y   int    `json:"y" yaml:"y"`
	Z   int    `json:"z" yaml:"z"`
}

func (l Location) Offset(dx, dy, dz int) Location {
	return Location{Dim: l.Dim, X: l.X + dx, Y: l.Y + dy, Z: l.Z + dz}
}

func (l Location) Up() Location { return l.Offset(0, 1, 0) }

// Manhattan ignores the dimension; callers compare same-dimension locations.
func (l Location) Manhattan(o Location) int {
	return absInt(l.X-o.X) + absInt(l.Y-o.Y) + absInt(l.Z-o.Z)
}

func (l Location) DistSq(o Location) int64 {
	dx := int64(l.X - o.X)
	dy := int64(l.Y - o.Y)
	dz := int64(l.Z - o.Z)
	return dx*dx + dy*dy + dz*dz
}

// Region returns the 16x16 column region containing l.
func (l Location) Region() RegionKey {
	return RegionKey{Dim: l.Dim, X: l.X >> 4, Z: l.Z >> 4}
}

// Center is the middle of the cell's top face.
func (l Location) Center() Vec3 {
	return Vec3{X: float64(l.X) + 0.5, Y: float64(l.Y), Z: float64(l.Z) + 0.5}
}

func (l Location) String() string {
	return fmt.Sprintf("%s@%d,%d,%d", l.Dim, l.X, l.Y, l.Z)
}

// RegionKey addresses a loadable 16x16 column region.
type RegionKey struct {
	Dim string `json:"dim"`
	X   int    `json:"x"`
	Z   int    `json:"z"`
}

func (k RegionKey) String() string {
	return fmt.Sprintf("%s|%d,%d", k.Dim, k.X, k.Z)
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Box is an axis-aligned box; Max is exclusive.
type Box struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

func (b Box) Intersects(o Box) bool {
	return b.Min.X < o.Max.X && b.Max.X > o.Min.X &&
		b.Min.Y < o.Max.Y && b.Max.Y > o.Min.Y &&
		b.Min.Z < o.Max.Z && b.Max.Z > o.Min.Z
}

// BoxAt builds an actor bounding box centered on pos horizontally, standing on pos.Y.
func BoxAt(pos Vec3, width, height float64) Box {
	hw := width / 2
	return Box{
		Min: Vec3{X: pos.X - hw, Y: pos.Y, Z: pos.Z - hw},
		Max: Vec3{X: pos.X + hw, Y: pos.Y + height, Z: pos.Z + hw},
	}
}

type CellType uint8

const (
	CellEmpty CellType = iota
	CellSolid
	CellRelay
	CellNode
	CellTerminal
	CellSource
	CellLandingPad
)

var cellNames = map[CellType]string{
	CellEmpty:      "EMPTY",
	CellSolid:      "SOLID",
	CellRelay:      "RELAY",
	CellNode:       "NODE",
	CellTerminal:   "TERMINAL",
	CellSource:     "SOURCE",
	CellLandingPad: "LANDING_PAD",
}

func (c CellType) String() string {
	if s, ok := cellNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CELL(%d)", uint8(c))
}

// ParseCellType accepts the names returned by CellType.String.
func ParseCellType(s string) (CellType, bool) {
	for c, name := range cellNames {
		if name == s {
			return c, true
		}
	}
	return CellEmpty, false
}

// Stage is one phase of the pre-transport sequence.
type Stage uint8

const (
	StageLarge Stage = iota
	StageMedium
	StageSmall
	StageBeam

	StageCount = 4
)

func (s Stage) String() string {
	switch s {
	case StageLarge:
		return "LARGE"
	case StageMedium:
		return "MEDIUM"
	case StageSmall:
		return "SMALL"
	case StageBeam:
		return "BEAM"
	}
	return fmt.Sprintf("STAGE(%d)", uint8(s))
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
