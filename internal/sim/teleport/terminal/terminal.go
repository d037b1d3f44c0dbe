// Package terminal holds the destination list a terminal cell exposes to the connectivity
// resolver: a bounded list of landing pads and the currently selected one.
package terminal

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"voxelgate.ai/internal/sim/teleport/model"
)

const MaxPads = 128

var (
	ErrFull           = errors.New("terminal pad list is full")
	ErrNoBinding      = errors.New("no landing pad bound")
	ErrCrossDimension = errors.New("landing pad is in a different dimension")
)

type Pad struct {
	Pos  model.Location `json:"pos" yaml:"pos"`
	Name string         `json:"name" yaml:"name"`
}

type Terminal struct {
	mu       sync.RWMutex
	pads     []Pad
	selected int
}

func New() *Terminal {
	return &Terminal{selected: -1}
}

func defaultName(p model.Location) string {
	return fmt.Sprintf("Pad %d %d %d", p.X, p.Y, p.Z)
}

// AddPad appends a pad, or re-selects (and optionally renames) an existing one at the same
// position. The first pad added becomes the selection.
func (t *Terminal) AddPad(pos model.Location, name string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	name = strings.TrimSpace(name)
	if i := t.indexLocked(pos); i >= 0 {
		if name != "" {
			t.pads[i].Name = name
		}
		t.selected = i
		return i, nil
	}
	if len(t.pads) >= MaxPads {
		return -1, ErrFull
	}
	if name == "" {
		name = defaultName(pos)
	}
	t.pads = append(t.pads, Pad{Pos: pos, Name: name})
	if t.selected == -1 {
		t.selected = 0
	}
	return len(t.pads) - 1, nil
}

// RemovePad drops the pad at idx and clamps the selection.
func (t *Terminal) RemovePad(idx int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.pads) {
		return false
	}
	t.pads = append(t.pads[:idx], t.pads[idx+1:]...)
	switch {
	case len(t.pads) == 0:
		t.selected = -1
	case t.selected >= len(t.pads):
		t.selected = len(t.pads) - 1
	}
	return true
}

// Select chooses idx; -1 clears the selection.
func (t *Terminal) Select(idx int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < -1 || idx >= len(t.pads) {
		return false
	}
	t.selected = idx
	return true
}

func (t *Terminal) Selected() (model.Location, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.selected < 0 || t.selected >= len(t.pads) {
		return model.Location{}, false
	}
	return t.pads[t.selected].Pos, true
}

func (t *Terminal) SelectedIndex() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected
}

func (t *Terminal) IndexOf(pos model.Location) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.indexLocked(pos)
}

func (t *Terminal) indexLocked(pos model.Location) int {
	for i, p := range t.pads {
		if p.Pos == pos {
			return i
		}
	}
	return -1
}

func (t *Terminal) Pads() []Pad {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Pad(nil), t.pads...)
}

// Linker carries one bound landing pad to a terminal in the same dimension.
type Linker struct {
	pad   model.Location
	bound bool
}

func (l *Linker) Bind(pad model.Location) {
	l.pad = pad
	l.bound = true
}

func (l *Linker) Bound() (model.Location, bool) { return l.pad, l.bound }

// LinkTo adds the bound pad to t (which lives in termDim) and selects it.
func (l *Linker) LinkTo(t *Terminal, termDim string) (int, error) {
	if !l.bound {
		return -1, ErrNoBinding
	}
	if l.pad.Dim != termDim {
		return -1, ErrCrossDimension
	}
	idx, err := t.AddPad(l.pad, "")
	if err != nil {
		return -1, err
	}
	t.Select(idx)
	return idx, nil
}
