package stack

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelgate.ai/internal/sim/teleport/model"
)

// ejectingBody mimics hosts where moving an actor detaches it from its vehicle and drops
// its own riders.
type ejectingBody struct {
	alive   map[model.ActorID]bool
	vehicle map[model.ActorID]model.ActorID
	riders  map[model.ActorID][]model.ActorID
	pos     map[model.ActorID]model.Vec3
	dim     map[model.ActorID]string
	moves   int
}

func newBody() *ejectingBody {
	return &ejectingBody{
		alive:   map[model.ActorID]bool{},
		vehicle: map[model.ActorID]model.ActorID{},
		riders:  map[model.ActorID][]model.ActorID{},
		pos:     map[model.ActorID]model.Vec3{},
		dim:     map[model.ActorID]string{},
	}
}

func (b *ejectingBody) spawn() model.ActorID {
	id := uuid.New()
	b.alive[id] = true
	b.dim[id] = "overworld"
	return id
}

func (b *ejectingBody) Alive(id model.ActorID) bool { return b.alive[id] }

func (b *ejectingBody) Riders(id model.ActorID) []model.ActorID {
	return append([]model.ActorID(nil), b.riders[id]...)
}

func (b *ejectingBody) VehicleOf(id model.ActorID) (model.ActorID, bool) {
	v, ok := b.vehicle[id]
	return v, ok
}

func (b *ejectingBody) dismount(id model.ActorID) {
	v, ok := b.vehicle[id]
	if !ok {
		return
	}
	delete(b.vehicle, id)
	rs := b.riders[v]
	for i, r := range rs {
		if r == id {
			b.riders[v] = append(rs[:i:i], rs[i+1:]...)
			break
		}
	}
}

func (b *ejectingBody) MoveTo(id model.ActorID, dim string, pos model.Vec3) {
	b.moves++
	b.dismount(id)
	for _, r := range b.Riders(id) {
		b.dismount(r)
	}
	b.pos[id] = pos
	b.dim[id] = dim
}

func (b *ejectingBody) Mount(child, parent model.ActorID) {
	b.dismount(child)
	b.vehicle[child] = parent
	b.riders[parent] = append(b.riders[parent], child)
}

func TestCapture_DepthFirstWithParents(t *testing.T) {
	b := newBody()
	horse, rider, parrot, pig := b.spawn(), b.spawn(), b.spawn(), b.spawn()
	b.Mount(rider, horse)
	b.Mount(parrot, rider)
	b.Mount(pig, horse)

	s := Capture(b, horse, DefaultMaxMembers)
	assert.Equal(t, []model.ActorID{horse, rider, parrot, pig}, s.Members)
	assert.Equal(t, horse, s.Parent[rider])
	assert.Equal(t, rider, s.Parent[parrot])
	assert.Equal(t, horse, s.Parent[pig])
	assert.False(t, s.Truncated)
}

func TestCapture_CycleTerminates(t *testing.T) {
	b := newBody()
	a, c := b.spawn(), b.spawn()
	// Malformed links: each rides the other.
	b.riders[a] = []model.ActorID{c}
	b.riders[c] = []model.ActorID{a}

	s := Capture(b, a, DefaultMaxMembers)
	assert.Equal(t, []model.ActorID{a, c}, s.Members)
}

func TestCapture_TruncatesAtCap(t *testing.T) {
	b := newBody()
	root := b.spawn()
	prev := root
	for i := 0; i < 10; i++ {
		next := b.spawn()
		b.Mount(next, prev)
		prev = next
	}
	s := Capture(b, root, 4)
	assert.True(t, s.Truncated)
	assert.Len(t, s.Members, 4)

	err := s.Apply(b, "overworld", model.Vec3{}, 0.06)
	assert.ErrorIs(t, err, ErrStackTooLarge)
	assert.Zero(t, b.moves)
}

func TestRelocate_WholeStackArrivesMounted(t *testing.T) {
	b := newBody()
	root, r1, r2 := b.spawn(), b.spawn(), b.spawn()
	b.Mount(r1, root)
	b.Mount(r2, r1)

	dest := model.Vec3{X: 80.5, Y: 65, Z: 0.5}
	s, err := Relocate(b, root, "nether", dest, 0.06, DefaultMaxMembers)
	require.NoError(t, err)
	require.Len(t, s.Members, 3)

	for i, id := range s.Members {
		assert.Equal(t, "nether", b.dim[id])
		assert.InDelta(t, dest.X, b.pos[id].X, 1e-9)
		assert.InDelta(t, dest.Z, b.pos[id].Z, 1e-9)
		assert.InDelta(t, dest.Y+0.06*float64(i), b.pos[id].Y, 1e-9)
	}
	v, ok := b.VehicleOf(r1)
	require.True(t, ok)
	assert.Equal(t, root, v)
	v, ok = b.VehicleOf(r2)
	require.True(t, ok)
	assert.Equal(t, r1, v)
	_, ok = b.VehicleOf(root)
	assert.False(t, ok)
}

func TestApply_DeadMemberMovesNothing(t *testing.T) {
	b := newBody()
	root, r1 := b.spawn(), b.spawn()
	b.Mount(r1, root)

	s := Capture(b, root, DefaultMaxMembers)
	b.alive[r1] = false

	err := s.Apply(b, "overworld", model.Vec3{X: 10}, 0.06)
	assert.ErrorIs(t, err, ErrMemberLost)
	assert.Zero(t, b.moves)
}
