package mathx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"voxelgate.ai/internal/sim/teleport/model"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.75, Clamp(0.1, 0.75, 4))
	assert.Equal(t, 4.0, Clamp(9, 0.75, 4))
	assert.Equal(t, 2.0, Clamp(2, 0.75, 4))
}

func TestHashLocation_DimensionMatters(t *testing.T) {
	a := model.Location{Dim: "overworld", X: 1, Y: 2, Z: 3}
	b := model.Location{Dim: "nether", X: 1, Y: 2, Z: 3}
	assert.Equal(t, HashLocation(a), HashLocation(a))
	assert.NotEqual(t, HashLocation(a), HashLocation(b))
}

func TestHashID_Stable(t *testing.T) {
	id := uuid.MustParse("6f1c3d2e-8a4b-4c5d-9e0f-112233445566")
	assert.Equal(t, HashID(id), HashID(id))
	assert.NotEqual(t, HashID(id), HashID(uuid.Nil))
}
