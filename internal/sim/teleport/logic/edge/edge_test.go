package edge

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"voxelgate.ai/internal/sim/teleport/model"
)

func TestTracker_EnterLeave(t *testing.T) {
	tr := NewTracker()
	src := model.Location{Dim: "overworld", X: 4, Y: 64, Z: -2}
	g1, g2 := uuid.New(), uuid.New()

	assert.False(t, tr.Inside(src, g1))
	tr.MarkEntered(src, g1)
	tr.MarkEntered(src, g1)
	tr.MarkEntered(src, g2)
	assert.True(t, tr.Inside(src, g1))
	assert.Len(t, tr.Members(src), 2)

	// Same coordinates in another dimension are a different source.
	assert.False(t, tr.Inside(model.Location{Dim: "nether", X: 4, Y: 64, Z: -2}, g1))

	tr.MarkLeft(src, g1)
	assert.False(t, tr.Inside(src, g1))
	assert.Equal(t, 1, tr.Locations())

	tr.MarkLeft(src, g2)
	assert.Zero(t, tr.Locations(), "empty sets drop the location key")
	assert.Empty(t, tr.Members(src))

	// Leaving twice is harmless.
	tr.MarkLeft(src, g2)
}

func TestTracker_Clear(t *testing.T) {
	tr := NewTracker()
	src := model.Location{Dim: "overworld"}
	tr.MarkEntered(src, uuid.New())
	tr.MarkEntered(src, uuid.New())
	tr.Clear(src)
	assert.Empty(t, tr.Members(src))
}

func TestTracker_ConcurrentDimensions(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for d := 0; d < 4; d++ {
		wg.Add(1)
		go func(dim string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				loc := model.Location{Dim: dim, X: i}
				g := uuid.New()
				tr.MarkEntered(loc, g)
				assert.True(t, tr.Inside(loc, g))
				tr.MarkLeft(loc, g)
			}
		}(fmt.Sprintf("dim%d", d))
	}
	wg.Wait()
	assert.Zero(t, tr.Locations())
}
