package streaming

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/voxelstream/internal/chunk"
)

// Observer is the shared position streaming is centred on.
type Observer struct {
	mu    sync.RWMutex
	world mgl32.Vec3
	chunk chunk.Coord
}

// Set moves the observer to a world position.
func (o *Observer) Set(world mgl32.Vec3) {
	c := chunk.CoordOf(world.X(), world.Y(), world.Z())
	o.mu.Lock()
	o.world = world
	o.chunk = c
	o.mu.Unlock()
}

// Chunk returns the chunk containing the observer.
func (o *Observer) Chunk() chunk.Coord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.chunk
}

// Position returns the observer's world position.
func (o *Observer) Position() mgl32.Vec3 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.world
}
