package world

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/chunk"
	"github.com/Faultbox/voxelstream/internal/engine/picking"
)

// Reach is how far from the eye blocks can be broken or placed.
const Reach = 10

// Break clears the first solid block within Reach along the view ray.
func (w *World) Break(eye, dir mgl32.Vec3) bool {
	hit, ok := picking.Cast(eye, dir, Reach, w.Engine.BlockAt)
	if !ok {
		return false
	}
	return w.Engine.SetBlock(hit.Voxel[0], hit.Voxel[1], hit.Voxel[2], chunk.Air)
}

// Place puts id in the empty cell the view ray crossed before its first
// solid block. Nothing is placed when the eye is inside that block.
func (w *World) Place(eye, dir mgl32.Vec3, id byte) bool {
	hit, ok := picking.Cast(eye, dir, Reach, w.Engine.BlockAt)
	if !ok || hit.Before == hit.Voxel {
		return false
	}
	return w.Engine.SetBlock(hit.Before[0], hit.Before[1], hit.Before[2], id)
}

// AdjustRadius widens or narrows the horizontal streaming extent by delta,
// bounded by the configured render distance.
func (w *World) AdjustRadius(delta int) int {
	r, h := w.Engine.Radius()
	if delta == 0 {
		return r
	}
	r, _ = w.Engine.SetRadius(r+delta, h)
	w.log.Debug("render distance adjusted", zap.Int("radius", r))
	return r
}
