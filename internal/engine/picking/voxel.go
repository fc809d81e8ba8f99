// Package picking finds the voxel under the crosshair.
package picking

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// BlockLookup returns the block at a world voxel position. loaded is false
// outside resident chunks, which stops the ray.
type BlockLookup func(x, y, z int32) (id byte, loaded bool)

// Hit is the first solid voxel along a ray.
type Hit struct {
	Voxel [3]int32
	// Before is the empty voxel the ray crossed just before Voxel, where a
	// placed block goes. It equals Voxel when the ray starts inside a block.
	Before   [3]int32
	Block    byte
	Distance float32
}

// Cast walks the voxel grid from origin along dir (any length) with a 3D DDA
// and returns the first non-air voxel within maxDist.
func Cast(origin, dir mgl32.Vec3, maxDist float32, lookup BlockLookup) (Hit, bool) {
	if dir.Len() == 0 {
		return Hit{}, false
	}
	dir = dir.Normalize()

	var (
		cell   [3]int32
		step   [3]int32
		tMax   [3]float32
		tDelta [3]float32
	)
	for i := 0; i < 3; i++ {
		cell[i] = int32(math.Floor(float64(origin[i])))
		switch {
		case dir[i] > 0:
			step[i] = 1
			tMax[i] = (float32(cell[i]+1) - origin[i]) / dir[i]
			tDelta[i] = 1 / dir[i]
		case dir[i] < 0:
			step[i] = -1
			tMax[i] = (float32(cell[i]) - origin[i]) / dir[i]
			tDelta[i] = -1 / dir[i]
		default:
			tMax[i] = math.MaxFloat32
			tDelta[i] = math.MaxFloat32
		}
	}

	before := cell
	traveled := float32(0)
	for traveled <= maxDist {
		id, loaded := lookup(cell[0], cell[1], cell[2])
		if !loaded {
			return Hit{}, false
		}
		if id != 0 {
			return Hit{Voxel: cell, Before: before, Block: id, Distance: traveled}, true
		}

		before = cell
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		cell[axis] += step[axis]
		traveled = tMax[axis]
		tMax[axis] += tDelta[axis]
	}
	return Hit{}, false
}
