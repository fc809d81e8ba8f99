// Package chunk holds the voxel chunk model shared by the streaming pipeline:
// coordinates, voxel buffers and their pool, and the concurrent spatial store.
package chunk

import (
	"fmt"
	"math"
)

// Size is the chunk edge length in voxels.
const Size = 32

// Volume is the number of voxels in a chunk.
const Volume = Size * Size * Size

// Coord identifies a chunk in chunk units. X and Z span the horizontal plane, Y is vertical.
type Coord struct {
	X, Y, Z int32
}

// Face is a cube face direction.
type Face uint8

// Face directions in mesh packing order.
const (
	FacePosZ Face = iota
	FaceNegZ
	FacePosY
	FaceNegY
	FacePosX
	FaceNegX
)

// FaceCount is the number of cube faces.
const FaceCount = 6

// faceOffsets maps each face to the unit step along its normal.
var faceOffsets = [FaceCount]Coord{
	{0, 0, 1},
	{0, 0, -1},
	{0, 1, 0},
	{0, -1, 0},
	{1, 0, 0},
	{-1, 0, 0},
}

// Offset returns the unit step along the face normal.
func (f Face) Offset() Coord {
	return faceOffsets[f]
}

func (f Face) String() string {
	switch f {
	case FacePosZ:
		return "+Z"
	case FaceNegZ:
		return "-Z"
	case FacePosY:
		return "+Y"
	case FaceNegY:
		return "-Y"
	case FacePosX:
		return "+X"
	case FaceNegX:
		return "-X"
	}
	return fmt.Sprintf("Face(%d)", uint8(f))
}

// CoordOf returns the chunk containing the given world position.
func CoordOf(x, y, z float32) Coord {
	return Coord{
		X: int32(math.Floor(float64(x) / Size)),
		Y: int32(math.Floor(float64(y) / Size)),
		Z: int32(math.Floor(float64(z) / Size)),
	}
}

// VoxelCoord splits a world voxel position into its chunk and the local
// position inside it.
func VoxelCoord(x, y, z int32) (c Coord, lx, ly, lz int) {
	c = Coord{floorDiv(x), floorDiv(y), floorDiv(z)}
	return c, int(x - c.X*Size), int(y - c.Y*Size), int(z - c.Z*Size)
}

func floorDiv(v int32) int32 {
	if v < 0 {
		return (v - Size + 1) / Size
	}
	return v / Size
}

// Add returns c offset by o.
func (c Coord) Add(o Coord) Coord {
	return Coord{c.X + o.X, c.Y + o.Y, c.Z + o.Z}
}

// Sub returns c - o.
func (c Coord) Sub(o Coord) Coord {
	return Coord{c.X - o.X, c.Y - o.Y, c.Z - o.Z}
}

// Neighbor returns the adjacent chunk across face f.
func (c Coord) Neighbor(f Face) Coord {
	return c.Add(faceOffsets[f])
}

// Origin returns the world voxel position of the chunk's minimum corner.
func (c Coord) Origin() (x, y, z int32) {
	return c.X * Size, c.Y * Size, c.Z * Size
}

// PlanarDistSq returns the squared horizontal distance to o in chunk units.
func (c Coord) PlanarDistSq(o Coord) int64 {
	dx := int64(c.X - o.X)
	dz := int64(c.Z - o.Z)
	return dx*dx + dz*dz
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}
