// Package mesher turns chunk voxels into greedy-merged face quads packed for
// the GPU. One quad is one instance of a triangle-strip draw.
package mesher

import "github.com/Faultbox/voxelstream/internal/chunk"

// Quad is a rectangle of identical exposed voxel faces within one plane.
//
// Z faces extend W along x and H along y. X faces extend W along z and H
// along y. Y faces extend W along x and H along z.
type Quad struct {
	X, Y, Z  uint8
	Face     chunk.Face
	W, H     uint8 // 1..32
	Material uint8
}

// Bit layout of a packed quad.
const (
	shiftX    = 0
	shiftY    = 5
	shiftZ    = 10
	shiftFace = 15
	shiftW    = 18
	shiftH    = 23
	shiftMat  = 28
)

// Pack encodes q into the 64-bit layout read by the vertex shader.
func (q Quad) Pack() uint64 {
	return uint64(q.X&31)<<shiftX |
		uint64(q.Y&31)<<shiftY |
		uint64(q.Z&31)<<shiftZ |
		uint64(q.Face&7)<<shiftFace |
		uint64((q.W-1)&31)<<shiftW |
		uint64((q.H-1)&31)<<shiftH |
		uint64(q.Material)<<shiftMat
}

// Unpack decodes a packed quad.
func Unpack(v uint64) Quad {
	return Quad{
		X:        uint8(v >> shiftX & 31),
		Y:        uint8(v >> shiftY & 31),
		Z:        uint8(v >> shiftZ & 31),
		Face:     chunk.Face(v >> shiftFace & 7),
		W:        uint8(v>>shiftW&31) + 1,
		H:        uint8(v>>shiftH&31) + 1,
		Material: uint8(v >> shiftMat & 0xFF),
	}
}

// Cells calls fn for every voxel whose face the quad covers.
func (q Quad) Cells(fn func(x, y, z int)) {
	for b := range int(q.H) {
		for a := range int(q.W) {
			switch q.Face {
			case chunk.FacePosZ, chunk.FaceNegZ:
				fn(int(q.X)+a, int(q.Y)+b, int(q.Z))
			case chunk.FacePosX, chunk.FaceNegX:
				fn(int(q.X), int(q.Y)+b, int(q.Z)+a)
			default:
				fn(int(q.X)+a, int(q.Y), int(q.Z)+b)
			}
		}
	}
}
