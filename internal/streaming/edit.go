package streaming

import (
	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/chunk"
)

// BlockAt returns the block at a world voxel position. ok is false when the
// containing chunk is not resident. Call it from the coordinator goroutine.
func (e *Engine) BlockAt(x, y, z int32) (id byte, ok bool) {
	pos, lx, ly, lz := chunk.VoxelCoord(x, y, z)
	c, ok := e.store.TryGet(pos)
	if !ok {
		return chunk.Air, false
	}
	defer c.Release()
	return c.Blocks().At(lx, ly, lz), true
}

// SetBlock writes one voxel and schedules the remesh. It reports whether the
// world changed; edits to chunks that are not resident are ignored. Edits
// live as long as the chunk stays resident.
//
// Published voxels are never mutated in place since mesh workers may be
// reading them. The edit builds a copy, which replaces the chunk in the store
// and inherits its GPU residency so the old geometry stays on screen until
// the new mesh is uploaded. Call it from the coordinator goroutine.
func (e *Engine) SetBlock(x, y, z int32, id byte) bool {
	pos, lx, ly, lz := chunk.VoxelCoord(x, y, z)
	old, ok := e.store.TryGet(pos)
	if !ok {
		return false
	}
	defer old.Release()
	if old.Blocks().At(lx, ly, lz) == id {
		return false
	}

	blocks := e.pool.Acquire()
	*blocks = *old.Blocks()
	blocks.Set(lx, ly, lz, id)
	next := chunk.New(pos, blocks, e.pool)

	e.residency.Transfer(old, next)
	if prev := e.store.Insert(next); prev != nil {
		prev.Release()
	}

	e.dirty[pos] = struct{}{}
	for _, f := range borderFaces(lx, ly, lz) {
		if n := pos.Neighbor(f); e.store.Contains(n) {
			e.dirty[n] = struct{}{}
		}
	}
	e.stats.edits.Add(1)
	e.log.Debug("block edited",
		zap.Int32s("voxel", []int32{x, y, z}),
		zap.Uint8("block", id),
		zap.Stringer("chunk", pos))
	return true
}

// borderFaces lists the chunk faces a local voxel touches. Neighbours across
// them cull against this voxel and need a remesh too.
func borderFaces(lx, ly, lz int) []chunk.Face {
	var faces []chunk.Face
	add := func(v int, neg, pos chunk.Face) {
		switch v {
		case 0:
			faces = append(faces, neg)
		case chunk.Size - 1:
			faces = append(faces, pos)
		}
	}
	add(lx, chunk.FaceNegX, chunk.FacePosX)
	add(ly, chunk.FaceNegY, chunk.FacePosY)
	add(lz, chunk.FaceNegZ, chunk.FacePosZ)
	return faces
}
