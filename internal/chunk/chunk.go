package chunk

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/logger"
)

// Block ids.
const (
	Air   byte = 0
	Dirt  byte = 1
	Stone byte = 3
	Grass byte = 5
)

// Blocks is a dense voxel buffer indexed by x + y*Size + z*Size*Size.
type Blocks [Volume]byte

// Index returns the buffer index of a local voxel position.
func Index(x, y, z int) int {
	return x + y*Size + z*Size*Size
}

// At returns the block at a local position.
func (b *Blocks) At(x, y, z int) byte {
	return b[Index(x, y, z)]
}

// Set writes the block at a local position.
func (b *Blocks) Set(x, y, z int, id byte) {
	b[Index(x, y, z)] = id
}

// Empty reports whether every voxel is air.
func (b *Blocks) Empty() bool {
	for _, v := range b {
		if v != Air {
			return false
		}
	}
	return true
}

// GPUHandle records where a chunk's geometry lives in the GPU arena.
type GPUHandle struct {
	Slot   uint32 // metadata slot index
	Offset uint32 // arena byte offset of the geometry range
	Size   uint32 // range size in bytes, 0 when the mesh is empty
	Quads  uint32
}

// Chunk is a generated 32³ block of voxels.
//
// Voxels are immutable once the chunk is published to the store. A chunk is
// reference counted; the last Release hands the voxel buffer back to its pool.
type Chunk struct {
	Pos Coord

	// GPU belongs to the coordinator goroutine.
	GPU *GPUHandle

	// Mesh stamps also belong to the coordinator. MeshStamp counts meshes
	// scheduled for this chunk; UploadedStamp is the stamp of the geometry
	// currently on the GPU.
	MeshStamp     uint64
	UploadedStamp uint64

	blocks *Blocks
	pool   *Pool
	refs   atomic.Int32
}

// New wraps a filled voxel buffer. The returned chunk holds one reference.
// pool may be nil, in which case the buffer is left to the garbage collector.
func New(pos Coord, blocks *Blocks, pool *Pool) *Chunk {
	c := &Chunk{Pos: pos, blocks: blocks, pool: pool}
	c.refs.Store(1)
	return c
}

// Blocks returns the voxel buffer. Callers must hold a reference.
func (c *Chunk) Blocks() *Blocks {
	return c.blocks
}

// Retain adds a reference and returns c.
func (c *Chunk) Retain() *Chunk {
	c.refs.Add(1)
	return c
}

// Release drops a reference.
func (c *Chunk) Release() {
	n := c.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		logger.DPanic("chunk released too many times", zap.Stringer("chunk", c.Pos))
		return
	}
	if c.GPU != nil {
		logger.DPanic("chunk destroyed with live GPU residency",
			zap.Stringer("chunk", c.Pos),
			zap.Uint32("slot", c.GPU.Slot))
	}
	blocks := c.blocks
	c.blocks = nil
	if c.pool != nil && blocks != nil {
		c.pool.Release(blocks)
	}
}

// Refs returns the current reference count.
func (c *Chunk) Refs() int32 {
	return c.refs.Load()
}
