// Package arena manages the fixed-size GPU geometry buffer: a first-fit
// free-list allocator, the metadata slot pool, and deferred reclamation of
// ranges the GPU may still be reading.
package arena

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// InvalidOffset marks a failed allocation.
const InvalidOffset = math.MaxUint32

// ErrInvalidRange is returned when freeing a range that lies outside the
// arena or overlaps free space.
var ErrInvalidRange = errors.New("arena: invalid range")

// Block is a contiguous byte range.
type Block struct {
	Offset uint32
	Size   uint32
}

// End returns the first offset after the block.
func (b Block) End() uint64 {
	return uint64(b.Offset) + uint64(b.Size)
}

// Allocator hands out byte ranges from a linear space of fixed capacity.
// Free blocks stay sorted by offset, never overlap, and never touch.
// It is not safe for concurrent use.
type Allocator struct {
	capacity uint32
	used     uint32
	free     []Block
}

// NewAllocator creates an allocator with one free block spanning capacity.
func NewAllocator(capacity uint32) *Allocator {
	a := &Allocator{capacity: capacity}
	if capacity > 0 {
		a.free = []Block{{Offset: 0, Size: capacity}}
	}
	return a
}

// Allocate returns the offset of a size-byte range using first fit.
// Zero-sized requests and exhaustion return InvalidOffset, false.
func (a *Allocator) Allocate(size uint32) (uint32, bool) {
	if size == 0 {
		return InvalidOffset, false
	}
	for i := range a.free {
		b := &a.free[i]
		if b.Size < size {
			continue
		}
		offset := b.Offset
		if b.Size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			b.Offset += size
			b.Size -= size
		}
		a.used += size
		return offset, true
	}
	return InvalidOffset, false
}

// Free returns a range to the allocator, merging it with adjacent free blocks.
func (a *Allocator) Free(offset, size uint32) error {
	r := Block{Offset: offset, Size: size}
	if size == 0 || r.End() > uint64(a.capacity) {
		return fmt.Errorf("%w: [%d,%d) in %d bytes", ErrInvalidRange, offset, r.End(), a.capacity)
	}

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Offset >= offset })
	if i > 0 && a.free[i-1].End() > uint64(offset) {
		return fmt.Errorf("%w: [%d,%d) overlaps free block at %d", ErrInvalidRange, offset, r.End(), a.free[i-1].Offset)
	}
	if i < len(a.free) && r.End() > uint64(a.free[i].Offset) {
		return fmt.Errorf("%w: [%d,%d) overlaps free block at %d", ErrInvalidRange, offset, r.End(), a.free[i].Offset)
	}

	a.used -= size
	mergePrev := i > 0 && a.free[i-1].End() == uint64(offset)
	mergeNext := i < len(a.free) && r.End() == uint64(a.free[i].Offset)

	switch {
	case mergePrev && mergeNext:
		a.free[i-1].Size += size + a.free[i].Size
		a.free = append(a.free[:i], a.free[i+1:]...)
	case mergePrev:
		a.free[i-1].Size += size
	case mergeNext:
		a.free[i].Offset = offset
		a.free[i].Size += size
	default:
		a.free = append(a.free, Block{})
		copy(a.free[i+1:], a.free[i:])
		a.free[i] = r
	}
	return nil
}

// Capacity returns the arena size in bytes.
func (a *Allocator) Capacity() uint32 { return a.capacity }

// Used returns allocated bytes.
func (a *Allocator) Used() uint32 { return a.used }

// Available returns free bytes.
func (a *Allocator) Available() uint32 { return a.capacity - a.used }

// FreeBlocks returns a copy of the free list.
func (a *Allocator) FreeBlocks() []Block {
	return append([]Block(nil), a.free...)
}

// Fragments returns the number of free blocks.
func (a *Allocator) Fragments() int { return len(a.free) }

// LargestFree returns the size of the largest free block.
func (a *Allocator) LargestFree() uint32 {
	var n uint32
	for _, b := range a.free {
		n = max(n, b.Size)
	}
	return n
}
