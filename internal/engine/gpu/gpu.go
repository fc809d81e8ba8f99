// Package gpu defines the graphics backend the streaming core renders through
// and the layout of the per-chunk metadata records the GPU consumes.
package gpu

import (
	"encoding/binary"
	"errors"
)

// Buffer is an opaque backend buffer handle. Zero is never a valid buffer.
type Buffer uint32

// ErrOutOfBounds is returned for writes past the end of a buffer.
var ErrOutOfBounds = errors.New("gpu: write out of bounds")

// ErrUnknownBuffer is returned for writes to a buffer the backend did not create.
var ErrUnknownBuffer = errors.New("gpu: unknown buffer")

// SlotRecordSize is the size of a SlotRecord in bytes (std430 layout).
const SlotRecordSize = 32

// SlotRecord describes one resident chunk to the culling shader.
type SlotRecord struct {
	WorldX, WorldY, WorldZ int32
	GeometryCount          uint32 // quads, 0 hides the slot
	GeometryOffset         uint32 // first quad index in the arena
	SlotIndex              uint32
	_                      [2]uint32
}

// Put encodes r into dst, which must hold SlotRecordSize bytes.
func (r SlotRecord) Put(dst []byte) {
	le := binary.LittleEndian
	le.PutUint32(dst[0:], uint32(r.WorldX))
	le.PutUint32(dst[4:], uint32(r.WorldY))
	le.PutUint32(dst[8:], uint32(r.WorldZ))
	le.PutUint32(dst[12:], r.GeometryCount)
	le.PutUint32(dst[16:], r.GeometryOffset)
	le.PutUint32(dst[20:], r.SlotIndex)
	le.PutUint32(dst[24:], 0)
	le.PutUint32(dst[28:], 0)
}

// DecodeSlotRecord reads a record written by Put.
func DecodeSlotRecord(src []byte) SlotRecord {
	le := binary.LittleEndian
	return SlotRecord{
		WorldX:         int32(le.Uint32(src[0:])),
		WorldY:         int32(le.Uint32(src[4:])),
		WorldZ:         int32(le.Uint32(src[8:])),
		GeometryCount:  le.Uint32(src[12:]),
		GeometryOffset: le.Uint32(src[16:]),
		SlotIndex:      le.Uint32(src[20:]),
	}
}

// Backend is the graphics API surface used by the arena and the renderer.
// Writes must become visible to GPU work submitted after them, in order.
type Backend interface {
	CreateArenaBuffer(capacityBytes int) (Buffer, error)
	CreateMetadataTable(capacitySlots int) (Buffer, error)
	WriteBytes(buf Buffer, offset int, data []byte) error
	WriteMetadataSlot(table Buffer, index int, rec SlotRecord) error
	IssueBarrier()
	DrawIndirectCount(commands, count Buffer, maxDraws int)
	Close()
}
