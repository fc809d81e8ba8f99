// Package glgpu implements gpu.Backend on OpenGL 4.6 direct state access.
// All methods must be called from the thread that owns the GL context.
package glgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/engine/gpu"
	"github.com/Faultbox/voxelstream/internal/logger"
)

// DrawCommandSize is the std430 size of a DrawArraysIndirectCommand.
const DrawCommandSize = 16

// Backend owns every buffer it creates and deletes them on Close.
type Backend struct {
	sizes  map[gpu.Buffer]int
	record [gpu.SlotRecordSize]byte
}

// New returns a backend bound to the current GL context.
func New() *Backend {
	return &Backend{sizes: make(map[gpu.Buffer]int)}
}

// CreateArenaBuffer allocates immutable storage for packed quads.
func (b *Backend) CreateArenaBuffer(capacityBytes int) (gpu.Buffer, error) {
	return b.CreateStorage(capacityBytes, "arena")
}

// CreateMetadataTable allocates one SlotRecord per slot, zeroed.
func (b *Backend) CreateMetadataTable(capacitySlots int) (gpu.Buffer, error) {
	return b.CreateStorage(capacitySlots*gpu.SlotRecordSize, "metadata")
}

// CreateStorage allocates a zeroed, dynamically updatable buffer.
func (b *Backend) CreateStorage(size int, label string) (gpu.Buffer, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%s buffer size must be positive, got %d", label, size)
	}
	var id uint32
	gl.CreateBuffers(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("glCreateBuffers returned no %s buffer", label)
	}
	zero := make([]byte, size)
	gl.NamedBufferStorage(id, size, unsafe.Pointer(&zero[0]), gl.DYNAMIC_STORAGE_BIT)
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteBuffers(1, &id)
		return 0, fmt.Errorf("allocate %s buffer (%d bytes): gl error 0x%x", label, size, code)
	}

	buf := gpu.Buffer(id)
	b.sizes[buf] = size
	logger.Debug("gpu buffer created",
		zap.String("label", label),
		zap.Uint32("id", id),
		zap.Int("bytes", size),
	)
	return buf, nil
}

// WriteBytes uploads data at a byte offset.
func (b *Backend) WriteBytes(buf gpu.Buffer, offset int, data []byte) error {
	size, ok := b.sizes[buf]
	if !ok {
		return gpu.ErrUnknownBuffer
	}
	if offset < 0 || offset+len(data) > size {
		return gpu.ErrOutOfBounds
	}
	if len(data) == 0 {
		return nil
	}
	gl.NamedBufferSubData(uint32(buf), offset, len(data), unsafe.Pointer(&data[0]))
	return nil
}

// WriteMetadataSlot overwrites one record of a metadata table.
func (b *Backend) WriteMetadataSlot(table gpu.Buffer, index int, rec gpu.SlotRecord) error {
	rec.Put(b.record[:])
	return b.WriteBytes(table, index*gpu.SlotRecordSize, b.record[:])
}

// ClearUint32 fills buf with a repeated 32-bit value.
func (b *Backend) ClearUint32(buf gpu.Buffer, value uint32) {
	gl.ClearNamedBufferData(uint32(buf), gl.R32UI, gl.RED_INTEGER, gl.UNSIGNED_INT, unsafe.Pointer(&value))
}

// IssueBarrier makes prior buffer writes visible to shader reads and
// indirect command fetches.
func (b *Backend) IssueBarrier() {
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.COMMAND_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT)
}

// DrawIndirectCount draws up to maxDraws strips from commands, with the
// actual draw count read from the first word of count.
func (b *Backend) DrawIndirectCount(commands, count gpu.Buffer, maxDraws int) {
	if maxDraws <= 0 {
		return
	}
	gl.BindBuffer(gl.DRAW_INDIRECT_BUFFER, uint32(commands))
	gl.BindBuffer(gl.PARAMETER_BUFFER, uint32(count))
	gl.MultiDrawArraysIndirectCount(gl.TRIANGLE_STRIP, nil, 0, int32(maxDraws), DrawCommandSize)
	gl.BindBuffer(gl.PARAMETER_BUFFER, 0)
	gl.BindBuffer(gl.DRAW_INDIRECT_BUFFER, 0)
}

// Close deletes every buffer the backend created.
func (b *Backend) Close() {
	for buf := range b.sizes {
		id := uint32(buf)
		gl.DeleteBuffers(1, &id)
	}
	logger.Debug("gpu buffers deleted", zap.Int("count", len(b.sizes)))
	clear(b.sizes)
}
