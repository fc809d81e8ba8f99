package gpu

import (
	"fmt"
	"sync"
)

// WriteKind distinguishes entries in the Memory write log.
type WriteKind uint8

const (
	WriteGeometry WriteKind = iota
	WriteMetadata
)

// Write is one recorded backend write.
type Write struct {
	Kind   WriteKind
	Buffer Buffer
	Offset int // byte offset for geometry, slot index for metadata
	Size   int
}

// Memory is a Backend that keeps every buffer in host memory. It backs
// headless runs and tests, and records the order of writes.
type Memory struct {
	mu      sync.Mutex
	buffers map[Buffer][]byte
	next    Buffer
	log     []Write

	draws    int
	barriers int

	// WriteErr, when set, fails every WriteBytes call.
	WriteErr error
	// KeepLog enables the write log.
	KeepLog bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{buffers: make(map[Buffer][]byte)}
}

func (m *Memory) create(size int) Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.buffers[m.next] = make([]byte, size)
	return m.next
}

// CreateArenaBuffer allocates a zeroed geometry buffer.
func (m *Memory) CreateArenaBuffer(capacityBytes int) (Buffer, error) {
	if capacityBytes <= 0 {
		return 0, fmt.Errorf("arena capacity must be positive, got %d", capacityBytes)
	}
	return m.create(capacityBytes), nil
}

// CreateMetadataTable allocates a zeroed slot table.
func (m *Memory) CreateMetadataTable(capacitySlots int) (Buffer, error) {
	if capacitySlots <= 0 {
		return 0, fmt.Errorf("metadata slots must be positive, got %d", capacitySlots)
	}
	return m.create(capacitySlots * SlotRecordSize), nil
}

// WriteBytes copies data into buf at offset.
func (m *Memory) WriteBytes(buf Buffer, offset int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	dst, ok := m.buffers[buf]
	if !ok {
		return ErrUnknownBuffer
	}
	if offset < 0 || offset+len(data) > len(dst) {
		return fmt.Errorf("%w: %d+%d > %d", ErrOutOfBounds, offset, len(data), len(dst))
	}
	copy(dst[offset:], data)
	if m.KeepLog {
		m.log = append(m.log, Write{Kind: WriteGeometry, Buffer: buf, Offset: offset, Size: len(data)})
	}
	return nil
}

// WriteMetadataSlot encodes rec into slot index of table.
func (m *Memory) WriteMetadataSlot(table Buffer, index int, rec SlotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst, ok := m.buffers[table]
	if !ok {
		return ErrUnknownBuffer
	}
	off := index * SlotRecordSize
	if index < 0 || off+SlotRecordSize > len(dst) {
		return fmt.Errorf("%w: slot %d", ErrOutOfBounds, index)
	}
	rec.Put(dst[off:])
	if m.KeepLog {
		m.log = append(m.log, Write{Kind: WriteMetadata, Buffer: table, Offset: index, Size: SlotRecordSize})
	}
	return nil
}

// IssueBarrier counts barriers.
func (m *Memory) IssueBarrier() {
	m.mu.Lock()
	m.barriers++
	m.mu.Unlock()
}

// DrawIndirectCount counts draw submissions.
func (m *Memory) DrawIndirectCount(commands, count Buffer, maxDraws int) {
	m.mu.Lock()
	m.draws++
	m.mu.Unlock()
}

// Close drops all buffers.
func (m *Memory) Close() {
	m.mu.Lock()
	clear(m.buffers)
	m.mu.Unlock()
}

// Bytes returns a copy of buf's contents.
func (m *Memory) Bytes(buf Buffer) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buffers[buf]...)
}

// Slot decodes the record at index of table.
func (m *Memory) Slot(table Buffer, index int) SlotRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	off := index * SlotRecordSize
	return DecodeSlotRecord(m.buffers[table][off : off+SlotRecordSize])
}

// Log returns the recorded writes.
func (m *Memory) Log() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.log...)
}

// Draws returns the number of draw submissions.
func (m *Memory) Draws() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draws
}
