package arena

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/chunk"
	"github.com/Faultbox/voxelstream/internal/engine/gpu"
	"github.com/Faultbox/voxelstream/internal/logger"
)

// Sizing constants.
const (
	QuadSize  = 8  // bytes per packed quad
	Alignment = 16 // geometry ranges are rounded up to this many bytes
)

// Resource exhaustion errors returned by Upload.
var (
	ErrArenaFull = errors.New("arena: geometry buffer full")
	ErrSlotsFull = errors.New("arena: metadata slots exhausted")
)

// Config sizes a Manager.
type Config struct {
	CapacityBytes uint32
	Slots         int
	GraceFrames   uint64 // frames a released range stays untouched
}

// SlotCapacity returns the largest resident set possible for a render
// radius and height when chunks are unloaded beyond margin.
func SlotCapacity(radius, height, margin int) int {
	side := 2*(radius+margin) + 1
	return side * side * (2*(height+margin) + 1)
}

type slotState uint8

const (
	slotFree slotState = iota
	slotLive
	slotZombie
)

// Stats is a snapshot of arena usage.
type Stats struct {
	Frame        uint64
	Capacity     uint32
	UsedBytes    uint32
	FreeBytes    uint32
	FreeBlocks   int
	LargestFree  uint32
	LiveSlots    int
	FreeSlots    int
	ZombieRanges int
	ZombieSlots  int
	ZombieBytes  uint64
}

// Manager owns the geometry arena and metadata table. All methods must be
// called from the coordinator goroutine.
type Manager struct {
	backend gpu.Backend
	log     *zap.Logger
	cfg     Config

	alloc   *Allocator
	arena   gpu.Buffer
	table   gpu.Buffer
	frame   uint64
	zombies zombieRing

	freeSlots []uint32
	states    []slotState
	owners    []*chunk.Chunk
	live      int

	encoded []byte
}

// New creates the arena buffer and metadata table on backend.
func New(backend gpu.Backend, cfg Config) (*Manager, error) {
	cfg.CapacityBytes -= cfg.CapacityBytes % Alignment
	if cfg.CapacityBytes == 0 {
		return nil, fmt.Errorf("arena capacity must be at least %d bytes", Alignment)
	}
	if cfg.Slots <= 0 {
		return nil, fmt.Errorf("metadata slots must be positive, got %d", cfg.Slots)
	}

	arenaBuf, err := backend.CreateArenaBuffer(int(cfg.CapacityBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create arena buffer: %w", err)
	}
	table, err := backend.CreateMetadataTable(cfg.Slots)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	m := &Manager{
		backend:   backend,
		log:       logger.Named("arena"),
		cfg:       cfg,
		alloc:     NewAllocator(cfg.CapacityBytes),
		arena:     arenaBuf,
		table:     table,
		freeSlots: make([]uint32, 0, cfg.Slots),
		states:    make([]slotState, cfg.Slots),
		owners:    make([]*chunk.Chunk, cfg.Slots),
	}
	// Reverse order so slot 0 is handed out first.
	for i := cfg.Slots - 1; i >= 0; i-- {
		m.freeSlots = append(m.freeSlots, uint32(i))
	}

	m.log.Info("arena created",
		zap.Uint32("capacityBytes", cfg.CapacityBytes),
		zap.Int("slots", cfg.Slots),
		zap.Uint64("graceFrames", cfg.GraceFrames))
	return m, nil
}

// ArenaBuffer returns the geometry buffer handle.
func (m *Manager) ArenaBuffer() gpu.Buffer { return m.arena }

// MetadataTable returns the slot table handle.
func (m *Manager) MetadataTable() gpu.Buffer { return m.table }

// SlotCount returns the metadata table capacity.
func (m *Manager) SlotCount() int { return m.cfg.Slots }

// Frame returns the current frame counter.
func (m *Manager) Frame() uint64 { return m.frame }

// Upload makes quads the visible geometry of c. The new range is written
// before the metadata record points at it; the superseded range is retired
// only after the grace window. On error the chunk's previous geometry stays live.
func (m *Manager) Upload(c *chunk.Chunk, quads []uint64) error {
	h := c.GPU
	if h != nil && !m.owns(c, h.Slot) {
		m.log.DPanic("chunk handle does not own its slot",
			zap.Stringer("chunk", c.Pos), zap.Uint32("slot", h.Slot))
		c.GPU = nil
		h = nil
	}

	fresh := h == nil
	var slot uint32
	if fresh {
		var ok bool
		if slot, ok = m.acquireSlot(c); !ok {
			return fmt.Errorf("%w: chunk %v", ErrSlotsFull, c.Pos)
		}
	} else {
		slot = h.Slot
	}

	size := uint32(len(quads)) * QuadSize
	allocSize := align(size)
	offset := uint32(0)
	if size > 0 {
		var ok bool
		offset, ok = m.alloc.Allocate(allocSize)
		if !ok {
			if fresh {
				m.dropSlot(slot)
			}
			return fmt.Errorf("%w: %d bytes for chunk %v (largest free %d)",
				ErrArenaFull, allocSize, c.Pos, m.alloc.LargestFree())
		}
		if err := m.backend.WriteBytes(m.arena, int(offset), m.encode(quads)); err != nil {
			m.abandon(offset, allocSize, slot, fresh)
			return fmt.Errorf("failed to write geometry for chunk %v: %w", c.Pos, err)
		}
	}

	wx, wy, wz := c.Pos.Origin()
	rec := gpu.SlotRecord{
		WorldX:         wx,
		WorldY:         wy,
		WorldZ:         wz,
		GeometryCount:  uint32(len(quads)),
		GeometryOffset: offset / QuadSize,
		SlotIndex:      slot,
	}
	if err := m.backend.WriteMetadataSlot(m.table, int(slot), rec); err != nil {
		m.abandon(offset, allocSize, slot, fresh)
		return fmt.Errorf("failed to write metadata for chunk %v: %w", c.Pos, err)
	}

	if h != nil && h.Size > 0 {
		m.zombies.addRange(m.frame, Block{Offset: h.Offset, Size: h.Size})
	}
	c.GPU = &chunk.GPUHandle{Slot: slot, Offset: offset, Size: allocSize, Quads: uint32(len(quads))}
	return nil
}

// abandon undoes a partially applied upload. The new range was never
// referenced by metadata, so it can be freed immediately.
func (m *Manager) abandon(offset, size, slot uint32, fresh bool) {
	if size > 0 {
		if err := m.alloc.Free(offset, size); err != nil {
			m.log.DPanic("failed to free abandoned range", zap.Error(err))
		}
	}
	if fresh {
		m.dropSlot(slot)
	}
}

// Release hides c from the GPU and retires its range and slot after the
// grace window. Chunks without residency are ignored.
func (m *Manager) Release(c *chunk.Chunk) {
	h := c.GPU
	if h == nil {
		return
	}
	c.GPU = nil
	if !m.owns(c, h.Slot) {
		m.log.DPanic("released chunk does not own its slot",
			zap.Stringer("chunk", c.Pos), zap.Uint32("slot", h.Slot))
		return
	}

	if err := m.backend.WriteMetadataSlot(m.table, int(h.Slot), gpu.SlotRecord{SlotIndex: h.Slot}); err != nil {
		m.log.Error("failed to hide released slot", zap.Uint32("slot", h.Slot), zap.Error(err))
	}
	if h.Size > 0 {
		m.zombies.addRange(m.frame, Block{Offset: h.Offset, Size: h.Size})
	}
	m.states[h.Slot] = slotZombie
	m.owners[h.Slot] = nil
	m.live--
	m.zombies.addSlot(m.frame, h.Slot)
}

// Transfer hands the residency of from to to, which replaces it at the same
// position. The slot and geometry stay visible until to is uploaded.
func (m *Manager) Transfer(from, to *chunk.Chunk) {
	h := from.GPU
	if h == nil {
		return
	}
	from.GPU = nil
	if from.Pos != to.Pos || !m.owns(from, h.Slot) {
		m.log.DPanic("invalid residency transfer",
			zap.Stringer("from", from.Pos), zap.Stringer("to", to.Pos), zap.Uint32("slot", h.Slot))
		return
	}
	m.owners[h.Slot] = to
	to.GPU = h
}

// Recycle advances the frame counter and reclaims ranges and slots whose
// grace window has passed. Call it once per rendered frame.
func (m *Manager) Recycle() (ranges, slots int) {
	m.frame++
	m.zombies.collect(m.frame, m.cfg.GraceFrames,
		func(b Block) {
			if err := m.alloc.Free(b.Offset, b.Size); err != nil {
				m.log.DPanic("failed to reclaim range", zap.Error(err))
				return
			}
			ranges++
		},
		func(slot uint32) {
			if m.states[slot] != slotZombie {
				m.log.DPanic("reclaimed slot is not a zombie", zap.Uint32("slot", slot))
				return
			}
			m.states[slot] = slotFree
			m.freeSlots = append(m.freeSlots, slot)
			slots++
		})
	return ranges, slots
}

// Stats returns current usage.
func (m *Manager) Stats() Stats {
	return Stats{
		Frame:        m.frame,
		Capacity:     m.alloc.Capacity(),
		UsedBytes:    m.alloc.Used(),
		FreeBytes:    m.alloc.Available(),
		FreeBlocks:   m.alloc.Fragments(),
		LargestFree:  m.alloc.LargestFree(),
		LiveSlots:    m.live,
		FreeSlots:    len(m.freeSlots),
		ZombieRanges: m.zombies.ranges,
		ZombieSlots:  m.zombies.slots,
		ZombieBytes:  m.zombies.bytes,
	}
}

func (m *Manager) owns(c *chunk.Chunk, slot uint32) bool {
	return int(slot) < len(m.states) && m.states[slot] == slotLive && m.owners[slot] == c
}

func (m *Manager) acquireSlot(c *chunk.Chunk) (uint32, bool) {
	for len(m.freeSlots) > 0 {
		n := len(m.freeSlots) - 1
		slot := m.freeSlots[n]
		m.freeSlots = m.freeSlots[:n]
		if m.states[slot] != slotFree {
			m.log.DPanic("free list holds a slot in use", zap.Uint32("slot", slot))
			continue
		}
		m.states[slot] = slotLive
		m.owners[slot] = c
		m.live++
		return slot, true
	}
	return 0, false
}

// dropSlot returns a slot that was never made visible to the GPU.
func (m *Manager) dropSlot(slot uint32) {
	m.states[slot] = slotFree
	m.owners[slot] = nil
	m.live--
	m.freeSlots = append(m.freeSlots, slot)
}

func (m *Manager) encode(quads []uint64) []byte {
	n := len(quads) * QuadSize
	if cap(m.encoded) < n {
		m.encoded = make([]byte, n)
	}
	buf := m.encoded[:n]
	for i, q := range quads {
		binary.LittleEndian.PutUint64(buf[i*QuadSize:], q)
	}
	return buf
}

func align(n uint32) uint32 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
