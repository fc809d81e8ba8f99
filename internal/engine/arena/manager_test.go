package arena

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/voxelstream/internal/chunk"
	"github.com/Faultbox/voxelstream/internal/engine/gpu"
	"github.com/Faultbox/voxelstream/internal/logger"
)

func newTestManager(t *testing.T, capacity uint32, slots int) (*Manager, *gpu.Memory) {
	t.Helper()
	mem := gpu.NewMemory()
	mem.KeepLog = true
	m, err := New(mem, Config{CapacityBytes: capacity, Slots: slots, GraceFrames: 3})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m, mem
}

func quads(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i + 1)
	}
	return out
}

func TestUploadWritesGeometryBeforeMetadata(t *testing.T) {
	m, mem := newTestManager(t, 1024, 4)
	c := chunk.New(chunk.Coord{X: 1, Y: -1, Z: 2}, nil, nil)

	if err := m.Upload(c, quads(3)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	log := mem.Log()
	if len(log) != 2 {
		t.Fatalf("expected 2 writes, got %+v", log)
	}
	if log[0].Kind != gpu.WriteGeometry || log[1].Kind != gpu.WriteMetadata {
		t.Errorf("expected geometry then metadata, got %+v", log)
	}

	if c.GPU == nil {
		t.Fatal("expected chunk to record its residency")
	}
	rec := mem.Slot(m.MetadataTable(), int(c.GPU.Slot))
	want := gpu.SlotRecord{WorldX: 32, WorldY: -32, WorldZ: 64, GeometryCount: 3, GeometryOffset: 0, SlotIndex: 0}
	if rec != want {
		t.Errorf("expected record %+v, got %+v", want, rec)
	}
	if c.GPU.Size != 32 {
		t.Errorf("expected 24 bytes aligned to 32, got %d", c.GPU.Size)
	}
	if got := mem.Bytes(m.ArenaBuffer())[8]; got != 2 {
		t.Errorf("expected second quad at byte 8, got %d", got)
	}
}

func TestReuploadKeepsOldRangeUntilGrace(t *testing.T) {
	m, _ := newTestManager(t, 1024, 4)
	c := chunk.New(chunk.Coord{}, nil, nil)

	if err := m.Upload(c, quads(4)); err != nil {
		t.Fatal(err)
	}
	first := *c.GPU
	if err := m.Upload(c, quads(4)); err != nil {
		t.Fatal(err)
	}
	second := *c.GPU

	if first.Slot != second.Slot {
		t.Errorf("expected slot reuse, got %d then %d", first.Slot, second.Slot)
	}
	if first.Offset == second.Offset {
		t.Fatal("expected a distinct range for the new geometry")
	}
	if got := m.Stats().UsedBytes; got != 64 {
		t.Errorf("expected both ranges allocated (64 bytes), got %d", got)
	}

	for frame := 1; frame <= 2; frame++ {
		m.Recycle()
		if got := m.Stats().UsedBytes; got != 64 {
			t.Fatalf("frame %d: old range reclaimed early, used=%d", frame, got)
		}
	}
	m.Recycle()
	if got := m.Stats().UsedBytes; got != 32 {
		t.Errorf("expected old range reclaimed after 3 frames, used=%d", got)
	}
}

func TestReleaseHidesSlotAndDefersReuse(t *testing.T) {
	m, mem := newTestManager(t, 1024, 1)
	a := chunk.New(chunk.Coord{X: 1}, nil, nil)
	b := chunk.New(chunk.Coord{X: 2}, nil, nil)

	if err := m.Upload(a, quads(2)); err != nil {
		t.Fatal(err)
	}
	slot := a.GPU.Slot
	m.Release(a)

	if a.GPU != nil {
		t.Error("expected release to detach the handle")
	}
	if rec := mem.Slot(m.MetadataTable(), int(slot)); rec.GeometryCount != 0 {
		t.Errorf("expected released slot hidden, count=%d", rec.GeometryCount)
	}
	// Releasing again is a no-op.
	m.Release(a)

	if err := m.Upload(b, quads(1)); !errors.Is(err, ErrSlotsFull) {
		t.Fatalf("expected ErrSlotsFull while slot is a zombie, got %v", err)
	}
	for range 3 {
		m.Recycle()
	}
	if err := m.Upload(b, quads(1)); err != nil {
		t.Fatalf("expected slot available after grace, got %v", err)
	}
	if b.GPU.Slot != slot {
		t.Errorf("expected recycled slot %d, got %d", slot, b.GPU.Slot)
	}
	st := m.Stats()
	if st.LiveSlots != 1 || st.ZombieSlots != 0 || st.ZombieRanges != 0 {
		t.Errorf("unexpected stats after reuse: %+v", st)
	}
}

func TestArenaFullKeepsPreviousGeometry(t *testing.T) {
	m, mem := newTestManager(t, 64, 4)
	c := chunk.New(chunk.Coord{}, nil, nil)

	if err := m.Upload(c, quads(4)); err != nil {
		t.Fatal(err)
	}
	before := *c.GPU

	err := m.Upload(c, quads(5))
	if !errors.Is(err, ErrArenaFull) {
		t.Fatalf("expected ErrArenaFull, got %v", err)
	}
	if *c.GPU != before {
		t.Errorf("expected handle unchanged, got %+v", *c.GPU)
	}
	if rec := mem.Slot(m.MetadataTable(), int(before.Slot)); rec.GeometryCount != 4 {
		t.Errorf("expected old geometry still visible, count=%d", rec.GeometryCount)
	}

	fresh := chunk.New(chunk.Coord{X: 9}, nil, nil)
	if err := m.Upload(fresh, quads(8)); !errors.Is(err, ErrArenaFull) {
		t.Fatalf("expected ErrArenaFull, got %v", err)
	}
	if fresh.GPU != nil {
		t.Error("expected no residency after failed first upload")
	}
	if st := m.Stats(); st.LiveSlots != 1 || st.FreeSlots != 3 {
		t.Errorf("expected failed upload to return its slot, got %+v", st)
	}
}

func TestEmptyMeshUpload(t *testing.T) {
	m, mem := newTestManager(t, 256, 2)
	c := chunk.New(chunk.Coord{}, nil, nil)

	if err := m.Upload(c, quads(2)); err != nil {
		t.Fatal(err)
	}
	if err := m.Upload(c, nil); err != nil {
		t.Fatalf("empty upload: %v", err)
	}
	if c.GPU == nil || c.GPU.Size != 0 {
		t.Fatalf("expected resident handle with no range, got %+v", c.GPU)
	}
	if rec := mem.Slot(m.MetadataTable(), int(c.GPU.Slot)); rec.GeometryCount != 0 {
		t.Errorf("expected count 0, got %d", rec.GeometryCount)
	}
	if st := m.Stats(); st.ZombieRanges != 1 {
		t.Errorf("expected old range deferred, got %d zombie ranges", st.ZombieRanges)
	}
}

func TestWriteFailureFreesNewRange(t *testing.T) {
	m, mem := newTestManager(t, 256, 2)
	mem.WriteErr = errors.New("device lost")
	c := chunk.New(chunk.Coord{}, nil, nil)

	if err := m.Upload(c, quads(2)); err == nil {
		t.Fatal("expected write error")
	}
	st := m.Stats()
	if st.UsedBytes != 0 || st.LiveSlots != 0 {
		t.Errorf("expected nothing leaked, got %+v", st)
	}
}

func TestZombieTiming(t *testing.T) {
	for grace := uint64(1); grace <= 4; grace++ {
		mem := gpu.NewMemory()
		m, err := New(mem, Config{CapacityBytes: 1024, Slots: 2, GraceFrames: grace})
		if err != nil {
			t.Fatal(err)
		}
		m.Recycle() // release happens at a non-zero frame
		c := chunk.New(chunk.Coord{}, nil, nil)
		if err := m.Upload(c, quads(1)); err != nil {
			t.Fatal(err)
		}
		released := m.Frame()
		m.Release(c)

		for m.Stats().ZombieSlots > 0 {
			m.Recycle()
			if m.Frame() < released+grace && m.Stats().ZombieSlots == 0 {
				t.Fatalf("grace %d: reclaimed at frame %d, released at %d", grace, m.Frame(), released)
			}
			if m.Frame() > released+grace+1 {
				t.Fatalf("grace %d: not reclaimed by frame %d", grace, m.Frame())
			}
		}
	}
}

func TestForeignHandleIsRejected(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Set(zap.New(core))
	defer logger.Set(nil)

	m, _ := newTestManager(t, 256, 2)
	owner := chunk.New(chunk.Coord{}, nil, nil)
	if err := m.Upload(owner, quads(1)); err != nil {
		t.Fatal(err)
	}

	impostor := chunk.New(chunk.Coord{X: 5}, nil, nil)
	impostor.GPU = &chunk.GPUHandle{Slot: owner.GPU.Slot}
	m.Release(impostor)

	if logs.FilterMessage("released chunk does not own its slot").Len() != 1 {
		t.Error("expected invariant violation to be reported")
	}
	if st := m.Stats(); st.LiveSlots != 1 || st.ZombieSlots != 0 {
		t.Errorf("expected owner's slot untouched, got %+v", st)
	}
}

func TestTransferKeepsSlotLive(t *testing.T) {
	m, mem := newTestManager(t, 1024, 4)
	old := chunk.New(chunk.Coord{X: 2}, nil, nil)
	if err := m.Upload(old, quads(3)); err != nil {
		t.Fatal(err)
	}
	slot := old.GPU.Slot

	next := chunk.New(chunk.Coord{X: 2}, nil, nil)
	m.Transfer(old, next)
	if old.GPU != nil {
		t.Error("expected the old chunk to give up its handle")
	}
	if next.GPU == nil || next.GPU.Slot != slot {
		t.Fatalf("expected slot %d transferred, got %+v", slot, next.GPU)
	}
	if rec := mem.Slot(m.MetadataTable(), int(slot)); rec.GeometryCount != 3 {
		t.Errorf("expected geometry to stay visible, got %+v", rec)
	}

	if err := m.Upload(next, quads(5)); err != nil {
		t.Fatalf("upload after transfer: %v", err)
	}
	if next.GPU.Slot != slot {
		t.Errorf("expected re-upload into slot %d, got %d", slot, next.GPU.Slot)
	}
	if st := m.Stats(); st.LiveSlots != 1 || st.ZombieRanges != 1 {
		t.Errorf("expected 1 live slot and the old range deferred, got %+v", st)
	}

	m.Release(next)
	if st := m.Stats(); st.LiveSlots != 0 {
		t.Errorf("expected no live slots, got %d", st.LiveSlots)
	}
}

func TestSlotCapacity(t *testing.T) {
	if got := SlotCapacity(1, 0, 0); got != 9 {
		t.Errorf("expected 9, got %d", got)
	}
	if got := SlotCapacity(16, 8, 2); got != 37*37*21 {
		t.Errorf("expected %d, got %d", 37*37*21, got)
	}
}
