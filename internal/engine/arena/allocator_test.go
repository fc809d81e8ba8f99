package arena

import (
	"errors"
	"math/rand"
	"testing"
)

func checkInvariants(t *testing.T, a *Allocator) {
	t.Helper()
	var free uint64
	blocks := a.FreeBlocks()
	for i, b := range blocks {
		free += uint64(b.Size)
		if b.Size == 0 {
			t.Fatalf("free block %d has zero size", i)
		}
		if i > 0 && blocks[i-1].End() >= uint64(b.Offset) {
			t.Fatalf("free blocks %d and %d touch or overlap: %+v %+v", i-1, i, blocks[i-1], b)
		}
	}
	if free+uint64(a.Used()) != uint64(a.Capacity()) {
		t.Fatalf("free %d + used %d != capacity %d", free, a.Used(), a.Capacity())
	}
}

func TestAllocateFirstFit(t *testing.T) {
	a := NewAllocator(100)

	tests := []struct {
		name string
		size uint32
		want uint32
		ok   bool
	}{
		{"first", 10, 0, true},
		{"second", 20, 10, true},
		{"zero size", 0, InvalidOffset, false},
		{"too large", 71, InvalidOffset, false},
		{"exact remainder", 70, 30, true},
		{"exhausted", 1, InvalidOffset, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := a.Allocate(tt.size)
			if got != tt.want || ok != tt.ok {
				t.Errorf("expected (%d, %v), got (%d, %v)", tt.want, tt.ok, got, ok)
			}
			checkInvariants(t, a)
		})
	}
	if a.Fragments() != 0 {
		t.Errorf("expected exact fit to remove the last block, got %d blocks", a.Fragments())
	}
}

func TestFreeCoalesces(t *testing.T) {
	a := NewAllocator(40)
	offs := make([]uint32, 4)
	for i := range offs {
		offs[i], _ = a.Allocate(10)
	}

	// Free 0 and 2: two separate holes.
	if err := a.Free(offs[0], 10); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(offs[2], 10); err != nil {
		t.Fatal(err)
	}
	if a.Fragments() != 2 {
		t.Fatalf("expected 2 free blocks, got %d", a.Fragments())
	}
	checkInvariants(t, a)

	// Freeing 1 bridges both neighbours.
	if err := a.Free(offs[1], 10); err != nil {
		t.Fatal(err)
	}
	if blocks := a.FreeBlocks(); len(blocks) != 1 || blocks[0] != (Block{0, 30}) {
		t.Fatalf("expected single block [0,30), got %+v", blocks)
	}

	// Freeing 3 merges with previous.
	if err := a.Free(offs[3], 10); err != nil {
		t.Fatal(err)
	}
	if blocks := a.FreeBlocks(); len(blocks) != 1 || blocks[0] != (Block{0, 40}) {
		t.Fatalf("expected whole arena free, got %+v", blocks)
	}
	checkInvariants(t, a)
}

func TestFreeMergesWithNext(t *testing.T) {
	a := NewAllocator(30)
	first, _ := a.Allocate(10)
	a.Allocate(10)
	// Tail [20,30) is free; free [0,10) stays separate, then [10,20) joins both.
	if err := a.Free(first, 10); err != nil {
		t.Fatal(err)
	}
	if a.Fragments() != 2 {
		t.Errorf("expected 2 blocks, got %d", a.Fragments())
	}
	if err := a.Free(10, 10); err != nil {
		t.Fatal(err)
	}
	if a.Fragments() != 1 || a.Available() != 30 {
		t.Errorf("expected one 30-byte block, got %+v", a.FreeBlocks())
	}
}

func TestFreeRejectsInvalidRanges(t *testing.T) {
	a := NewAllocator(64)
	a.Allocate(32)

	tests := []struct {
		name         string
		offset, size uint32
	}{
		{"zero size", 0, 0},
		{"past capacity", 60, 8},
		{"overlaps free tail", 24, 16},
		{"already free", 32, 8},
		{"wraps", 0xFFFFFFF0, 0x20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := a.FreeBlocks()
			err := a.Free(tt.offset, tt.size)
			if !errors.Is(err, ErrInvalidRange) {
				t.Errorf("expected ErrInvalidRange, got %v", err)
			}
			if len(a.FreeBlocks()) != len(before) || a.Used() != 32 {
				t.Error("rejected free modified allocator state")
			}
		})
	}
}

func TestConservationUnderRandomWorkload(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := NewAllocator(1 << 16)
	var live []Block

	for step := range 5000 {
		if len(live) > 0 && rng.Intn(3) == 0 {
			i := rng.Intn(len(live))
			b := live[i]
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
			if err := a.Free(b.Offset, b.Size); err != nil {
				t.Fatalf("step %d: free %+v: %v", step, b, err)
			}
		} else {
			size := uint32(rng.Intn(512) + 1)
			if off, ok := a.Allocate(size); ok {
				live = append(live, Block{off, size})
			}
		}
		if step%250 == 0 {
			checkInvariants(t, a)
		}
	}

	for _, b := range live {
		if err := a.Free(b.Offset, b.Size); err != nil {
			t.Fatalf("final free %+v: %v", b, err)
		}
	}
	if blocks := a.FreeBlocks(); len(blocks) != 1 || blocks[0] != (Block{0, 1 << 16}) {
		t.Errorf("expected fully coalesced arena, got %d blocks", len(blocks))
	}
}
