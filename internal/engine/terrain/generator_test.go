package terrain

import (
	"testing"

	"github.com/Faultbox/voxelstream/internal/chunk"
)

func defaultGenerator(d Density) *Generator {
	return NewGenerator(d, GeneratorConfig{MaxHeight: DefaultMaxHeight, SubsurfaceDepth: DefaultSubsurfaceDepth})
}

func TestFlatGroundMaterials(t *testing.T) {
	// Solid strictly below y = 10.5.
	flat := DensityFunc(func(x, y, z float64) float64 { return 10.5 - y })
	g := defaultGenerator(flat)
	dst := new(chunk.Blocks)

	if !g.Generate(chunk.Coord{}, dst, NewScratch()) {
		t.Fatal("expected solid voxels")
	}

	tests := []struct {
		y    int
		want byte
	}{
		{31, chunk.Air},
		{11, chunk.Air},
		{10, chunk.Grass},
		{9, chunk.Dirt},
		{7, chunk.Dirt},
		{6, chunk.Stone},
		{0, chunk.Stone},
	}
	for _, tt := range tests {
		for _, col := range [][2]int{{0, 0}, {17, 31}, {31, 5}} {
			if got := dst.At(col[0], tt.y, col[1]); got != tt.want {
				t.Errorf("column %v y=%d: expected %d, got %d", col, tt.y, tt.want, got)
			}
		}
	}
}

func TestOverhangResetsSurface(t *testing.T) {
	// Solid slab 20..24 floating over ground below 5.
	d := DensityFunc(func(x, y, z float64) float64 {
		if (y >= 20 && y <= 24) || y <= 4 {
			return 1
		}
		return -1
	})
	g := defaultGenerator(d)
	dst := new(chunk.Blocks)
	g.Generate(chunk.Coord{}, dst, NewScratch())

	// Lattice points sit on even y, so the slab spans 20..24 exactly.
	if got := dst.At(3, 24, 3); got != chunk.Grass {
		t.Errorf("expected grass on top of slab, got %d", got)
	}
	if got := dst.At(3, 4, 3); got != chunk.Grass {
		t.Errorf("expected grass on ground under the overhang, got %d", got)
	}
	if got := dst.At(3, 0, 3); got != chunk.Stone {
		t.Errorf("expected stone at depth 4, got %d", got)
	}
}

func TestAboveMaxHeightIsEmpty(t *testing.T) {
	calls := 0
	d := DensityFunc(func(x, y, z float64) float64 {
		calls++
		return 1
	})
	g := defaultGenerator(d)
	dst := new(chunk.Blocks)
	dst[0] = chunk.Stone // stale contents from a pooled buffer

	if g.Generate(chunk.Coord{Y: 5}, dst, NewScratch()) {
		t.Error("expected empty chunk above max height")
	}
	if !dst.Empty() {
		t.Error("expected buffer cleared")
	}
	if calls != 0 {
		t.Errorf("expected no density samples, got %d", calls)
	}
}

func TestSolidAboveChunkStartsAsStone(t *testing.T) {
	g := defaultGenerator(DensityFunc(func(x, y, z float64) float64 { return 1 }))
	dst := new(chunk.Blocks)
	g.Generate(chunk.Coord{Y: -2}, dst, NewScratch())
	if got := dst.At(0, 31, 0); got != chunk.Stone {
		t.Errorf("expected buried top layer to be stone, got %d", got)
	}
}

func TestNoiseTerrainDeterministic(t *testing.T) {
	g := defaultGenerator(NewNoiseDensity(DefaultNoiseConfig()))
	a, b := new(chunk.Blocks), new(chunk.Blocks)
	pos := chunk.Coord{X: 3, Y: 0, Z: -2}
	g.Generate(pos, a, NewScratch())
	g.Generate(pos, b, NewScratch())
	if *a != *b {
		t.Error("expected identical voxels for the same coordinate")
	}
}

func TestNoiseTerrainBands(t *testing.T) {
	g := defaultGenerator(NewNoiseDensity(DefaultNoiseConfig()))
	s := NewScratch()

	deep := new(chunk.Blocks)
	g.Generate(chunk.Coord{Y: -4}, deep, s)
	for i, v := range deep {
		if v == chunk.Air {
			t.Fatalf("expected deep chunk fully solid, air at index %d", i)
		}
	}

	sky := new(chunk.Blocks)
	if g.Generate(chunk.Coord{Y: 3}, sky, s) || !sky.Empty() {
		t.Error("expected high chunk to be air")
	}
}
