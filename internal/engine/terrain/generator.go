package terrain

import (
	"github.com/Faultbox/voxelstream/internal/chunk"
)

// Lattice geometry: density is sampled every latticeStep voxels and
// interpolated in between. One extra row on top feeds the surface test.
const (
	latticeStep = 2
	latticeX    = chunk.Size/latticeStep + 1
	latticeY    = chunk.Size/latticeStep + 2
	latticeZ    = chunk.Size/latticeStep + 1
)

// Defaults for GeneratorConfig.
const (
	DefaultMaxHeight       = 128
	DefaultSubsurfaceDepth = 3
)

// GeneratorConfig controls voxel synthesis.
type GeneratorConfig struct {
	// Chunks whose base lies above MaxHeight are left empty without sampling.
	MaxHeight       int32
	SubsurfaceDepth int
}

// Generator fills chunks from a density field. It is stateless and safe
// for concurrent use; per-call buffers live in Scratch.
type Generator struct {
	density Density
	cfg     GeneratorConfig
}

// Scratch holds a worker's lattice samples.
type Scratch struct {
	lattice [latticeX * latticeY * latticeZ]float64
}

// NewScratch allocates generator buffers.
func NewScratch() *Scratch {
	return &Scratch{}
}

// NewGenerator creates a generator over density.
func NewGenerator(density Density, cfg GeneratorConfig) *Generator {
	if cfg.SubsurfaceDepth < 0 {
		cfg.SubsurfaceDepth = 0
	}
	return &Generator{density: density, cfg: cfg}
}

func lidx(i, j, k int) int {
	return i + j*latticeX + k*latticeX*latticeY
}

// Generate overwrites every voxel of dst with the terrain of chunk pos and
// reports whether any voxel is solid.
func (g *Generator) Generate(pos chunk.Coord, dst *chunk.Blocks, s *Scratch) bool {
	ox, oy, oz := pos.Origin()
	if oy > g.cfg.MaxHeight {
		clear(dst[:])
		return false
	}

	for k := range latticeZ {
		for j := range latticeY {
			for i := range latticeX {
				s.lattice[lidx(i, j, k)] = g.density.Density(
					float64(ox+int32(i*latticeStep)),
					float64(oy+int32(j*latticeStep)),
					float64(oz+int32(k*latticeStep)),
				)
			}
		}
	}

	solid := false
	for z := range chunk.Size {
		for x := range chunk.Size {
			// depth counts solid cells from the last air cell going down.
			depth := 0
			if s.sample(x, chunk.Size, z) > 0 {
				depth = g.cfg.SubsurfaceDepth + 1
			}
			for y := chunk.Size - 1; y >= 0; y-- {
				if s.sample(x, y, z) <= 0 {
					dst.Set(x, y, z, chunk.Air)
					depth = 0
					continue
				}
				solid = true
				switch {
				case depth == 0:
					dst.Set(x, y, z, chunk.Grass)
				case depth <= g.cfg.SubsurfaceDepth:
					dst.Set(x, y, z, chunk.Dirt)
				default:
					dst.Set(x, y, z, chunk.Stone)
				}
				depth++
			}
		}
	}
	return solid
}

// sample trilinearly interpolates the lattice at a local voxel position.
func (s *Scratch) sample(x, y, z int) float64 {
	i, j, k := x/latticeStep, y/latticeStep, z/latticeStep
	fx := float64(x%latticeStep) / latticeStep
	fy := float64(y%latticeStep) / latticeStep
	fz := float64(z%latticeStep) / latticeStep

	i1, j1, k1 := min(i+1, latticeX-1), min(j+1, latticeY-1), min(k+1, latticeZ-1)
	l := &s.lattice

	c00 := lerp(l[lidx(i, j, k)], l[lidx(i1, j, k)], fx)
	c10 := lerp(l[lidx(i, j1, k)], l[lidx(i1, j1, k)], fx)
	c01 := lerp(l[lidx(i, j, k1)], l[lidx(i1, j, k1)], fx)
	c11 := lerp(l[lidx(i, j1, k1)], l[lidx(i1, j1, k1)], fx)
	return lerp(lerp(c00, c10, fy), lerp(c01, c11, fy), fz)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
