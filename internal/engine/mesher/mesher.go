package mesher

import "github.com/Faultbox/voxelstream/internal/chunk"

const (
	n   = chunk.Size
	pad = n + 2
)

// Scratch holds per-worker meshing buffers. A Scratch must not be shared
// between goroutines; Build rewrites everything it reads.
type Scratch struct {
	grid [pad * pad * pad]byte
	mask [n * n]byte
}

// NewScratch allocates meshing buffers.
func NewScratch() *Scratch {
	return &Scratch{}
}

func pidx(x, y, z int) int {
	return x + y*pad + z*pad*pad
}

// Build appends the greedy quads of center to out and returns it.
// neighbors is indexed by chunk.Face; nil neighbours count as air.
// Output order is deterministic: Z faces, then X faces, then Y faces.
func Build(center *chunk.Blocks, neighbors *[chunk.FaceCount]*chunk.Blocks, s *Scratch, out []uint64) []uint64 {
	s.fill(center, neighbors)

	for _, face := range [2]chunk.Face{chunk.FacePosZ, chunk.FaceNegZ} {
		dz := int(face.Offset().Z)
		for z := range n {
			empty := true
			for y := range n {
				for x := range n {
					s.mask[y*n+x] = s.exposed(x, y, z, 0, 0, dz)
					empty = empty && s.mask[y*n+x] == 0
				}
			}
			if empty {
				continue
			}
			out = s.sweep(out, func(i, j int, w, h uint8, m byte) Quad {
				return Quad{X: uint8(i), Y: uint8(j), Z: uint8(z), Face: face, W: w, H: h, Material: m}
			})
		}
	}

	for _, face := range [2]chunk.Face{chunk.FacePosX, chunk.FaceNegX} {
		dx := int(face.Offset().X)
		for x := range n {
			empty := true
			for y := range n {
				for z := range n {
					s.mask[y*n+z] = s.exposed(x, y, z, dx, 0, 0)
					empty = empty && s.mask[y*n+z] == 0
				}
			}
			if empty {
				continue
			}
			out = s.sweep(out, func(i, j int, w, h uint8, m byte) Quad {
				return Quad{X: uint8(x), Y: uint8(j), Z: uint8(i), Face: face, W: w, H: h, Material: m}
			})
		}
	}

	for _, face := range [2]chunk.Face{chunk.FacePosY, chunk.FaceNegY} {
		dy := int(face.Offset().Y)
		for y := range n {
			empty := true
			for z := range n {
				for x := range n {
					s.mask[z*n+x] = s.exposed(x, y, z, 0, dy, 0)
					empty = empty && s.mask[z*n+x] == 0
				}
			}
			if empty {
				continue
			}
			out = s.sweep(out, func(i, j int, w, h uint8, m byte) Quad {
				return Quad{X: uint8(i), Y: uint8(y), Z: uint8(j), Face: face, W: w, H: h, Material: m}
			})
		}
	}
	return out
}

// exposed returns the material at a local voxel if the face toward
// (dx,dy,dz) touches air, or 0.
func (s *Scratch) exposed(x, y, z, dx, dy, dz int) byte {
	v := s.grid[pidx(x+1, y+1, z+1)]
	if v == chunk.Air || s.grid[pidx(x+1+dx, y+1+dy, z+1+dz)] != chunk.Air {
		return 0
	}
	return v
}

// sweep greedily merges the mask into rectangles, row-major: widen along the
// row first, then grow rows while the whole span matches.
func (s *Scratch) sweep(out []uint64, emit func(i, j int, w, h uint8, m byte) Quad) []uint64 {
	mask := &s.mask
	for j := range n {
		for i := 0; i < n; {
			m := mask[j*n+i]
			if m == 0 {
				i++
				continue
			}
			w := 1
			for i+w < n && mask[j*n+i+w] == m {
				w++
			}
			h := 1
		grow:
			for j+h < n {
				row := (j + h) * n
				for k := range w {
					if mask[row+i+k] != m {
						break grow
					}
				}
				h++
			}
			for r := range h {
				row := (j + r) * n
				clear(mask[row+i : row+i+w])
			}
			out = append(out, emit(i, j, uint8(w), uint8(h), m).Pack())
			i += w
		}
	}
	return out
}

// fill copies center into the padded grid and every border face from the
// matching neighbour, or air. Edge and corner cells are never read.
func (s *Scratch) fill(center *chunk.Blocks, neighbors *[chunk.FaceCount]*chunk.Blocks) {
	g := &s.grid
	for z := range n {
		for y := range n {
			src := chunk.Index(0, y, z)
			copy(g[pidx(1, y+1, z+1):pidx(1+n, y+1, z+1)], center[src:src+n])
		}
	}

	nb := func(f chunk.Face) *chunk.Blocks {
		if neighbors == nil {
			return nil
		}
		return neighbors[f]
	}

	for a := range n {
		for b := range n {
			// a,b walk the two in-plane axes of each border face.
			g[pidx(a+1, b+1, pad-1)] = at(nb(chunk.FacePosZ), a, b, 0)
			g[pidx(a+1, b+1, 0)] = at(nb(chunk.FaceNegZ), a, b, n-1)
			g[pidx(a+1, pad-1, b+1)] = at(nb(chunk.FacePosY), a, 0, b)
			g[pidx(a+1, 0, b+1)] = at(nb(chunk.FaceNegY), a, n-1, b)
			g[pidx(pad-1, a+1, b+1)] = at(nb(chunk.FacePosX), 0, a, b)
			g[pidx(0, a+1, b+1)] = at(nb(chunk.FaceNegX), n-1, a, b)
		}
	}
}

func at(b *chunk.Blocks, x, y, z int) byte {
	if b == nil {
		return chunk.Air
	}
	return b.At(x, y, z)
}
