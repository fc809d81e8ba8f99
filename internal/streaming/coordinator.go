package streaming

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/chunk"
	"github.com/Faultbox/voxelstream/internal/engine/arena"
)

// FrameStats reports the work done by one Frame call.
type FrameStats struct {
	Absorbed       int
	Unloaded       int
	Scheduled      int
	Uploaded       int
	RecycledRanges int
	RecycledSlots  int
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Observer         chunk.Coord
	Resident         int
	Pending          int
	GenerationQueued int
	GenerationActive int
	MeshQueued       int
	MeshActive       int
	ResultsQueued    int
	UploadsQueued    int
	UnloadsQueued    int

	Generated      int64
	Cancelled      int64
	Meshed         int64
	Uploaded       int64
	UploadFailures int64
	Unloaded       int64
	Superseded     int64 // mesh results dropped for a newer one
	Edits          int64

	Pool  chunk.PoolStats
	Arena arena.Stats
}

// Frame runs one coordinator step: absorb generated chunks, evict, schedule
// meshing, upload finished meshes and recycle expired GPU ranges.
func (e *Engine) Frame() FrameStats {
	var fs FrameStats
	fs.Absorbed = e.absorb()
	fs.Unloaded = e.processUnloads()
	fs.Scheduled = e.scheduleMeshing()
	fs.Uploaded = e.upload()
	fs.RecycledRanges, fs.RecycledSlots = e.residency.Recycle()
	return fs
}

func (e *Engine) absorb() int {
	e.absorbBuf = e.results.popN(e.absorbBuf[:0], e.cfg.MaxAbsorbPerFrame)
	for i, c := range e.absorbBuf {
		if prev := e.store.Insert(c); prev != nil {
			e.residency.Release(prev)
			prev.Release()
		}
		e.dirty[c.Pos] = struct{}{}
		for f := chunk.Face(0); f < chunk.FaceCount; f++ {
			n := c.Pos.Neighbor(f)
			if e.store.Contains(n) {
				e.dirty[n] = struct{}{}
			}
		}
		e.pending.Remove(c.Pos)
		e.absorbBuf[i] = nil
	}
	return len(e.absorbBuf)
}

func (e *Engine) processUnloads() int {
	e.unloadBuf = e.unloads.drain(e.unloadBuf[:0])
	if len(e.unloadBuf) == 0 {
		return 0
	}
	center := e.observer.Chunk()
	radius, height := e.unloadBounds()

	n := 0
	for _, pos := range e.unloadBuf {
		// The observer may have come back since the chunk was marked.
		if !outOfRange(pos, center, radius, height) {
			continue
		}
		c, ok := e.store.Erase(pos)
		if !ok {
			continue
		}
		e.residency.Release(c)
		c.Release()
		delete(e.dirty, pos)
		n++
	}
	e.stats.unloaded.Add(int64(n))
	return n
}

func (e *Engine) scheduleMeshing() int {
	if len(e.dirty) == 0 {
		return 0
	}
	obs := e.observer.Position()
	ox, oy, oz := float64(obs.X()), float64(obs.Y()), float64(obs.Z())
	distSq := func(p chunk.Coord) float64 {
		x, y, z := p.Origin()
		dx := float64(x) + chunk.Size/2 - ox
		dy := float64(y) + chunk.Size/2 - oy
		dz := float64(z) + chunk.Size/2 - oz
		return dx*dx + dy*dy + dz*dz
	}

	list := e.scheduleBuf[:0]
	for pos := range e.dirty {
		list = append(list, pos)
	}
	clear(e.dirty)
	sort.Slice(list, func(i, j int) bool { return distSq(list[i]) < distSq(list[j]) })
	e.scheduleBuf = list

	n := 0
	for _, pos := range list {
		c, ok := e.store.TryGet(pos)
		if !ok {
			continue
		}
		c.MeshStamp++
		stamp := c.MeshStamp
		if !e.meshPool.Enqueue(int(distSq(pos)), func(s *meshScratch) { e.mesh(c, stamp, s) }) {
			c.Release()
			continue
		}
		n++
	}
	return n
}

func (e *Engine) upload() int {
	e.uploadBuf = e.uploads.popN(e.uploadBuf[:0], e.cfg.MaxUploadsPerFrame)
	n := 0
	for i, r := range e.uploadBuf {
		switch {
		case !e.store.Holds(r.chunk):
		case r.stamp < r.chunk.UploadedStamp:
			// A newer mesh of the same chunk finished first.
			e.stats.superseded.Add(1)
		default:
			if err := e.residency.Upload(r.chunk, r.quads); err != nil {
				e.reportUploadError(r.chunk, err)
			} else {
				r.chunk.UploadedStamp = r.stamp
				n++
			}
		}
		r.chunk.Release()
		e.uploadBuf[i] = meshResult{}
	}
	e.stats.uploaded.Add(int64(n))
	return n
}

func (e *Engine) reportUploadError(c *chunk.Chunk, err error) {
	e.stats.uploadFailures.Add(1)
	if !errors.Is(err, arena.ErrArenaFull) && !errors.Is(err, arena.ErrSlotsFull) {
		e.log.Error("chunk upload failed", zap.Stringer("chunk", c.Pos), zap.Error(err))
		return
	}
	if !e.warnLimit.Allow() {
		e.suppressed++
		return
	}
	e.log.Warn("GPU arena exhausted, dropping upload",
		zap.Stringer("chunk", c.Pos),
		zap.Int("suppressed", e.suppressed),
		zap.Error(err))
	e.suppressed = 0
}

// Stats returns a snapshot. Call it from the coordinator goroutine.
func (e *Engine) Stats() Stats {
	return Stats{
		Observer:         e.observer.Chunk(),
		Resident:         e.store.Len(),
		Pending:          e.pending.Len(),
		GenerationQueued: e.genPool.Len(),
		GenerationActive: e.genPool.Active(),
		MeshQueued:       e.meshPool.Len(),
		MeshActive:       e.meshPool.Active(),
		ResultsQueued:    e.results.len(),
		UploadsQueued:    e.uploads.len(),
		UnloadsQueued:    e.unloads.len(),
		Generated:        e.stats.generated.Load(),
		Cancelled:        e.stats.cancelled.Load(),
		Meshed:           e.stats.meshed.Load(),
		Uploaded:         e.stats.uploaded.Load(),
		UploadFailures:   e.stats.uploadFailures.Load(),
		Unloaded:         e.stats.unloaded.Load(),
		Superseded:       e.stats.superseded.Load(),
		Edits:            e.stats.edits.Load(),
		Pool:             e.pool.Stats(),
		Arena:            e.residency.Stats(),
	}
}
