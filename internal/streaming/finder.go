package streaming

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/chunk"
)

// GenerationQueue accepts generation work from the finder.
type GenerationQueue interface {
	Submit(pos chunk.Coord, priority int) bool
	Len() int
}

// FinderConfig tunes the scheduling loop.
type FinderConfig struct {
	Radius       int // horizontal, in chunks
	Height       int // vertical, in chunks
	UnloadMargin int
	Backlog      int // queued generation tasks above which enqueueing pauses
	BatchLimit   int // max tasks enqueued per pass

	ExhaustedSleep    time.Duration
	ActiveSleep       time.Duration
	IdleSleep         time.Duration
	BackpressureSleep time.Duration
}

// PassResult describes one scheduling pass.
type PassResult struct {
	Enqueued     int
	Marked       int // chunks marked for unload
	Exhausted    bool
	Backpressure bool
	Sleep        time.Duration
}

// Finder walks the neighbourhood of the observer nearest-first, queueing
// generation for missing chunks and marking distant ones for unload.
type Finder struct {
	observer *Observer
	store    *chunk.Store
	pending  *chunk.Set
	queue    GenerationQueue
	unloads  *unloadQueue
	log      *zap.Logger

	mu      sync.Mutex
	cfg     FinderConfig
	offsets []chunk.Coord
	cursor  int
	center  chunk.Coord
	started bool
}

func newFinder(cfg FinderConfig, observer *Observer, store *chunk.Store, pending *chunk.Set,
	queue GenerationQueue, unloads *unloadQueue, log *zap.Logger) *Finder {
	return &Finder{
		observer: observer,
		store:    store,
		pending:  pending,
		queue:    queue,
		unloads:  unloads,
		log:      log,
		cfg:      cfg,
		offsets:  Offsets(cfg.Radius, cfg.Height),
	}
}

// Offsets lists every offset with |dx|,|dz| <= radius and |dy| <= height,
// ordered by horizontal distance, then by |dy|.
func Offsets(radius, height int) []chunk.Coord {
	out := make([]chunk.Coord, 0, (2*radius+1)*(2*radius+1)*(2*height+1))
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			for dy := -height; dy <= height; dy++ {
				out = append(out, chunk.Coord{X: int32(dx), Y: int32(dy), Z: int32(dz)})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].PlanarDistSq(chunk.Coord{}), out[j].PlanarDistSq(chunk.Coord{})
		if di != dj {
			return di < dj
		}
		return abs(out[i].Y) < abs(out[j].Y)
	})
	return out
}

// SetRadius changes the streaming extent and restarts the walk.
func (f *Finder) SetRadius(radius, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.Radius, f.cfg.Height = radius, height
	f.offsets = Offsets(radius, height)
	f.cursor = 0
}

// Pass runs one scheduling pass.
func (f *Finder) Pass() PassResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	center := f.observer.Chunk()
	if !f.started || center != f.center {
		f.center = center
		f.cursor = 0
		f.started = true
	}

	if f.queue.Len() > f.cfg.Backlog {
		return PassResult{Backpressure: true, Sleep: f.cfg.BackpressureSleep}
	}

	var res PassResult
	for f.cursor < len(f.offsets) && res.Enqueued < f.cfg.BatchLimit {
		off := f.offsets[f.cursor]
		f.cursor++
		pos := center.Add(off)
		if f.store.Contains(pos) || !f.pending.Add(pos) {
			continue
		}
		if !f.queue.Submit(pos, int(off.PlanarDistSq(chunk.Coord{}))) {
			f.pending.Remove(pos)
			break
		}
		res.Enqueued++
	}
	res.Exhausted = f.cursor >= len(f.offsets)

	res.Marked = f.markUnloads(center)

	switch {
	case res.Exhausted:
		res.Sleep = f.cfg.ExhaustedSleep
	case res.Enqueued > 0:
		res.Sleep = f.cfg.ActiveSleep
	default:
		res.Sleep = f.cfg.IdleSleep
	}
	return res
}

func (f *Finder) markUnloads(center chunk.Coord) int {
	entries := f.store.Snapshot()
	defer chunk.ReleaseEntries(entries)

	marked := 0
	for _, e := range entries {
		if f.outOfRange(e.Pos, center) && f.unloads.push(e.Pos) {
			marked++
		}
	}
	return marked
}

func (f *Finder) outOfRange(pos, center chunk.Coord) bool {
	return outOfRange(pos, center, f.cfg.Radius+f.cfg.UnloadMargin, f.cfg.Height+f.cfg.UnloadMargin)
}

// outOfRange uses the Chebyshev distance horizontally.
func outOfRange(pos, center chunk.Coord, radius, height int) bool {
	d := pos.Sub(center)
	return int(max(abs(d.X), abs(d.Z))) > radius || int(abs(d.Y)) > height
}

// Run schedules until ctx is cancelled.
func (f *Finder) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		res := f.Pass()
		if res.Enqueued > 0 || res.Marked > 0 {
			f.log.Debug("finder pass",
				zap.Int("enqueued", res.Enqueued),
				zap.Int("marked", res.Marked),
				zap.Bool("exhausted", res.Exhausted))
		}
		timer.Reset(res.Sleep)
	}
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
