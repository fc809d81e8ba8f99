// Package streaming keeps a bounded set of generated, meshed and
// GPU-resident chunks around a moving observer.
//
// An Engine owns every shared piece of the pipeline. A finder goroutine
// schedules generation, worker pools generate and mesh, and the goroutine
// that calls Frame (the coordinator) is the only one that mutates the store
// or touches the GPU arena.
package streaming

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Faultbox/voxelstream/internal/chunk"
	"github.com/Faultbox/voxelstream/internal/engine/arena"
	"github.com/Faultbox/voxelstream/internal/engine/mesher"
	"github.com/Faultbox/voxelstream/internal/engine/terrain"
	"github.com/Faultbox/voxelstream/internal/logger"
	"github.com/Faultbox/voxelstream/internal/workqueue"
)

// Residency is the GPU side of the pipeline. *arena.Manager implements it.
type Residency interface {
	Upload(c *chunk.Chunk, quads []uint64) error
	Release(c *chunk.Chunk)
	Transfer(from, to *chunk.Chunk)
	Recycle() (ranges, slots int)
	Stats() arena.Stats
}

// Config sizes the pipeline.
type Config struct {
	Finder FinderConfig

	// Queued generation is dropped once the chunk lies more than
	// CancelMargin chunks beyond the unload boundary.
	CancelMargin int

	GenerationWorkers  int
	MeshWorkers        int
	MaxAbsorbPerFrame  int
	MaxUploadsPerFrame int
	PoolSize           int // idle voxel buffers kept for reuse
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		Finder: FinderConfig{
			Radius:            16,
			Height:            8,
			UnloadMargin:      2,
			Backlog:           400,
			BatchLimit:        100,
			ExhaustedSleep:    50 * time.Millisecond,
			ActiveSleep:       100 * time.Microsecond,
			IdleSleep:         2 * time.Millisecond,
			BackpressureSleep: 5 * time.Millisecond,
		},
		CancelMargin:       2,
		GenerationWorkers:  4,
		MeshWorkers:        2,
		MaxAbsorbPerFrame:  256,
		MaxUploadsPerFrame: 256,
		PoolSize:           chunk.DefaultMaxPooled,
	}
}

// Validate reports settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Finder.Radius < 0 || c.Finder.Height < 0:
		return fmt.Errorf("render extent must not be negative: radius=%d height=%d", c.Finder.Radius, c.Finder.Height)
	case c.Finder.BatchLimit < 1:
		return fmt.Errorf("batch limit must be positive, got %d", c.Finder.BatchLimit)
	case c.GenerationWorkers < 1 || c.MeshWorkers < 1:
		return fmt.Errorf("worker counts must be positive: generation=%d mesh=%d", c.GenerationWorkers, c.MeshWorkers)
	case c.MaxAbsorbPerFrame < 1 || c.MaxUploadsPerFrame < 1:
		return fmt.Errorf("per-frame limits must be positive: absorb=%d upload=%d", c.MaxAbsorbPerFrame, c.MaxUploadsPerFrame)
	}
	return nil
}

type genScratch struct {
	cache   *chunk.Cache
	terrain *terrain.Scratch
}

type meshScratch struct {
	mesher *mesher.Scratch
	quads  []uint64
}

type meshResult struct {
	chunk *chunk.Chunk
	quads []uint64
	stamp uint64
}

type counters struct {
	generated      atomic.Int64
	cancelled      atomic.Int64
	meshed         atomic.Int64
	uploaded       atomic.Int64
	uploadFailures atomic.Int64
	unloaded       atomic.Int64
	superseded     atomic.Int64
	edits          atomic.Int64
}

// Engine is one streaming world.
type Engine struct {
	cfg       Config
	log       *zap.Logger
	generator *terrain.Generator
	residency Residency

	observer *Observer
	store    *chunk.Store
	pending  *chunk.Set
	pool     *chunk.Pool
	finder   *Finder

	genPool  *workqueue.Pool[*genScratch]
	meshPool *workqueue.Pool[*meshScratch]
	results  fifo[*chunk.Chunk]
	uploads  fifo[meshResult]
	unloads  *unloadQueue

	// Current extent, at most the extent the engine was created with.
	radius  atomic.Int32
	height  atomic.Int32
	running atomic.Bool
	stats   counters

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	// Coordinator-only state.
	dirty       map[chunk.Coord]struct{}
	absorbBuf   []*chunk.Chunk
	uploadBuf   []meshResult
	unloadBuf   []chunk.Coord
	scheduleBuf []chunk.Coord
	warnLimit   *rate.Limiter
	suppressed  int
}

// New builds an engine and starts its worker pools. Call Start to begin
// scheduling and Close to tear everything down.
func New(cfg Config, generator *terrain.Generator, residency Residency) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid streaming config: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		log:       logger.Named("streaming"),
		generator: generator,
		residency: residency,
		observer:  &Observer{},
		store:     chunk.NewStore(),
		pending:   chunk.NewSet(),
		pool:      chunk.NewPool(cfg.PoolSize),
		unloads:   newUnloadQueue(),
		dirty:     make(map[chunk.Coord]struct{}),
		warnLimit: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	e.radius.Store(int32(cfg.Finder.Radius))
	e.height.Store(int32(cfg.Finder.Height))
	e.running.Store(true)

	e.genPool = workqueue.New(cfg.GenerationWorkers,
		func(int) *genScratch {
			return &genScratch{cache: e.pool.NewCache(chunk.DefaultCacheSize), terrain: terrain.NewScratch()}
		},
		workqueue.WithOnExit(func(s *genScratch) { s.cache.Flush() }))
	e.meshPool = workqueue.New(cfg.MeshWorkers,
		func(int) *meshScratch { return &meshScratch{mesher: mesher.NewScratch()} })

	e.finder = newFinder(cfg.Finder, e.observer, e.store, e.pending, generationQueue{e}, e.unloads, e.log.Named("finder"))

	e.log.Info("streaming engine created",
		zap.Int("radius", cfg.Finder.Radius),
		zap.Int("height", cfg.Finder.Height),
		zap.Int("generationWorkers", cfg.GenerationWorkers),
		zap.Int("meshWorkers", cfg.MeshWorkers))
	return e, nil
}

// Start launches the finder. It stops when ctx is cancelled or on Close.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.finder.Run(ctx)
	}()
}

// SetObserver moves the streaming centre to a world position.
func (e *Engine) SetObserver(pos mgl32.Vec3) {
	e.observer.Set(pos)
}

// Observer returns the observer's chunk.
func (e *Engine) Observer() chunk.Coord {
	return e.observer.Chunk()
}

// SetRadius changes the streaming extent and returns the extent applied.
// Values are clamped to [0, startup extent] because the GPU slot table is
// sized for the startup extent. Call it from the coordinator goroutine.
func (e *Engine) SetRadius(radius, height int) (int, int) {
	radius = min(max(radius, 0), e.cfg.Finder.Radius)
	height = min(max(height, 0), e.cfg.Finder.Height)
	if radius == int(e.radius.Load()) && height == int(e.height.Load()) {
		return radius, height
	}
	e.radius.Store(int32(radius))
	e.height.Store(int32(height))
	e.finder.SetRadius(radius, height)
	e.log.Info("streaming extent changed", zap.Int("radius", radius), zap.Int("height", height))
	return radius, height
}

// Radius returns the current horizontal and vertical extent.
func (e *Engine) Radius() (int, int) {
	return int(e.radius.Load()), int(e.height.Load())
}

// unloadBounds returns the extent beyond which resident chunks are evicted.
func (e *Engine) unloadBounds() (radius, height int) {
	m := e.cfg.Finder.UnloadMargin
	return int(e.radius.Load()) + m, int(e.height.Load()) + m
}

// Store exposes the resident chunk set.
func (e *Engine) Store() *chunk.Store {
	return e.store
}

// Close stops all goroutines and releases every chunk and its GPU residency.
// It must be called from the coordinator goroutine.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.running.Store(false)
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.genPool.Shutdown()
		e.meshPool.Shutdown()

		for _, c := range e.results.popN(nil, 0) {
			e.pending.Remove(c.Pos)
			c.Release()
		}
		for _, r := range e.uploads.popN(nil, 0) {
			r.chunk.Release()
		}
		released := 0
		for _, c := range e.store.Drain() {
			e.residency.Release(c)
			c.Release()
			released++
		}
		e.pool.Close()
		e.log.Info("streaming engine closed", zap.Int("releasedChunks", released))
	})
}

// generationQueue feeds finder submissions into the generation pool.
type generationQueue struct{ e *Engine }

func (q generationQueue) Submit(pos chunk.Coord, priority int) bool {
	return q.e.genPool.Enqueue(priority, func(s *genScratch) { q.e.generate(pos, s) })
}

func (q generationQueue) Len() int {
	return q.e.genPool.Len()
}

// generate runs on a generation worker.
func (e *Engine) generate(pos chunk.Coord, s *genScratch) {
	if !e.running.Load() {
		e.pending.Remove(pos)
		return
	}
	radius, height := e.unloadBounds()
	m := e.cfg.CancelMargin
	if outOfRange(pos, e.observer.Chunk(), radius+m, height+m) {
		e.pending.Remove(pos)
		e.stats.cancelled.Add(1)
		return
	}

	blocks := s.cache.Acquire()
	e.generator.Generate(pos, blocks, s.terrain)
	e.results.push(chunk.New(pos, blocks, e.pool))
	e.stats.generated.Add(1)
}

// mesh runs on a mesh worker. It owns one reference to c.
func (e *Engine) mesh(c *chunk.Chunk, stamp uint64, s *meshScratch) {
	if !e.running.Load() || !e.store.Holds(c) {
		c.Release()
		return
	}

	var neighbors [chunk.FaceCount]*chunk.Blocks
	var held [chunk.FaceCount]*chunk.Chunk
	for f := chunk.Face(0); f < chunk.FaceCount; f++ {
		if n, ok := e.store.TryGet(c.Pos.Neighbor(f)); ok {
			held[f] = n
			neighbors[f] = n.Blocks()
		}
	}
	s.quads = mesher.Build(c.Blocks(), &neighbors, s.mesher, s.quads[:0])
	for _, n := range held {
		if n != nil {
			n.Release()
		}
	}

	quads := make([]uint64, len(s.quads))
	copy(quads, s.quads)
	e.uploads.push(meshResult{chunk: c, quads: quads, stamp: stamp})
	e.stats.meshed.Add(1)
}
