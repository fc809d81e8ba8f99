// Package world assembles a streaming voxel world from configuration:
// terrain generator, GPU arena and the streaming engine that feeds it.
package world

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/config"
	"github.com/Faultbox/voxelstream/internal/engine/arena"
	"github.com/Faultbox/voxelstream/internal/engine/gpu"
	"github.com/Faultbox/voxelstream/internal/engine/terrain"
	"github.com/Faultbox/voxelstream/internal/logger"
	"github.com/Faultbox/voxelstream/internal/streaming"
)

// World is one running streaming pipeline. Frame and Close must be called
// from the same goroutine.
type World struct {
	Engine *streaming.Engine
	Arena  *arena.Manager

	log    *zap.Logger
	frames uint64
}

// StreamingConfig maps user settings onto the pipeline.
func StreamingConfig(cfg *config.Config) streaming.Config {
	s := cfg.Streaming
	return streaming.Config{
		Finder: streaming.FinderConfig{
			Radius:            s.RenderDistance,
			Height:            s.RenderHeight,
			UnloadMargin:      s.UnloadMargin,
			Backlog:           s.Backlog,
			BatchLimit:        s.BatchLimit,
			ExhaustedSleep:    cfg.Finder.ExhaustedSleep,
			ActiveSleep:       cfg.Finder.ActiveSleep,
			IdleSleep:         cfg.Finder.IdleSleep,
			BackpressureSleep: cfg.Finder.BackpressureSleep,
		},
		CancelMargin:       s.CancelMargin,
		GenerationWorkers:  s.GenerationWorkers,
		MeshWorkers:        s.MeshWorkers,
		MaxAbsorbPerFrame:  s.MaxAbsorbPerFrame,
		MaxUploadsPerFrame: s.MaxUploadsPerFrame,
		PoolSize:           s.PoolSize,
	}
}

// ArenaConfig maps user settings onto the GPU arena. A zero slot count is
// derived from the largest extent the unload rule lets stay resident.
func ArenaConfig(cfg *config.Config) arena.Config {
	slots := cfg.Arena.MetadataSlots
	if slots == 0 {
		s := cfg.Streaming
		slots = arena.SlotCapacity(s.RenderDistance, s.RenderHeight, s.UnloadMargin)
	}
	return arena.Config{
		CapacityBytes: cfg.Arena.CapacityBytes,
		Slots:         slots,
		GraceFrames:   cfg.Arena.GraceFrames,
	}
}

// Generator builds the terrain generator for cfg.
func Generator(cfg *config.Config) *terrain.Generator {
	noise := terrain.DefaultNoiseConfig()
	noise.Seed = cfg.Terrain.Seed
	noise.SeaLevel = cfg.Terrain.SeaLevel
	if cfg.Terrain.Frequency > 0 {
		noise.Frequency = cfg.Terrain.Frequency
	}
	if cfg.Terrain.Octaves > 0 {
		noise.Octaves = cfg.Terrain.Octaves
	}
	return terrain.NewGenerator(terrain.NewNoiseDensity(noise), terrain.GeneratorConfig{
		MaxHeight:       cfg.Terrain.MaxHeight,
		SubsurfaceDepth: cfg.Terrain.SubsurfaceDepth,
	})
}

// Spawn returns the default observer position: above the origin column at
// sea level.
func Spawn(cfg *config.Config) mgl32.Vec3 {
	return mgl32.Vec3{0.5, float32(cfg.Terrain.SeaLevel) + 24, 0.5}
}

// New creates the arena on backend and the streaming engine over it.
func New(cfg *config.Config, backend gpu.Backend) (*World, error) {
	mgr, err := arena.New(backend, ArenaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create arena: %w", err)
	}
	eng, err := streaming.New(StreamingConfig(cfg), Generator(cfg), mgr)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming engine: %w", err)
	}
	w := &World{Engine: eng, Arena: mgr, log: logger.Named("world")}
	w.log.Info("world created",
		zap.Int64("seed", cfg.Terrain.Seed),
		zap.Int("renderDistance", cfg.Streaming.RenderDistance),
		zap.Int("renderHeight", cfg.Streaming.RenderHeight),
		zap.Int("slots", mgr.SlotCount()))
	return w, nil
}

// Start begins scheduling around pos.
func (w *World) Start(ctx context.Context, pos mgl32.Vec3) {
	w.Engine.SetObserver(pos)
	w.Engine.Start(ctx)
}

// Frame moves the observer and runs one coordinator step.
func (w *World) Frame(pos mgl32.Vec3) streaming.FrameStats {
	w.Engine.SetObserver(pos)
	w.frames++
	return w.Engine.Frame()
}

// Frames returns the number of Frame calls so far.
func (w *World) Frames() uint64 {
	return w.frames
}

// Close stops the pipeline and releases all residency.
func (w *World) Close() {
	w.Engine.Close()
	st := w.Arena.Stats()
	w.log.Info("world closed",
		zap.Uint64("frames", w.frames),
		zap.Int("liveSlots", st.LiveSlots),
		zap.Int("zombieSlots", st.ZombieSlots))
}
