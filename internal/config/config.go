// Package config handles voxelstream configuration loading and management.
package config

import (
	"fmt"
	"time"
)

// Config holds all settings.
type Config struct {
	Graphics  GraphicsConfig  `yaml:"graphics"`
	Streaming StreamingConfig `yaml:"streaming"`
	Finder    FinderConfig    `yaml:"finder"`
	Arena     ArenaConfig     `yaml:"arena"`
	Terrain   TerrainConfig   `yaml:"terrain"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Headless  HeadlessConfig  `yaml:"headless"`
}

// GraphicsConfig holds display settings.
type GraphicsConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Fullscreen bool    `yaml:"fullscreen"`
	VSync      bool    `yaml:"vsync"`
	FOV        float32 `yaml:"fov"`
	MoveSpeed  float32 `yaml:"move_speed"` // voxels per second
	// GLDebug requests a debug context and logs driver messages.
	GLDebug bool `yaml:"gl_debug"`
}

// StreamingConfig sizes the chunk pipeline. Distances are in chunks.
type StreamingConfig struct {
	RenderDistance     int `yaml:"render_distance"`
	RenderHeight       int `yaml:"render_height"`
	UnloadMargin       int `yaml:"unload_margin"`
	CancelMargin       int `yaml:"cancel_margin"`
	Backlog            int `yaml:"backlog"`
	BatchLimit         int `yaml:"batch_limit"`
	GenerationWorkers  int `yaml:"generation_workers"`
	MeshWorkers        int `yaml:"mesh_workers"`
	MaxAbsorbPerFrame  int `yaml:"max_absorb_per_frame"`
	MaxUploadsPerFrame int `yaml:"max_uploads_per_frame"`
	PoolSize           int `yaml:"pool_size"`
}

// FinderConfig holds the scheduler's adaptive sleeps.
type FinderConfig struct {
	ExhaustedSleep    time.Duration `yaml:"exhausted_sleep"`
	ActiveSleep       time.Duration `yaml:"active_sleep"`
	IdleSleep         time.Duration `yaml:"idle_sleep"`
	BackpressureSleep time.Duration `yaml:"backpressure_sleep"`
}

// ArenaConfig sizes GPU memory.
type ArenaConfig struct {
	CapacityBytes uint32 `yaml:"capacity_bytes"`
	// MetadataSlots of 0 derives the count from the render extent.
	MetadataSlots int    `yaml:"metadata_slots"`
	GraceFrames   uint64 `yaml:"grace_frames"`
}

// TerrainConfig holds world generation settings.
type TerrainConfig struct {
	Seed            int64   `yaml:"seed"`
	Frequency       float64 `yaml:"frequency"`
	Octaves         int     `yaml:"octaves"`
	SeaLevel        float64 `yaml:"sea_level"`
	MaxHeight       int32   `yaml:"max_height"`
	SubsurfaceDepth int     `yaml:"subsurface_depth"`
}

// TelemetryConfig controls the stats websocket. An empty Listen disables it.
type TelemetryConfig struct {
	Listen   string        `yaml:"listen"`
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	LogFile     string `yaml:"log_file"`
	Development bool   `yaml:"development"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// HeadlessConfig runs the pipeline without a window.
type HeadlessConfig struct {
	Enabled bool    `yaml:"enabled"`
	Frames  int     `yaml:"frames"`
	Speed   float32 `yaml:"speed"` // observer voxels per frame along +X
	// Interval paces frames; 0 runs them back to back.
	Interval time.Duration `yaml:"interval"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FOV:        70,
			MoveSpeed:  40,
		},
		Streaming: StreamingConfig{
			RenderDistance:     16,
			RenderHeight:       8,
			UnloadMargin:       2,
			CancelMargin:       2,
			Backlog:            400,
			BatchLimit:         100,
			GenerationWorkers:  4,
			MeshWorkers:        2,
			MaxAbsorbPerFrame:  256,
			MaxUploadsPerFrame: 256,
			PoolSize:           4096,
		},
		Finder: FinderConfig{
			ExhaustedSleep:    50 * time.Millisecond,
			ActiveSleep:       100 * time.Microsecond,
			IdleSleep:         2 * time.Millisecond,
			BackpressureSleep: 5 * time.Millisecond,
		},
		Arena: ArenaConfig{
			CapacityBytes: 256 << 20,
			GraceFrames:   3,
		},
		Terrain: TerrainConfig{
			Seed:            1773,
			Frequency:       0.004,
			Octaves:         4,
			SeaLevel:        16,
			MaxHeight:       128,
			SubsurfaceDepth: 3,
		},
		Telemetry: TelemetryConfig{
			Listen:   "",
			Interval: time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
			Format:  "console",
		},
		Headless: HeadlessConfig{
			Frames:   600,
			Speed:    2,
			Interval: 16 * time.Millisecond,
		},
	}
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	s := c.Streaming
	switch {
	case s.RenderDistance < 0 || s.RenderHeight < 0:
		return fmt.Errorf("render distance and height must not be negative")
	case s.GenerationWorkers < 1 || s.MeshWorkers < 1:
		return fmt.Errorf("worker counts must be positive")
	case s.BatchLimit < 1:
		return fmt.Errorf("batch_limit must be positive")
	case c.Arena.CapacityBytes < 16:
		return fmt.Errorf("arena capacity_bytes too small: %d", c.Arena.CapacityBytes)
	case c.Arena.MetadataSlots < 0:
		return fmt.Errorf("metadata_slots must not be negative")
	case c.Headless.Enabled && c.Headless.Frames < 1:
		return fmt.Errorf("headless frames must be positive")
	case c.Headless.Interval < 0:
		return fmt.Errorf("headless interval must not be negative")
	case c.Logging.Format != "" && c.Logging.Format != "console" && c.Logging.Format != "json":
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
