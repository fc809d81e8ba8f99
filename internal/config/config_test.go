package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Graphics.Width != 1280 || cfg.Graphics.Height != 720 {
		t.Errorf("expected 1280x720, got %dx%d", cfg.Graphics.Width, cfg.Graphics.Height)
	}
	if cfg.Streaming.RenderDistance != 16 {
		t.Errorf("expected render distance 16, got %d", cfg.Streaming.RenderDistance)
	}
	if cfg.Streaming.RenderHeight != 8 {
		t.Errorf("expected render height 8, got %d", cfg.Streaming.RenderHeight)
	}
	if cfg.Streaming.Backlog != 400 || cfg.Streaming.BatchLimit != 100 {
		t.Errorf("expected backlog 400 and batch 100, got %d and %d", cfg.Streaming.Backlog, cfg.Streaming.BatchLimit)
	}
	if cfg.Finder.ExhaustedSleep != 50*time.Millisecond {
		t.Errorf("expected exhausted sleep 50ms, got %v", cfg.Finder.ExhaustedSleep)
	}
	if cfg.Arena.CapacityBytes != 256<<20 {
		t.Errorf("expected 256MiB arena, got %d", cfg.Arena.CapacityBytes)
	}
	if cfg.Arena.GraceFrames != 3 {
		t.Errorf("expected grace of 3 frames, got %d", cfg.Arena.GraceFrames)
	}
	if cfg.Terrain.Seed != 1773 || cfg.Terrain.MaxHeight != 128 {
		t.Errorf("unexpected terrain defaults: %+v", cfg.Terrain)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Telemetry.Listen != "" {
		t.Errorf("expected telemetry disabled, got %s", cfg.Telemetry.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
graphics:
  width: 1920
  height: 1080
  vsync: false

streaming:
  render_distance: 8
  render_height: 4
  generation_workers: 6

finder:
  idle_sleep: 3ms

arena:
  capacity_bytes: 1048576
  metadata_slots: 2048

terrain:
  seed: 42

telemetry:
  listen: "127.0.0.1:7777"
  interval: 250ms

logging:
  level: "debug"
  log_file: "voxelstream.log"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Graphics.Width != 1920 || cfg.Graphics.VSync {
		t.Errorf("unexpected graphics: %+v", cfg.Graphics)
	}
	if cfg.Streaming.RenderDistance != 8 || cfg.Streaming.RenderHeight != 4 {
		t.Errorf("expected extent 8x4, got %dx%d", cfg.Streaming.RenderDistance, cfg.Streaming.RenderHeight)
	}
	if cfg.Streaming.GenerationWorkers != 6 {
		t.Errorf("expected 6 generation workers, got %d", cfg.Streaming.GenerationWorkers)
	}
	if cfg.Streaming.MeshWorkers != 2 {
		t.Errorf("expected unset mesh workers to keep default 2, got %d", cfg.Streaming.MeshWorkers)
	}
	if cfg.Finder.IdleSleep != 3*time.Millisecond {
		t.Errorf("expected idle sleep 3ms, got %v", cfg.Finder.IdleSleep)
	}
	if cfg.Arena.CapacityBytes != 1<<20 || cfg.Arena.MetadataSlots != 2048 {
		t.Errorf("unexpected arena: %+v", cfg.Arena)
	}
	if cfg.Terrain.Seed != 42 {
		t.Errorf("expected seed 42, got %d", cfg.Terrain.Seed)
	}
	if cfg.Telemetry.Interval != 250*time.Millisecond {
		t.Errorf("expected interval 250ms, got %v", cfg.Telemetry.Interval)
	}
	if cfg.Logging.LogFile != "voxelstream.log" {
		t.Errorf("expected log file 'voxelstream.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
streaming:
  render_distance: far
  invalid syntax here
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if err := loadFromFile(Default(), configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if err := loadFromFile(Default(), "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative distance", func(c *Config) { c.Streaming.RenderDistance = -1 }},
		{"no mesh workers", func(c *Config) { c.Streaming.MeshWorkers = 0 }},
		{"zero batch", func(c *Config) { c.Streaming.BatchLimit = 0 }},
		{"tiny arena", func(c *Config) { c.Arena.CapacityBytes = 8 }},
		{"negative slots", func(c *Config) { c.Arena.MetadataSlots = -1 }},
		{"headless without frames", func(c *Config) { c.Headless.Enabled = true; c.Headless.Frames = 0 }},
		{"negative headless interval", func(c *Config) { c.Headless.Interval = -time.Millisecond }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("streaming:\n  render_distance: 4\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" || !cfg.Logging.Development {
					t.Errorf("expected debug level in development mode, got %+v", cfg.Logging)
				}
				if !cfg.Graphics.GLDebug {
					t.Error("expected debug flag to request a GL debug context")
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "fullscreen flag",
			setup: func() { *flagFullscreen = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be true with fullscreen flag")
				}
			},
			teardown: func() { *flagFullscreen = false },
		},
		{
			name: "headless flags",
			setup: func() {
				*flagHeadless = true
				*flagFrames = 120
			},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Headless.Enabled || cfg.Headless.Frames != 120 {
					t.Errorf("expected headless for 120 frames, got %+v", cfg.Headless)
				}
			},
			teardown: func() {
				*flagHeadless = false
				*flagFrames = 0
			},
		},
		{
			name: "streaming flags",
			setup: func() {
				*flagDistance = 6
				*flagSeed = 99
				*flagTelemetry = "127.0.0.1:9000"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Streaming.RenderDistance != 6 {
					t.Errorf("expected render distance 6, got %d", cfg.Streaming.RenderDistance)
				}
				if cfg.Terrain.Seed != 99 {
					t.Errorf("expected seed 99, got %d", cfg.Terrain.Seed)
				}
				if cfg.Telemetry.Listen != "127.0.0.1:9000" {
					t.Errorf("expected telemetry address, got %q", cfg.Telemetry.Listen)
				}
			},
			teardown: func() {
				*flagDistance = 0
				*flagSeed = 0
				*flagTelemetry = ""
			},
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Width != 2560 || cfg.Graphics.Height != 1440 {
					t.Errorf("expected 2560x1440, got %dx%d", cfg.Graphics.Width, cfg.Graphics.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
streaming:
  render_distance: 10
  render_height: 3
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagDistance = 12
	defer func() {
		*flagConfig = ""
		*flagDistance = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Streaming.RenderDistance != 12 {
		t.Errorf("expected render distance 12 from flag, got %d", cfg.Streaming.RenderDistance)
	}
	if cfg.Streaming.RenderHeight != 3 {
		t.Errorf("expected render height 3 from file, got %d", cfg.Streaming.RenderHeight)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Streaming.RenderDistance = 5

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if loaded.Streaming.RenderDistance != 5 {
		t.Errorf("expected render distance 5, got %d", loaded.Streaming.RenderDistance)
	}
}

func TestLoadFromFileStrict(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty file", "", false},
		{"comment only", "# nothing here\n", false},
		{"unknown section", "rendering:\n  radius: 3\n", true},
		{"misspelled key", "streaming:\n  render_distanse: 3\n", true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, fmt.Sprintf("c%d.yaml", i))
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			cfg := Default()
			err := loadFromFile(cfg, path)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && cfg.Streaming.RenderDistance != Default().Streaming.RenderDistance {
				t.Errorf("expected defaults untouched, got render distance %d", cfg.Streaming.RenderDistance)
			}
		})
	}
}

func TestResolvePathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte("terrain:\n  seed: 99\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv(EnvConfig, path)

	if got := resolvePath(); got != path {
		t.Errorf("expected %s from environment, got %s", path, got)
	}

	*flagConfig = "/explicit.yaml"
	defer func() { *flagConfig = "" }()
	if got := resolvePath(); got != "/explicit.yaml" {
		t.Errorf("expected --config to win over environment, got %s", got)
	}
}

func TestSaveToWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Default().SaveTo(path); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# voxelstream configuration") {
		t.Errorf("expected header comment, got %q", string(data[:min(len(data), 40)]))
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the config file, got %d entries", len(entries))
	}
}
