package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging and development assertions")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagHeadless   = flag.Bool("headless", false, "Run the streaming pipeline without a window")
	flagFrames     = flag.Int("frames", 0, "Frames to simulate in headless mode")
	flagDistance   = flag.Int("render-distance", 0, "Horizontal streaming radius in chunks")
	flagSeed       = flag.Int64("seed", 0, "Terrain seed")
	flagTelemetry  = flag.String("telemetry", "", "Address for the stats websocket, e.g. 127.0.0.1:7777")
	flagSaveConfig = flag.String("save-config", "", "Write the effective config to this path and exit")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// SaveConfigPath returns the --save-config target, if any.
func SaveConfigPath() string {
	return *flagSaveConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
		cfg.Graphics.GLDebug = true
	}
	if *flagWindowed {
		cfg.Graphics.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagHeadless {
		cfg.Headless.Enabled = true
	}
	if *flagFrames > 0 {
		cfg.Headless.Frames = *flagFrames
	}
	if *flagDistance > 0 {
		cfg.Streaming.RenderDistance = *flagDistance
	}
	if *flagSeed != 0 {
		cfg.Terrain.Seed = *flagSeed
	}
	if *flagTelemetry != "" {
		cfg.Telemetry.Listen = *flagTelemetry
	}
}
