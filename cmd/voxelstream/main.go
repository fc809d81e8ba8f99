// Package main is the entry point for the voxel streaming viewer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/config"
	"github.com/Faultbox/voxelstream/internal/game"
	"github.com/Faultbox/voxelstream/internal/game/headless"
	"github.com/Faultbox/voxelstream/internal/game/world"
	"github.com/Faultbox/voxelstream/internal/logger"
	"github.com/Faultbox/voxelstream/internal/telemetry"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if path := config.SaveConfigPath(); path != "" {
		if err := cfg.SaveTo(path); err != nil {
			fmt.Fprintf(os.Stderr, "Save config error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("config written to %s\n", path)
		return
	}

	opts := logger.Options{
		Level:       cfg.Logging.Level,
		Console:     true,
		Development: cfg.Logging.Development,
		JSON:        cfg.Logging.Format == "json",
	}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== VoxelStream ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("closed normally")
}

func run(ctx context.Context, cfg *config.Config) error {
	var pub world.Publisher
	if cfg.Telemetry.Listen != "" {
		srv := telemetry.NewServer(logger.Named("telemetry"))
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Telemetry.Listen); err != nil {
				logger.Error("telemetry server stopped", zap.Error(err))
			}
		}()
		pub = srv
		defer func() {
			logger.Info("telemetry summary",
				zap.Int("clients", srv.Clients()),
				zap.Int("droppedSnapshots", srv.Dropped()))
		}()
	}

	if cfg.Headless.Enabled {
		rep, err := headless.Run(ctx, cfg, pub)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(rep)
	}

	g, err := game.New(cfg, pub)
	if err != nil {
		return fmt.Errorf("failed to create viewer: %w", err)
	}
	defer g.Close()
	return g.Run(ctx)
}
