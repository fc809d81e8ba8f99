// Package headless drives the streaming pipeline without a window, against
// the in-memory GPU backend, with the observer flying along +X.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/config"
	"github.com/Faultbox/voxelstream/internal/engine/gpu"
	"github.com/Faultbox/voxelstream/internal/game/world"
	"github.com/Faultbox/voxelstream/internal/logger"
)

// Path returns the observer position at frame n.
func Path(start mgl32.Vec3, speed float32, n int) mgl32.Vec3 {
	return start.Add(mgl32.Vec3{speed * float32(n), 0, 0})
}

// Run simulates cfg.Headless.Frames frames, or fewer if ctx ends first, and
// returns the final pipeline report. pub may be nil.
func Run(ctx context.Context, cfg *config.Config, pub world.Publisher) (world.Report, error) {
	log := logger.Named("headless")

	w, err := world.New(cfg, gpu.NewMemory())
	if err != nil {
		return world.Report{}, fmt.Errorf("failed to create world: %w", err)
	}
	defer w.Close()

	start := world.Spawn(cfg)
	w.Start(ctx, start)
	reporter := world.NewReporter(cfg.Telemetry.Interval, pub)

	var tick <-chan time.Time
	if cfg.Headless.Interval > 0 {
		t := time.NewTicker(cfg.Headless.Interval)
		defer t.Stop()
		tick = t.C
	}

	log.Info("headless run started",
		zap.Int("frames", cfg.Headless.Frames),
		zap.Float32("speed", cfg.Headless.Speed),
		zap.Duration("interval", cfg.Headless.Interval))

	began := time.Now()
	frames := 0
loop:
	for ; frames < cfg.Headless.Frames; frames++ {
		if ctx.Err() != nil {
			break
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				break loop
			case <-tick:
			}
		}
		w.Frame(Path(start, cfg.Headless.Speed, frames))
		reporter.Tick(time.Now(), w)
	}

	elapsed := time.Since(began)
	fps := 0.0
	if elapsed > 0 {
		fps = float64(frames) / elapsed.Seconds()
	}
	final := world.NewReport(w.Frames(), fps, w.Engine.Stats())
	if pub != nil {
		if err := pub.Publish(final); err != nil {
			log.Debug("final report not published", zap.Error(err))
		}
	}
	log.Info("headless run finished",
		zap.Int("frames", frames),
		zap.Duration("elapsed", elapsed),
		zap.Int("resident", final.Resident),
		zap.Int64("generated", final.Generated),
		zap.Int64("unloaded", final.Unloaded),
		zap.Int64("uploadFailures", final.UploadFailures))
	return final, ctx.Err()
}
