package world

import (
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/logger"
	"github.com/Faultbox/voxelstream/internal/streaming"
)

// Report is the periodic pipeline summary logged and sent to telemetry.
type Report struct {
	Frame    uint64   `json:"frame"`
	FPS      float64  `json:"fps"`
	Observer [3]int32 `json:"observer"`

	Resident      int `json:"resident"`
	Pending       int `json:"pending"`
	GenQueued     int `json:"genQueued"`
	GenActive     int `json:"genActive"`
	MeshQueued    int `json:"meshQueued"`
	MeshActive    int `json:"meshActive"`
	UploadsQueued int `json:"uploadsQueued"`
	UnloadsQueued int `json:"unloadsQueued"`

	Generated      int64 `json:"generated"`
	Cancelled      int64 `json:"cancelled"`
	Meshed         int64 `json:"meshed"`
	Uploaded       int64 `json:"uploaded"`
	UploadFailures int64 `json:"uploadFailures"`
	Unloaded       int64 `json:"unloaded"`
	Superseded     int64 `json:"superseded"`
	Edits          int64 `json:"edits"`

	PoolLive  int64  `json:"poolLive"`
	PoolIdle  int    `json:"poolIdle"`
	ArenaUsed uint32 `json:"arenaUsed"`
	ArenaFree uint32 `json:"arenaFree"`
	Fragments int    `json:"fragments"`
	LiveSlots int    `json:"liveSlots"`
	Zombies   int    `json:"zombies"`
}

// NewReport summarizes s at frame with the given frame rate.
func NewReport(frame uint64, fps float64, s streaming.Stats) Report {
	return Report{
		Frame:          frame,
		FPS:            fps,
		Observer:       [3]int32{s.Observer.X, s.Observer.Y, s.Observer.Z},
		Resident:       s.Resident,
		Pending:        s.Pending,
		GenQueued:      s.GenerationQueued,
		GenActive:      s.GenerationActive,
		MeshQueued:     s.MeshQueued,
		MeshActive:     s.MeshActive,
		UploadsQueued:  s.UploadsQueued,
		UnloadsQueued:  s.UnloadsQueued,
		Generated:      s.Generated,
		Cancelled:      s.Cancelled,
		Meshed:         s.Meshed,
		Uploaded:       s.Uploaded,
		UploadFailures: s.UploadFailures,
		Unloaded:       s.Unloaded,
		Superseded:     s.Superseded,
		Edits:          s.Edits,
		PoolLive:       s.Pool.Live,
		PoolIdle:       s.Pool.Pooled,
		ArenaUsed:      s.Arena.UsedBytes,
		ArenaFree:      s.Arena.FreeBytes,
		Fragments:      s.Arena.FreeBlocks,
		LiveSlots:      s.Arena.LiveSlots,
		Zombies:        s.Arena.ZombieSlots,
	}
}

// Publisher receives reports. *telemetry.Server implements it.
type Publisher interface {
	Publish(v any) error
}

// Reporter emits a Report at most once per interval.
type Reporter struct {
	log      *zap.Logger
	pub      Publisher
	interval time.Duration

	last   time.Time
	frames int
}

// NewReporter creates a reporter. pub may be nil.
func NewReporter(interval time.Duration, pub Publisher) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{log: logger.Named("stats"), pub: pub, interval: interval}
}

// Tick counts one frame at now and returns the report when one is due.
func (r *Reporter) Tick(now time.Time, w *World) (Report, bool) {
	if r.last.IsZero() {
		r.last = now
	}
	r.frames++
	elapsed := now.Sub(r.last)
	if elapsed < r.interval {
		return Report{}, false
	}

	rep := NewReport(w.Frames(), float64(r.frames)/elapsed.Seconds(), w.Engine.Stats())
	r.last, r.frames = now, 0

	r.log.Info("stream stats",
		zap.Uint64("frame", rep.Frame),
		zap.Float64("fps", rep.FPS),
		zap.Int32s("observer", rep.Observer[:]),
		zap.Int("resident", rep.Resident),
		zap.Int("pending", rep.Pending),
		zap.Int("genQueued", rep.GenQueued),
		zap.Int("genActive", rep.GenActive),
		zap.Int("meshActive", rep.MeshActive),
		zap.Int("uploadsQueued", rep.UploadsQueued),
		zap.Uint32("arenaUsed", rep.ArenaUsed),
		zap.Int("liveSlots", rep.LiveSlots))
	if r.pub != nil {
		if err := r.pub.Publish(rep); err != nil {
			r.log.Warn("failed to publish stats", zap.Error(err))
		}
	}
	return rep, true
}
