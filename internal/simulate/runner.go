package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/pkg/logger"
)

// Run generates the walk and replays it, remotely when BaseURL is set.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	frames := Generate(cfg)
	logger.Get().Info(ctx, "generated walk",
		logger.Int("frames", len(frames)),
		logger.Int("indoor_fixes", IndoorCount(frames)),
		logger.Int("freeze_at", cfg.FreezeAt),
		logger.Int("floor_change_at", cfg.FloorChangeAt))

	var (
		report *Report
		err    error
	)
	if cfg.BaseURL == "" {
		report, err = RunLocal(ctx, cfg, frames)
	} else {
		report, err = RunRemote(ctx, cfg, frames)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Output != "" {
		if err := report.Save(cfg.Output); err != nil {
			return report, err
		}
	}
	return report, nil
}

// RunLocal drives a drift monitor directly. The monitor clock follows the
// frame timestamps so runs are reproducible.
func RunLocal(ctx context.Context, cfg *Config, frames []Frame) (*Report, error) {
	clock := drift.NewManualClock(0)
	mon, err := drift.NewMonitor(cfg.Drift, drift.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor: %w", err)
	}

	start := time.Now()
	report := newReport("local", frames)
	for i := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := &frames[i]
		clock.Set(f.Timestamp)
		mon.PushARSample(location.FromARPose(f.AR.ARPose))
		if f.Indoor == nil {
			continue
		}
		ev := mon.PushIndoorSample(location.FromIndoorFix(f.Indoor.IndoorFix))
		report.add(Step{Frame: f.Index, EventID: f.Indoor.ID, Evaluation: ev})
		if ev.Reset && cfg.Verbose {
			logger.Get().Debug(ctx, "reset",
				logger.Int("frame", f.Index),
				logger.String("rule", string(ev.Rule)),
				logger.Float64("quality", ev.Confidence.Quality))
		}
	}
	report.Duration = time.Since(start)
	return report, nil
}
