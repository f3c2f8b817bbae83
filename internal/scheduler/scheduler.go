// Package scheduler drives periodic monitoring sweeps.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"game-price-tracker/internal/model"
	"game-price-tracker/internal/service"
)

// DefaultInterval is used when Config.IntervalSeconds is not positive.
const DefaultInterval = 1800 * time.Second

// Sweeper runs one full monitoring sweep.
type Sweeper interface {
	MonitorAllTrackedGames(ctx context.Context) (*model.MonitoringStats, error)
}

// Config controls the sweep cadence.
type Config struct {
	IntervalSeconds int
	RunOnStart      bool
}

func (c Config) interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return DefaultInterval
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Run blocks until ctx is cancelled, running one sweep per interval.
// Sweeps run on the calling goroutine, so a slow sweep delays the next tick instead of overlapping it.
func Run(ctx context.Context, s Sweeper, cfg Config) {
	interval := cfg.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Bool("run_on_start", cfg.RunOnStart).Msg("Scheduler started")

	if cfg.RunOnStart {
		sweep(ctx, s)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopping")
			return
		case <-ticker.C:
			sweep(ctx, s)
		}
	}
}

func sweep(ctx context.Context, s Sweeper) {
	if ctx.Err() != nil {
		return
	}

	stats, err := s.MonitorAllTrackedGames(ctx)
	switch {
	case err == nil:
		log.Info().Str("run_id", stats.RunID).Msg(stats.Summary())
	case errors.Is(err, context.Canceled):
		log.Info().Msg("Sweep interrupted by shutdown")
	case errors.Is(err, service.ErrSweepInProgress):
		log.Warn().Msg("Skipping scheduled sweep, another sweep is running")
	default:
		log.Error().Err(err).Msg("Monitoring sweep failed")
	}
}
