// Package scheduler triggers periodic crawl runs.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// allRatings is what a scheduled run requests: every star rating.
var allRatings = []int{1, 2, 3, 4, 5}

// startOffsetBound bounds the randomized start offset either side of
// the nominal first tick.
const startOffsetBound = 30 * time.Minute

// Runner starts a crawl run. A run already in progress reports
// ErrRunInProgress, which the scheduler absorbs silently.
type Runner interface {
	Run(ctx context.Context, ratings []int) error
}

// RunFunc adapts a plain function to the Runner interface.
type RunFunc func(ctx context.Context, ratings []int) error

// Run implements Runner.
func (f RunFunc) Run(ctx context.Context, ratings []int) error { return f(ctx, ratings) }

// Config tunes the scheduler.
type Config struct {
	// Interval between runs.
	Interval time.Duration
	// RandomizeStart shifts the first run by a random offset in
	// [-30m, +30m] so deployments do not all hit the provider at the
	// same wall-clock instant.
	RandomizeStart bool
}

// Scheduler invokes the runner on a fixed interval.
type Scheduler struct {
	cfg    Config
	runner Runner
	sleep  review.SleepFunc
	logger *zap.Logger
}

// New constructs a Scheduler.
func New(cfg Config, runner Runner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		sleep:  review.Sleep,
		logger: logger,
	}
}

// SetSleep overrides the delay primitive, for tests.
func (s *Scheduler) SetSleep(sleep review.SleepFunc) { s.sleep = sleep }

// Start blocks until ctx is canceled, triggering a run every interval.
// The first run waits one full interval, shifted by the random offset
// when configured.
func (s *Scheduler) Start(ctx context.Context) error {
	first := s.cfg.Interval
	if s.cfg.RandomizeStart {
		offset := review.RandomDuration(0, 2*startOffsetBound) - startOffsetBound
		first += offset
		if first < 0 {
			first = 0
		}
		s.logger.Info("scheduler start randomized", zap.Duration("first_run_in", first))
	}
	if err := s.sleep(ctx, first); err != nil {
		return ctx.Err()
	}

	for {
		s.trigger(ctx)
		if err := s.sleep(ctx, s.cfg.Interval); err != nil {
			return ctx.Err()
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	err := s.runner.Run(ctx, allRatings)
	switch {
	case err == nil:
		s.logger.Info("scheduled crawl run finished")
	case errors.Is(err, review.ErrRunInProgress):
		s.logger.Info("scheduled crawl run skipped, run already active")
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("scheduled crawl run failed", zap.Error(err))
	}
}
