// Package governor enforces the rolling per-hour provider request budget.
package governor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/metrics"
	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

const (
	window       = time.Hour
	safetyMargin = 5 * time.Second
)

// Governor suspends callers once the hourly request budget is spent.
// The budget is global to the process: no per-proxy or per-product
// partitioning. State resets on process restart, which deliberately
// grants a fresh budget.
type Governor struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time

	budget int
	clock  review.Clock
	sleep  review.SleepFunc
	logger *zap.Logger
}

// New constructs a Governor with the given hourly budget. A budget
// below one would suspend Admit forever, so it is clamped to one.
func New(budget int, clock review.Clock, logger *zap.Logger) *Governor {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if budget < 1 {
		budget = 1
	}
	return &Governor{
		budget: budget,
		clock:  clock,
		sleep:  review.Sleep,
		logger: logger,
	}
}

// SetSleep overrides the suspension primitive, for tests.
func (g *Governor) SetSleep(sleep review.SleepFunc) {
	g.sleep = sleep
}

// Admit blocks until a request slot is available, then consumes it.
// When the budget is exhausted it suspends for the remaining window
// time plus a small safety margin, then starts a fresh window.
func (g *Governor) Admit(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := g.clock.Now()
		if g.windowStart.IsZero() || now.Sub(g.windowStart) >= window {
			g.windowStart = now
			g.count = 0
		}
		if g.count < g.budget {
			g.count++
			g.mu.Unlock()
			return nil
		}
		wait := window - now.Sub(g.windowStart) + safetyMargin
		g.mu.Unlock()

		g.logger.Warn("hourly request budget exhausted, suspending",
			zap.Int("budget", g.budget),
			zap.Duration("wait", wait),
		)
		metrics.ObserveGovernorDelay(wait)
		if err := g.sleep(ctx, wait); err != nil {
			return fmt.Errorf("rate governor wait: %w", err)
		}
	}
}

// Used returns the number of slots consumed in the current window.
func (g *Governor) Used() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.windowStart.IsZero() && g.clock.Now().Sub(g.windowStart) >= window {
		return 0
	}
	return g.count
}
