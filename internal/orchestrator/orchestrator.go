// Package orchestrator drives one crawl run: claim a batch of queue
// items and walk them strictly sequentially, one rating at a time.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/metrics"
	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// Config tunes a crawl run.
type Config struct {
	// BatchSize caps the number of items claimed per run.
	BatchSize int
	// SpreadsheetID is forwarded to the sheet-sync trigger.
	SpreadsheetID string
}

// RunSummary describes one finished run.
type RunSummary struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Ratings        []int     `json:"ratings"`
	ItemsClaimed   int       `json:"items_claimed"`
	ItemsCompleted int       `json:"items_completed"`
	ItemsFailed    int       `json:"items_failed"`
	CommentsStored int       `json:"comments_stored"`
}

// Orchestrator owns the single-flight crawl loop.
type Orchestrator struct {
	cfg     Config
	queue   review.QueueStore
	fetcher review.Fetcher
	syncer  review.SheetSyncer
	clock   review.Clock
	logger  *zap.Logger

	running atomic.Bool

	mu      sync.Mutex
	lastRun *RunSummary
}

// New constructs an Orchestrator.
func New(
	cfg Config,
	queue review.QueueStore,
	fetcher review.Fetcher,
	syncer review.SheetSyncer,
	clock review.Clock,
	logger *zap.Logger,
) *Orchestrator {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if syncer == nil {
		syncer = noopSyncer{}
	}
	return &Orchestrator{
		cfg:     cfg,
		queue:   queue,
		fetcher: fetcher,
		syncer:  syncer,
		clock:   clock,
		logger:  logger,
	}
}

type noopSyncer struct{}

func (noopSyncer) Sync(context.Context, string, string) error { return nil }

// Running reports whether a run is currently active.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// LastRun returns the most recent run summary, if any.
func (o *Orchestrator) LastRun() *RunSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastRun == nil {
		return nil
	}
	cp := *o.lastRun
	return &cp
}

// Run claims up to BatchSize pending items with at least one target
// rating in the requested set and processes them sequentially. The
// ratings only select which items are claimed: every claimed item is
// driven through all of its remaining target ratings. A second
// concurrent call fails fast with ErrRunInProgress without touching
// the queue.
func (o *Orchestrator) Run(ctx context.Context, ratings []int) (RunSummary, error) {
	normalized, err := review.NormalizeRatings(ratings)
	if err != nil {
		return RunSummary{}, err
	}
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Info("crawl run skipped, another run is active")
		metrics.ObserveRun("skipped")
		return RunSummary{}, review.ErrRunInProgress
	}
	defer o.running.Store(false)

	summary := RunSummary{
		StartedAt: o.clock.Now(),
		Ratings:   normalized,
	}

	items, err := o.queue.ClaimBatch(ctx, o.cfg.BatchSize, normalized)
	if err != nil {
		metrics.ObserveRun("error")
		return summary, fmt.Errorf("claim batch: %w", err)
	}
	summary.ItemsClaimed = len(items)
	o.logger.Info("crawl run started",
		zap.Int("items", len(items)),
		zap.Ints("ratings", normalized),
	)

	for _, item := range items {
		stored, outcome := o.processItem(ctx, item)
		summary.CommentsStored += stored
		switch outcome {
		case review.StatusCompleted:
			summary.ItemsCompleted++
		case review.StatusError:
			summary.ItemsFailed++
		}
	}

	summary.FinishedAt = o.clock.Now()
	o.record(summary)
	if err := ctx.Err(); err != nil {
		metrics.ObserveRun("error")
		return summary, err
	}
	metrics.ObserveRun("ok")
	o.logger.Info("crawl run finished",
		zap.Int("items_claimed", summary.ItemsClaimed),
		zap.Int("items_completed", summary.ItemsCompleted),
		zap.Int("items_failed", summary.ItemsFailed),
		zap.Int("comments_stored", summary.CommentsStored),
	)
	return summary, nil
}

func (o *Orchestrator) record(summary RunSummary) {
	o.mu.Lock()
	o.lastRun = &summary
	o.mu.Unlock()
}

// processItem walks every target rating of the item in order, fetching
// those not yet completed. Progress is persisted after every rating so
// a crash never refetches finished work. A cancelled context aborts
// the item into the error state rather than leaving it claimed.
func (o *Orchestrator) processItem(ctx context.Context, item review.QueueItem) (int, review.ItemStatus) {
	logger := o.logger.With(
		zap.String("item_id", item.ID),
		zap.String("product_id", item.ProductID),
	)

	if err := ctx.Err(); err != nil {
		item.Status = review.StatusError
		item.ErrorMessage = err.Error()
		if uerr := o.queue.UpdateItem(context.WithoutCancel(ctx), item); uerr != nil {
			logger.Error("persisting error status failed", zap.Error(uerr))
		}
		metrics.ObserveItem(string(review.StatusError))
		return 0, review.StatusError
	}

	stored := 0
	target := review.FetchTarget{
		URL:       item.URL,
		ProductID: item.ProductID,
		ShopID:    item.ShopID,
	}
	for _, rating := range item.TargetRatings {
		if item.HasCompleted(rating) {
			logger.Debug("rating already completed, skipping", zap.Int("rating", rating))
			continue
		}

		n, err := o.fetcher.FetchRatings(ctx, target, rating)
		stored += n
		if err != nil {
			logger.Error("rating fetch failed, aborting item",
				zap.Int("rating", rating),
				zap.Error(err),
			)
			item.Status = review.StatusError
			item.ErrorMessage = err.Error()
			if uerr := o.queue.UpdateItem(context.WithoutCancel(ctx), item); uerr != nil {
				logger.Error("persisting error status failed", zap.Error(uerr))
			}
			metrics.ObserveItem(string(review.StatusError))
			return stored, review.StatusError
		}

		item.CompletedRatings = append(item.CompletedRatings, rating)
		if err := o.queue.UpdateItem(ctx, item); err != nil {
			logger.Error("persisting rating progress failed",
				zap.Int("rating", rating),
				zap.Error(err),
			)
			item.Status = review.StatusError
			item.ErrorMessage = fmt.Sprintf("persist progress: %v", err)
			if uerr := o.queue.UpdateItem(context.WithoutCancel(ctx), item); uerr != nil {
				logger.Error("persisting error status failed", zap.Error(uerr))
			}
			metrics.ObserveItem(string(review.StatusError))
			return stored, review.StatusError
		}
		logger.Info("rating completed",
			zap.Int("rating", rating),
			zap.Int("new_comments", n),
		)
	}

	item.Status = review.StatusCompleted
	item.ErrorMessage = ""
	if err := o.queue.UpdateItem(ctx, item); err != nil {
		logger.Error("persisting completed status failed", zap.Error(err))
		return stored, review.StatusError
	}
	metrics.ObserveItem(string(review.StatusCompleted))

	// Sheet sync is best-effort: a failed trigger never reverts the item.
	if o.cfg.SpreadsheetID != "" {
		if err := o.syncer.Sync(ctx, o.cfg.SpreadsheetID, item.ProductID); err != nil {
			logger.Warn("sheet sync trigger failed", zap.Error(err))
		}
	}
	return stored, review.StatusCompleted
}
