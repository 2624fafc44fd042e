// Package main wires together the review crawler service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/alert"
	"github.com/hoangbook/shopee-review-crawler/internal/api"
	"github.com/hoangbook/shopee-review-crawler/internal/clock/system"
	"github.com/hoangbook/shopee-review-crawler/internal/config"
	"github.com/hoangbook/shopee-review-crawler/internal/fetcher/shopee"
	"github.com/hoangbook/shopee-review-crawler/internal/governor"
	"github.com/hoangbook/shopee-review-crawler/internal/id/uuid"
	"github.com/hoangbook/shopee-review-crawler/internal/identity"
	"github.com/hoangbook/shopee-review-crawler/internal/logging"
	"github.com/hoangbook/shopee-review-crawler/internal/orchestrator"
	"github.com/hoangbook/shopee-review-crawler/internal/publisher"
	pubsubpublisher "github.com/hoangbook/shopee-review-crawler/internal/publisher/pubsub"
	"github.com/hoangbook/shopee-review-crawler/internal/review"
	"github.com/hoangbook/shopee-review-crawler/internal/scheduler"
	"github.com/hoangbook/shopee-review-crawler/internal/sheetsync"
	memorystorage "github.com/hoangbook/shopee-review-crawler/internal/storage/memory"
	"github.com/hoangbook/shopee-review-crawler/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var (
		queueStore   review.QueueStore
		commentStore review.CommentStore
		closeStores  func()
	)
	switch cfg.DB.Provider {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxOpenConns,
			MinConns: cfg.DB.MinOpenConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		qs, err := postgres.NewQueueStore(pool, clock, idGen)
		if err != nil {
			logger.Fatal("queue store init failed", zap.Error(err))
		}
		cs, err := postgres.NewCommentStore(pool, clock)
		if err != nil {
			logger.Fatal("comment store init failed", zap.Error(err))
		}
		queueStore = qs
		commentStore = cs
		closeStores = pool.Close
	default:
		queueStore = memorystorage.NewQueueStore(clock, idGen)
		commentStore = memorystorage.NewCommentStore(clock)
		closeStores = func() {}
		logger.Warn("using in-memory stores, nothing survives a restart")
	}

	var pub publisher.Publisher
	if cfg.PubSub.ProjectID != "" {
		p, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer p.Close()
		pub = p
	}

	alerts := alert.New(logger.Named("alert"), clock, pub, cfg.PubSub.AlertTopic)
	gov := governor.New(cfg.Crawl.MaxRequestsPerHour, clock, logger.Named("governor"))
	rotator := identity.New(cfg.Proxies, clock, logger.Named("identity"))

	fetcher := shopee.New(
		shopee.Config{
			APIKey:    cfg.API.Key,
			BaseURL:   cfg.API.BaseURL,
			Host:      cfg.API.Host,
			Site:      cfg.API.Site,
			MinDelay:  cfg.Crawl.MinDelay(),
			MaxDelay:  cfg.Crawl.MaxDelay(),
			WarmupMin: cfg.Crawl.WarmupMinDelay(),
			WarmupMax: cfg.Crawl.WarmupMaxDelay(),
			Timeout:   cfg.Crawl.Timeout(),
			RetryPolicy: review.RetryPolicy{
				MaxAttempts: cfg.Crawl.MaxRetries,
				MinDelay:    cfg.Crawl.RetryMinDelay(),
				MaxDelay:    cfg.Crawl.RetryMaxDelay(),
				Multiplier:  1.5,
			},
		},
		gov, rotator, commentStore, alerts, idGen, clock,
		logger.Named("fetcher"),
	)

	var syncer review.SheetSyncer
	if pub != nil && cfg.PubSub.SyncTopic != "" {
		syncer = sheetsync.NewTrigger(pub, cfg.PubSub.SyncTopic, clock)
	} else {
		syncer = sheetsync.Noop{}
	}

	orch := orchestrator.New(
		orchestrator.Config{
			BatchSize:     cfg.Crawl.BatchSize,
			SpreadsheetID: cfg.Sheet.SpreadsheetID,
		},
		queueStore, fetcher, syncer, clock,
		logger.Named("orchestrator"),
	)

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(
			scheduler.Config{
				Interval:       time.Duration(cfg.Scheduler.IntervalHours) * time.Hour,
				RandomizeStart: cfg.Scheduler.RandomizeStart,
			},
			scheduler.RunFunc(func(ctx context.Context, ratings []int) error {
				_, err := orch.Run(ctx, ratings)
				return err
			}),
			logger.Named("scheduler"),
		)
		go func() {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped", zap.Error(err))
			}
		}()
	}

	apiServer := api.NewServer(queueStore, commentStore, orch, alerts, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	closeStores()
	logger.Info("shutdown complete")
}
