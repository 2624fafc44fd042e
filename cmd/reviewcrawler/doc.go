// Package main hosts the review crawler service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, queue management,
//     crawl trigger, data access and alert endpoints. Queue submissions are
//     validated (Shopee URL format, rating range) and persisted before a run
//     ever touches them.
//   - Orchestrator: a single-flight loop claims up to crawl.batch_size pending
//     items per run and walks them strictly sequentially, one star rating at a
//     time. Per-rating progress is persisted immediately so a crash never
//     refetches finished work. Scheduled and HTTP-triggered runs share the same
//     guard; the loser of the race is a logged no-op.
//   - Fetch pipeline: the Shopee fetcher paginates the RapidAPI ratings
//     endpoint, gated by an hourly request budget (internal/governor) and
//     jittered inter-request delays. Outbound identity (proxy + user agent)
//     rotates per sequence via internal/identity; proxies that fail are
//     quarantined for thirty minutes with a fail-open reset when the pool
//     empties. A 417 response is treated as the provider's anti-bot signal and
//     enters a bounded retry protocol with growing backoff and a fresh identity
//     per attempt; any other failure is terminal for the rating.
//   - Persistence & fanout: comments land in Postgres under the
//     (product_id, comment_id) natural key with ON CONFLICT DO NOTHING, so
//     overlapping pages and re-runs are idempotent. Completed items trigger a
//     best-effort sheet-sync event on Pub/Sub; operational alerts (anti-bot,
//     API error, blocked) are logged, counted and optionally published.
//   - Configuration & plumbing: Viper populates config from env/files
//     (SHOPEECRAWLER_ prefix); zap provides structured logging; Prometheus
//     metrics are exported at /metrics. In-memory store/publisher twins back
//     local development without external dependencies.
//
// Run locally: go run ./cmd/reviewcrawler -config config.yaml (or rely solely
// on env overrides). The process reacts to SIGTERM for graceful drain.
package main
