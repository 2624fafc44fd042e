// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerRequestsTotal    *prometheus.CounterVec
	commentsStoredTotal      *prometheus.CounterVec
	antiBotRetriesTotal      prometheus.Counter
	crawlRunsTotal           *prometheus.CounterVec
	itemsProcessedTotal      *prometheus.CounterVec
	rateGovernorDelaySeconds prometheus.Histogram
	quarantinedProxies       prometheus.Gauge
	alertsTotal              *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		providerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_provider_requests_total",
				Help: "Total provider API requests, labeled by status code.",
			},
			[]string{"code"},
		)

		commentsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_comments_total",
				Help: "Total comment store attempts, labeled by outcome (inserted, duplicate).",
			},
			[]string{"outcome"},
		)

		antiBotRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_antibot_retries_total",
				Help: "Total retry attempts triggered by the anti-bot signal.",
			},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total orchestrator runs, labeled by outcome (completed, rejected).",
			},
			[]string{"outcome"},
		)

		itemsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Total queue items finished, labeled by final status.",
			},
			[]string{"status"},
		)

		rateGovernorDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_governor_delay_seconds",
				Help:    "Histogram of suspensions imposed by the hourly request budget.",
				Buckets: []float64{0.1, 1, 10, 60, 300, 900, 1800, 3600},
			},
		)

		quarantinedProxies = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_quarantined_proxies",
				Help: "Number of proxies currently quarantined.",
			},
		)

		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_alerts_total",
				Help: "Total operational alerts emitted, labeled by kind.",
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProviderRequest counts one upstream API request.
func ObserveProviderRequest(statusCode int) {
	providerRequestsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveCommentStored counts a comment store attempt by outcome.
func ObserveCommentStored(inserted bool) {
	outcome := "duplicate"
	if inserted {
		outcome = "inserted"
	}
	commentsStoredTotal.WithLabelValues(outcome).Inc()
}

// ObserveAntiBotRetry counts one anti-bot retry attempt.
func ObserveAntiBotRetry() {
	antiBotRetriesTotal.Inc()
}

// ObserveRun counts an orchestrator run by outcome.
func ObserveRun(outcome string) {
	crawlRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveItem counts a finished queue item by final status.
func ObserveItem(status string) {
	itemsProcessedTotal.WithLabelValues(status).Inc()
}

// ObserveGovernorDelay records a suspension imposed by the rate budget.
func ObserveGovernorDelay(d time.Duration) {
	rateGovernorDelaySeconds.Observe(d.Seconds())
}

// SetQuarantinedProxies records the current quarantine count.
func SetQuarantinedProxies(n int) {
	quarantinedProxies.Set(float64(n))
}

// ObserveAlert counts one emitted alert by kind.
func ObserveAlert(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}
