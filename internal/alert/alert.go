// Package alert delivers operational events: anti-bot detections,
// generic API errors, and crawler-blocked escalations. Delivery is
// fire-and-forget; a failed alert is logged and never fails the crawl.
package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/metrics"
	"github.com/hoangbook/shopee-review-crawler/internal/publisher"
	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// Kind discriminates alert events.
type Kind string

const (
	// KindAntiBot is the provider's automated-traffic detection signal.
	KindAntiBot Kind = "anti_bot"
	// KindAPIError is any other provider API failure.
	KindAPIError Kind = "api_error"
	// KindBlocked means the anti-bot retry budget was exhausted.
	KindBlocked Kind = "crawler_blocked"
)

// Event is one recorded alert.
type Event struct {
	Kind         Kind      `json:"kind"`
	Timestamp    time.Time `json:"timestamp"`
	ProductID    string    `json:"product_id,omitempty"`
	URL          string    `json:"url,omitempty"`
	StatusCode   int       `json:"status_code,omitempty"`
	Message      string    `json:"message,omitempty"`
	Attempts     int       `json:"attempts,omitempty"`
	RecentErrors []string  `json:"recent_errors,omitempty"`
}

const historyLimit = 50

// Service implements review.Alerter: it logs every event, keeps a
// bounded in-memory history for the API, and optionally fans out to a
// publisher topic.
type Service struct {
	logger *zap.Logger
	clock  review.Clock
	pub    publisher.Publisher
	topic  string

	mu     sync.Mutex
	recent []Event
}

// New constructs a Service. pub may be nil (log-only alerts); topic is
// ignored when empty.
func New(logger *zap.Logger, clock review.Clock, pub publisher.Publisher, topic string) *Service {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger: logger,
		clock:  clock,
		pub:    pub,
		topic:  topic,
	}
}

// AntiBotDetected records the provider's anti-bot signal.
func (s *Service) AntiBotDetected(ctx context.Context, productID, url string, statusCode int) {
	s.emit(ctx, Event{
		Kind:       KindAntiBot,
		ProductID:  productID,
		URL:        url,
		StatusCode: statusCode,
		Message:    "anti-bot protection triggered by the rating provider",
	})
}

// APIError records a generic provider API failure.
func (s *Service) APIError(ctx context.Context, message string, statusCode int) {
	s.emit(ctx, Event{
		Kind:       KindAPIError,
		StatusCode: statusCode,
		Message:    message,
	})
}

// CrawlerBlocked records retry exhaustion with recent error summaries.
func (s *Service) CrawlerBlocked(ctx context.Context, attempts int, recentErrors []string) {
	s.emit(ctx, Event{
		Kind:         KindBlocked,
		Attempts:     attempts,
		RecentErrors: recentErrors,
		Message:      "crawler blocked, retry budget exhausted",
	})
}

// Recent returns up to limit of the latest events, newest first.
func (s *Service) Recent(limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]Event, 0, limit)
	for i := len(s.recent) - 1; i >= len(s.recent)-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

func (s *Service) emit(ctx context.Context, ev Event) {
	ev.Timestamp = s.clock.Now()
	metrics.ObserveAlert(string(ev.Kind))

	s.logger.Warn("operational alert",
		zap.String("kind", string(ev.Kind)),
		zap.String("product_id", ev.ProductID),
		zap.String("url", ev.URL),
		zap.Int("status_code", ev.StatusCode),
		zap.Int("attempts", ev.Attempts),
		zap.String("message", ev.Message),
	)

	s.mu.Lock()
	s.recent = append(s.recent, ev)
	if len(s.recent) > historyLimit {
		s.recent = s.recent[len(s.recent)-historyLimit:]
	}
	s.mu.Unlock()

	if s.pub == nil || s.topic == "" {
		return
	}
	if _, err := s.pub.Publish(ctx, s.topic, ev); err != nil {
		// Alert delivery must never fail the crawl.
		s.logger.Error("alert publish failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
