// Package identity selects the outbound proxy and user agent for each
// provider request, quarantining proxies that recently failed.
package identity

import (
	"math/rand"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/metrics"
	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// QuarantineDuration is how long a failed proxy is excluded from rotation.
const QuarantineDuration = 30 * time.Minute

// Proxy is one outbound identity from the configured pool.
type Proxy struct {
	Raw string
	URL *url.URL
}

// Rotator hands out proxies round-robin and user agents at random.
// Quarantine state is process-local and resets on restart.
type Rotator struct {
	mu       sync.Mutex
	proxies  []Proxy
	lastIdx  int
	failures map[string]time.Time

	clock  review.Clock
	logger *zap.Logger
}

// New builds a Rotator over the configured proxy URIs. Unparseable
// entries are skipped with a warning; an empty pool means direct
// connections.
func New(proxyURIs []string, clock review.Clock, logger *zap.Logger) *Rotator {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	var proxies []Proxy
	for _, raw := range proxyURIs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			logger.Warn("skipping unparseable proxy", zap.String("proxy", raw), zap.Error(err))
			continue
		}
		proxies = append(proxies, Proxy{Raw: raw, URL: u})
	}
	return &Rotator{
		proxies:  proxies,
		lastIdx:  -1,
		failures: make(map[string]time.Time),
		clock:    clock,
		logger:   logger,
	}
}

// Next returns the next usable proxy, round-robin from the position
// after the last one returned, skipping quarantined entries. When every
// proxy is quarantined it clears all quarantines and returns the first
// proxy rather than deadlocking. ok is false only for an empty pool.
func (r *Rotator) Next() (proxy Proxy, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return Proxy{}, false
	}

	now := r.clock.Now()
	for i := 1; i <= len(r.proxies); i++ {
		idx := (r.lastIdx + i) % len(r.proxies)
		candidate := r.proxies[idx]
		if failedAt, quarantined := r.failures[candidate.Raw]; quarantined {
			if now.Sub(failedAt) < QuarantineDuration {
				continue
			}
			delete(r.failures, candidate.Raw)
		}
		r.lastIdx = idx
		metrics.SetQuarantinedProxies(len(r.failures))
		return candidate, true
	}

	// Every proxy is quarantined: fail open rather than starve.
	r.logger.Warn("all proxies quarantined, clearing quarantine list",
		zap.Int("proxies", len(r.proxies)))
	r.failures = make(map[string]time.Time)
	r.lastIdx = 0
	metrics.SetQuarantinedProxies(0)
	return r.proxies[0], true
}

// MarkFailed records the current time against the proxy, starting its
// quarantine window.
func (r *Rotator) MarkFailed(p Proxy) {
	if p.Raw == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[p.Raw] = r.clock.Now()
	metrics.SetQuarantinedProxies(len(r.failures))
	r.logger.Info("proxy quarantined", zap.String("proxy", p.Raw))
}

// QuarantinedCount reports how many proxies are currently quarantined.
func (r *Rotator) QuarantinedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	now := r.clock.Now()
	for _, failedAt := range r.failures {
		if now.Sub(failedAt) < QuarantineDuration {
			n++
		}
	}
	return n
}

// UserAgent draws a random browser signature for the next request,
// independent of proxy rotation.
func (r *Rotator) UserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}
