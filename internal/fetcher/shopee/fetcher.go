// Package shopee implements the resilient paginated fetcher for the
// RapidAPI Shopee item-ratings endpoint.
package shopee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/identity"
	"github.com/hoangbook/shopee-review-crawler/internal/metrics"
	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// Admitter gates each outbound request against the hourly budget.
type Admitter interface {
	Admit(ctx context.Context) error
}

// Rotator supplies outbound identities.
type Rotator interface {
	Next() (identity.Proxy, bool)
	MarkFailed(p identity.Proxy)
	UserAgent() string
}

// Config tunes one fetcher instance.
type Config struct {
	APIKey      string
	BaseURL     string
	Host        string
	Site        string
	MinDelay    time.Duration
	MaxDelay    time.Duration
	WarmupMin   time.Duration
	WarmupMax   time.Duration
	Timeout     time.Duration
	RetryPolicy review.RetryPolicy
}

// Fetcher drives one paginated fetch sequence per (product, rating)
// pair, persisting new unique comments through the comment store.
type Fetcher struct {
	cfg      Config
	admitter Admitter
	rotator  Rotator
	store    review.CommentStore
	alerter  review.Alerter
	idGen    review.IDGenerator
	clock    review.Clock
	sleep    review.SleepFunc
	logger   *zap.Logger

	// newClient builds the HTTP client bound to a proxy; replaced in tests.
	newClient func(proxy identity.Proxy, timeout time.Duration) *http.Client
}

// New constructs a Fetcher.
func New(
	cfg Config,
	admitter Admitter,
	rotator Rotator,
	store review.CommentStore,
	alerter review.Alerter,
	idGen review.IDGenerator,
	clock review.Clock,
	logger *zap.Logger,
) *Fetcher {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{
		cfg:       cfg,
		admitter:  admitter,
		rotator:   rotator,
		store:     store,
		alerter:   alerter,
		idGen:     idGen,
		clock:     clock,
		sleep:     review.Sleep,
		logger:    logger,
		newClient: newProxyClient,
	}
}

// SetSleep overrides the delay primitive, for tests.
func (f *Fetcher) SetSleep(sleep review.SleepFunc) { f.sleep = sleep }

// SetClientFactory overrides outbound client construction, for tests.
func (f *Fetcher) SetClientFactory(factory func(identity.Proxy, time.Duration) *http.Client) {
	f.newClient = factory
}

// FetchRatings fetches every page of reviews for the target product and
// star rating, storing new unique comments as it goes. It returns the
// number of newly stored comments. Anti-bot responses trigger the
// bounded retry protocol; any other failure is terminal for this rating.
func (f *Fetcher) FetchRatings(ctx context.Context, target review.FetchTarget, rating int) (int, error) {
	proxy, _ := f.rotator.Next()
	if err := f.sleep(ctx, review.RandomDuration(f.cfg.WarmupMin, f.cfg.WarmupMax)); err != nil {
		return 0, err
	}

	f.logger.Info("starting fetch sequence",
		zap.String("product_id", target.ProductID),
		zap.Int("rating", rating),
		zap.String("proxy", proxy.Raw),
	)

	stored := 0
	for page := 1; ; page++ {
		if err := f.admitter.Admit(ctx); err != nil {
			return stored, err
		}
		if err := f.sleep(ctx, f.interRequestDelay()); err != nil {
			return stored, err
		}

		resp, err := f.fetchPage(ctx, target, rating, page, proxy)
		if err != nil {
			var antiBot *review.AntiBotError
			if errors.As(err, &antiBot) {
				f.alerter.AntiBotDetected(ctx, target.ProductID, target.URL, antiBot.StatusCode)
				resp, proxy, err = f.retryPage(ctx, target, rating, page, proxy, err)
				if err != nil {
					return stored, err
				}
			} else {
				// Timeouts and ordinary HTTP errors are terminal for this
				// rating: rotate the identity and surface the failure.
				f.rotator.MarkFailed(proxy)
				proxy, _ = f.rotator.Next()
				return stored, err
			}
		}

		n, err := f.persistPage(ctx, target, rating, resp)
		stored += n
		if err != nil {
			return stored, err
		}
		if len(resp.Data.Ratings) == 0 || !resp.Data.HasNextPage {
			break
		}
	}

	f.logger.Info("fetch sequence finished",
		zap.String("product_id", target.ProductID),
		zap.Int("rating", rating),
		zap.Int("new_comments", stored),
	)
	return stored, nil
}

// retryPage runs the bounded anti-bot retry protocol for one page: each
// attempt sleeps a growing backoff, quarantines the failing proxy, and
// draws a fresh identity. Exhaustion emits a single blocked alert and
// returns a terminal BlockedError. cause is the anti-bot error that
// started the protocol; a zero retry budget is already exhaustion.
func (f *Fetcher) retryPage(
	ctx context.Context,
	target review.FetchTarget,
	rating, page int,
	failed identity.Proxy,
	cause error,
) (ratingsResponse, identity.Proxy, error) {
	if f.cfg.RetryPolicy.MaxAttempts <= 0 {
		f.rotator.MarkFailed(failed)
		f.alerter.CrawlerBlocked(ctx, 0, []string{cause.Error()})
		return ratingsResponse{}, failed, &review.BlockedError{Attempts: 0, Last: cause}
	}

	var (
		resp    ratingsResponse
		proxy   = failed
		summary []string
	)

	retryErr := review.Retry(ctx, f.cfg.RetryPolicy, f.sleep,
		func(err error) bool {
			var antiBot *review.AntiBotError
			return errors.As(err, &antiBot)
		},
		func(attempt int) error {
			metrics.ObserveAntiBotRetry()
			f.rotator.MarkFailed(proxy)
			next, _ := f.rotator.Next()
			proxy = next
			f.logger.Warn("anti-bot retry attempt",
				zap.String("product_id", target.ProductID),
				zap.Int("page", page),
				zap.Int("attempt", attempt),
				zap.String("proxy", proxy.Raw),
			)
			var err error
			resp, err = f.fetchPage(ctx, target, rating, page, proxy)
			if err != nil {
				summary = append(summary, fmt.Sprintf("attempt %d: %v", attempt, err))
			}
			return err
		})
	if retryErr != nil {
		var antiBot *review.AntiBotError
		if errors.As(retryErr, &antiBot) {
			f.alerter.CrawlerBlocked(ctx, f.cfg.RetryPolicy.MaxAttempts, summary)
			return ratingsResponse{}, proxy, &review.BlockedError{
				Attempts: f.cfg.RetryPolicy.MaxAttempts,
				Last:     retryErr,
			}
		}
		return ratingsResponse{}, proxy, retryErr
	}
	return resp, proxy, nil
}

func (f *Fetcher) interRequestDelay() time.Duration {
	base := review.RandomDuration(f.cfg.MinDelay, f.cfg.MaxDelay)
	jitter := review.RandomDuration(0, 250*time.Millisecond)
	return base + jitter
}

func (f *Fetcher) fetchPage(
	ctx context.Context,
	target review.FetchTarget,
	rating, page int,
	proxy identity.Proxy,
) (ratingsResponse, error) {
	reqURL, err := f.buildURL(target, rating, page)
	if err != nil {
		return ratingsResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ratingsResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", f.cfg.APIKey)
	req.Header.Set("x-rapidapi-host", f.cfg.Host)
	req.Header.Set("User-Agent", f.rotator.UserAgent())
	req.Header.Set("Accept", "application/json")

	client := f.newClient(proxy, f.cfg.Timeout)
	resp, err := client.Do(req)
	if err != nil {
		return ratingsResponse{}, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	metrics.ObserveProviderRequest(resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusExpectationFailed:
		// 417 is the provider's anti-bot signal, distinct from ordinary
		// HTTP failures.
		return ratingsResponse{}, &review.AntiBotError{
			StatusCode: resp.StatusCode,
			ProductID:  target.ProductID,
			URL:        target.URL,
			Page:       page,
		}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		f.alerter.APIError(ctx, fmt.Sprintf("provider returned %d: %s", resp.StatusCode, body), resp.StatusCode)
		return ratingsResponse{}, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var parsed ratingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ratingsResponse{}, fmt.Errorf("decode provider response: %w", err)
	}
	return parsed, nil
}

func (f *Fetcher) buildURL(target review.FetchTarget, rating, page int) (string, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	nonce, err := f.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate request nonce: %w", err)
	}
	q := u.Query()
	q.Set("site", f.cfg.Site)
	q.Set("item_id", target.ProductID)
	q.Set("shop_id", target.ShopID)
	q.Set("page", strconv.Itoa(page))
	q.Set("rate_star", strconv.Itoa(rating))
	q.Set("_t", strconv.FormatInt(f.clock.Now().UnixMilli(), 10))
	q.Set("request_id", nonce)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newProxyClient(proxy identity.Proxy, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxy.URL != nil {
		transport.Proxy = http.ProxyURL(proxy.URL)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
