package identity

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRotator(t *testing.T, proxies []string) (*Rotator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return New(proxies, clock, zap.NewNop()), clock
}

func TestRoundRobinRotation(t *testing.T) {
	t.Parallel()

	r, _ := newTestRotator(t, []string{"http://a:8080", "http://b:8080", "http://c:8080"})

	var got []string
	for i := 0; i < 4; i++ {
		p, ok := r.Next()
		require.True(t, ok)
		got = append(got, p.Raw)
	}
	require.Equal(t, []string{"http://a:8080", "http://b:8080", "http://c:8080", "http://a:8080"}, got)
}

func TestQuarantineSkipsFailedProxy(t *testing.T) {
	t.Parallel()

	r, clock := newTestRotator(t, []string{"http://a:8080", "http://b:8080"})

	a, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, "http://a:8080", a.Raw)
	r.MarkFailed(a)

	// a is quarantined; rotation must keep returning b.
	for i := 0; i < 3; i++ {
		p, ok := r.Next()
		require.True(t, ok)
		require.Equal(t, "http://b:8080", p.Raw)
	}
	require.Equal(t, 1, r.QuarantinedCount())

	// After the quarantine window expires, a re-enters rotation.
	clock.advance(QuarantineDuration + time.Second)
	p, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, "http://a:8080", p.Raw)
	require.Equal(t, 0, r.QuarantinedCount())
}

func TestFailOpenWhenAllQuarantined(t *testing.T) {
	t.Parallel()

	r, _ := newTestRotator(t, []string{"http://a:8080", "http://b:8080"})

	a, _ := r.Next()
	b, _ := r.Next()
	r.MarkFailed(a)
	r.MarkFailed(b)

	// Everything is quarantined: quarantines are cleared and the first
	// proxy is returned instead of deadlocking.
	p, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, "http://a:8080", p.Raw)
	require.Equal(t, 0, r.QuarantinedCount())
}

func TestEmptyPoolMeansDirect(t *testing.T) {
	t.Parallel()

	r, _ := newTestRotator(t, nil)
	_, ok := r.Next()
	require.False(t, ok)
}

func TestUnparseableProxiesAreSkipped(t *testing.T) {
	t.Parallel()

	r, _ := newTestRotator(t, []string{"http://valid:8080", "://bad"})
	p, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, "http://valid:8080", p.Raw)
	p, ok = r.Next()
	require.True(t, ok)
	require.Equal(t, "http://valid:8080", p.Raw)
}

func TestUserAgentPool(t *testing.T) {
	t.Parallel()

	r, _ := newTestRotator(t, nil)
	for i := 0; i < 20; i++ {
		ua := r.UserAgent()
		require.True(t, strings.HasPrefix(ua, "Mozilla/5.0"), "unexpected user agent %q", ua)
	}
}
