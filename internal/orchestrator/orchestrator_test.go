package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
	"github.com/hoangbook/shopee-review-crawler/internal/storage/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("item-%d", g.n), nil
}

type fetchCall struct {
	ProductID string
	Rating    int
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []fetchCall
	perCall int
	failOn  map[fetchCall]error
	block   chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{perCall: 3, failOn: map[fetchCall]error{}}
}

func (f *fakeFetcher) FetchRatings(_ context.Context, target review.FetchTarget, rating int) (int, error) {
	if f.block != nil {
		<-f.block
	}
	call := fetchCall{ProductID: target.ProductID, Rating: rating}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	err := f.failOn[call]
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.perCall, nil
}

func (f *fakeFetcher) callList() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

type fakeSyncer struct {
	mu       sync.Mutex
	products []string
	err      error
}

func (s *fakeSyncer) Sync(_ context.Context, _, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, productID)
	return s.err
}

func newTestOrchestrator(t *testing.T, fetcher review.Fetcher, syncer review.SheetSyncer) (*Orchestrator, *memory.QueueStore) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	queue := memory.NewQueueStore(clock, &seqIDGen{})
	o := New(Config{BatchSize: 10, SpreadsheetID: "sheet-1"}, queue, fetcher, syncer, clock, zap.NewNop())
	return o, queue
}

func TestRunCompletesItems(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	syncer := &fakeSyncer{}
	o, queue := newTestOrchestrator(t, fetcher, syncer)
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "https://shopee.vn/a-i.1.100", []int{1, 5})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, "https://shopee.vn/b-i.1.200", []int{5})
	require.NoError(t, err)

	summary, err := o.Run(ctx, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsClaimed)
	assert.Equal(t, 2, summary.ItemsCompleted)
	assert.Zero(t, summary.ItemsFailed)
	assert.Equal(t, 9, summary.CommentsStored)

	assert.Equal(t, []fetchCall{
		{ProductID: "100", Rating: 1},
		{ProductID: "100", Rating: 5},
		{ProductID: "200", Rating: 5},
	}, fetcher.callList())
	assert.Equal(t, []string{"100", "200"}, syncer.products)

	counts, err := queue.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Completed)
	assert.Zero(t, counts.Pending)

	last := o.LastRun()
	require.NotNil(t, last)
	assert.Equal(t, 2, last.ItemsCompleted)
}

func TestRunSingleFlight(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	o, queue := newTestOrchestrator(t, fetcher, &fakeSyncer{})
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "https://shopee.vn/a-i.1.100", []int{5})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, []int{5})
		done <- err
	}()

	require.Eventually(t, o.Running, time.Second, time.Millisecond)

	_, err = o.Run(ctx, []int{5})
	require.ErrorIs(t, err, review.ErrRunInProgress)

	close(fetcher.block)
	require.NoError(t, <-done)
	assert.False(t, o.Running())
}

func TestRunFailureAbortsItemAndContinues(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.failOn[fetchCall{ProductID: "100", Rating: 2}] = errors.New("provider returned status 500")
	o, queue := newTestOrchestrator(t, fetcher, &fakeSyncer{})
	ctx := context.Background()

	first, err := queue.Enqueue(ctx, "https://shopee.vn/a-i.1.100", []int{1, 2, 3})
	require.NoError(t, err)
	second, err := queue.Enqueue(ctx, "https://shopee.vn/b-i.1.200", []int{5})
	require.NoError(t, err)

	summary, err := o.Run(ctx, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsFailed)
	assert.Equal(t, 1, summary.ItemsCompleted)

	failed, err := queue.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusError, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "status 500")
	// Progress before the failure survives; rating 3 was never attempted.
	assert.Equal(t, []int{1}, failed.CompletedRatings)
	for _, call := range fetcher.callList() {
		assert.NotEqual(t, fetchCall{ProductID: "100", Rating: 3}, call)
	}

	ok, err := queue.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusCompleted, ok.Status)
}

func TestRunSkipsCompletedRatings(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	o, queue := newTestOrchestrator(t, fetcher, &fakeSyncer{})
	ctx := context.Background()

	item, err := queue.Enqueue(ctx, "https://shopee.vn/a-i.1.100", []int{1, 5})
	require.NoError(t, err)
	item.CompletedRatings = []int{1}
	require.NoError(t, queue.UpdateItem(ctx, item))

	summary, err := o.Run(ctx, []int{1, 5})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsCompleted)
	assert.Equal(t, []fetchCall{{ProductID: "100", Rating: 5}}, fetcher.callList())
}

func TestRunFetchesAllTargetRatingsOfClaimedItem(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	o, queue := newTestOrchestrator(t, fetcher, &fakeSyncer{})
	ctx := context.Background()

	item, err := queue.Enqueue(ctx, "https://shopee.vn/a-i.1.100", []int{1, 5})
	require.NoError(t, err)

	// The rating set only selects which items are claimed; a claimed
	// item is always driven through its full target set.
	summary, err := o.Run(ctx, []int{5})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsCompleted)
	assert.Equal(t, []fetchCall{
		{ProductID: "100", Rating: 1},
		{ProductID: "100", Rating: 5},
	}, fetcher.callList())

	got, err := queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusCompleted, got.Status)
	assert.Equal(t, []int{1, 5}, got.CompletedRatings)
}

func TestRunCanceledContextFailsClaimedItems(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	o, queue := newTestOrchestrator(t, fetcher, &fakeSyncer{})

	item, err := queue.Enqueue(context.Background(), "https://shopee.vn/a-i.1.100", []int{5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := o.Run(ctx, []int{5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.ItemsClaimed)
	assert.Equal(t, 1, summary.ItemsFailed)
	assert.Empty(t, fetcher.callList())

	// Nothing stays wedged in processing after an aborted run.
	got, err := queue.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "context canceled")
	assert.False(t, o.Running())
}

func TestRunRejectsInvalidRatings(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, newFakeFetcher(), &fakeSyncer{})
	_, err := o.Run(context.Background(), nil)
	require.ErrorIs(t, err, review.ErrEmptyRatings)
	_, err = o.Run(context.Background(), []int{7})
	require.ErrorIs(t, err, review.ErrInvalidRating)
}

func TestRunSheetSyncFailureKeepsCompleted(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	syncer := &fakeSyncer{err: errors.New("pubsub unavailable")}
	o, queue := newTestOrchestrator(t, fetcher, syncer)
	ctx := context.Background()

	item, err := queue.Enqueue(ctx, "https://shopee.vn/a-i.1.100", []int{5})
	require.NoError(t, err)

	summary, err := o.Run(ctx, []int{5})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsCompleted)

	got, err := queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusCompleted, got.Status)
}

func TestRunRespectsBatchSize(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	clock := &fakeClock{now: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	queue := memory.NewQueueStore(clock, &seqIDGen{})
	o := New(Config{BatchSize: 2}, queue, fetcher, nil, clock, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := queue.Enqueue(ctx, fmt.Sprintf("https://shopee.vn/p-i.1.%d", 100+i), []int{5})
		require.NoError(t, err)
		clock.now = clock.now.Add(time.Second)
	}

	summary, err := o.Run(ctx, []int{5})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsClaimed)

	counts, err := queue.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Pending)
	assert.Equal(t, 2, counts.Completed)
}
