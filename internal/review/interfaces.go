package review

import (
	"context"
	"time"
)

// QueueStore is the durable work queue.
type QueueStore interface {
	// Enqueue validates and stores a new pending item. It rejects
	// malformed URLs and exact duplicates of an in-flight item.
	Enqueue(ctx context.Context, url string, ratings []int) (QueueItem, error)
	// ClaimBatch atomically selects up to limit pending items whose
	// target ratings intersect ratingFilter, oldest first, and marks
	// them processing with LastAttemptedAt set.
	ClaimBatch(ctx context.Context, limit int, ratingFilter []int) ([]QueueItem, error)
	// UpdateItem persists status, completed ratings and error message.
	UpdateItem(ctx context.Context, item QueueItem) error
	// Remove deletes an item, permitted only while pending.
	Remove(ctx context.Context, id string) error
	// Get returns one item by id.
	Get(ctx context.Context, id string) (QueueItem, error)
	// List returns items filtered by status and/or rating, newest first.
	List(ctx context.Context, status ItemStatus, rating int) ([]QueueItem, error)
	// CountByStatus aggregates item counts per lifecycle state.
	CountByStatus(ctx context.Context) (QueueCounts, error)
}

// CommentStore persists fetched reviews keyed by (ProductID, CommentID).
type CommentStore interface {
	// Store inserts the comment if its natural key is new; a duplicate is
	// reported as StoreAlreadyPresent, never overwritten.
	Store(ctx context.Context, c Comment) (StoreResult, error)
	// ListByProduct returns stored comments for a product, optionally
	// filtered to one rating (0 means all), newest first.
	ListByProduct(ctx context.Context, productID string, rating int, limit, offset int) ([]Comment, error)
	// CountByProduct counts stored comments under the same filter.
	CountByProduct(ctx context.Context, productID string, rating int) (int, error)
	// MarkSavedToSheet flips the one mutable field, owned by the sync
	// collaborator.
	MarkSavedToSheet(ctx context.Context, productID string, commentIDs []string) error
}

// FetchTarget identifies one (product, rating) fetch sequence.
type FetchTarget struct {
	URL       string
	ProductID string
	ShopID    string
}

// Fetcher runs one paginated fetch for a (product, rating) pair,
// persisting new unique comments as a side effect. It returns the number
// of newly stored comments.
type Fetcher interface {
	FetchRatings(ctx context.Context, target FetchTarget, rating int) (int, error)
}

// Alerter receives operational events. Delivery is fire-and-forget;
// implementations must never let a failed alert fail the crawl.
type Alerter interface {
	AntiBotDetected(ctx context.Context, productID, url string, statusCode int)
	APIError(ctx context.Context, message string, statusCode int)
	CrawlerBlocked(ctx context.Context, attempts int, recentErrors []string)
}

// SheetSyncer triggers the spreadsheet-sync collaborator for a product.
// Treated as opaque: errors are logged by callers, never propagated into
// item status decisions.
type SheetSyncer interface {
	Sync(ctx context.Context, spreadsheetID, productID string) error
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces ids for queue items, request nonces, and
// placeholder comment identities.
type IDGenerator interface {
	NewID() (string, error)
}
