package review

import (
	"encoding/json"
	"time"
)

// QueueItem is one crawl target: a product URL plus the set of star
// ratings whose reviews should be fetched for it.
type QueueItem struct {
	ID               string
	URL              string
	ProductID        string
	ShopID           string
	TargetRatings    []int
	CompletedRatings []int
	Status           ItemStatus
	LastAttemptedAt  *time.Time
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PendingRatings returns the target ratings not yet completed, in target order.
func (q QueueItem) PendingRatings() []int {
	done := make(map[int]struct{}, len(q.CompletedRatings))
	for _, r := range q.CompletedRatings {
		done[r] = struct{}{}
	}
	var out []int
	for _, r := range q.TargetRatings {
		if _, ok := done[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// HasCompleted reports whether the rating is already in CompletedRatings.
func (q QueueItem) HasCompleted(rating int) bool {
	for _, r := range q.CompletedRatings {
		if r == rating {
			return true
		}
	}
	return false
}

// Comment is one fetched review. Identity is the (ProductID, CommentID)
// natural key; a stored comment is immutable except for SavedToSheet,
// which belongs to the sheet-sync collaborator.
type Comment struct {
	ID               string
	ProductID        string
	CommentID        string
	OriginalURL      string
	RatingStar       int
	CommentText      string
	AuthorUsername   string
	AuthorUserID     int64
	Anonymous        bool
	CommentTimestamp time.Time
	LikeCount        int
	RatingImages     []string
	RatingVideos     []string
	Raw              json.RawMessage
	SavedToSheet     bool
	CreatedAt        time.Time
}

// StoreResult describes the outcome of a comment store attempt.
type StoreResult int

const (
	// StoreInserted means a new row was written.
	StoreInserted StoreResult = iota
	// StoreAlreadyPresent means the natural key already existed and the
	// store was a no-op.
	StoreAlreadyPresent
)

// String implements fmt.Stringer.
func (r StoreResult) String() string {
	switch r {
	case StoreInserted:
		return "inserted"
	case StoreAlreadyPresent:
		return "already-present"
	default:
		return "unknown"
	}
}

// QueueCounts aggregates queue items per status.
type QueueCounts struct {
	Pending    int
	Processing int
	Completed  int
	Error      int
	Total      int
}
