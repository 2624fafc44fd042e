package review

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the enqueue/remove boundary.
var (
	// ErrInvalidURL means the URL does not embed shop/product ids.
	ErrInvalidURL = errors.New("url does not match shopee product format")
	// ErrEmptyRatings means the target rating set was empty.
	ErrEmptyRatings = errors.New("at least one target rating is required")
	// ErrInvalidRating means a rating was outside [1,5].
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrAlreadyQueued means a pending/processing item already targets the
	// same URL with the same rating set.
	ErrAlreadyQueued = errors.New("url already queued with the same ratings")
	// ErrNotFound means the queue item does not exist.
	ErrNotFound = errors.New("queue item not found")
	// ErrNotPending means a removal was attempted on an in-flight or
	// finished item.
	ErrNotPending = errors.New("only pending items can be removed")
	// ErrRunInProgress means an orchestrator run is already active.
	ErrRunInProgress = errors.New("a crawl run is already in progress")
)

// AntiBotError is the provider's automated-traffic detection signal,
// distinct from ordinary HTTP failures. It drives the bounded retry
// protocol in the fetcher.
type AntiBotError struct {
	StatusCode int
	ProductID  string
	URL        string
	Page       int
}

func (e *AntiBotError) Error() string {
	return fmt.Sprintf("anti-bot response %d for product %s page %d", e.StatusCode, e.ProductID, e.Page)
}

// BlockedError means the anti-bot retry budget was exhausted and the
// crawler is considered blocked for this rating.
type BlockedError struct {
	Attempts int
	Last     error
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("crawler blocked after %d exhausted retries: %v", e.Attempts, e.Last)
}

// Unwrap exposes the final attempt's error.
func (e *BlockedError) Unwrap() error { return e.Last }
