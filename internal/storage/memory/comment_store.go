package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// CommentStore is an in-memory review.CommentStore keyed by the
// (ProductID, CommentID) natural key.
type CommentStore struct {
	mu       sync.Mutex
	comments map[string]review.Comment
	clock    review.Clock
}

// NewCommentStore constructs an empty in-memory comment store.
func NewCommentStore(clock review.Clock) *CommentStore {
	return &CommentStore{
		comments: make(map[string]review.Comment),
		clock:    clock,
	}
}

func naturalKey(productID, commentID string) string {
	return productID + "\x00" + commentID
}

// Store inserts the comment if its natural key is new.
func (s *CommentStore) Store(_ context.Context, c review.Comment) (review.StoreResult, error) {
	if c.ProductID == "" || c.CommentID == "" {
		return 0, fmt.Errorf("comment natural key is incomplete")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := naturalKey(c.ProductID, c.CommentID)
	if _, exists := s.comments[key]; exists {
		return review.StoreAlreadyPresent, nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock.Now()
	}
	s.comments[key] = c
	return review.StoreInserted, nil
}

// ListByProduct returns stored comments for a product, optionally
// filtered to one rating (0 means all), newest first.
func (s *CommentStore) ListByProduct(_ context.Context, productID string, rating, limit, offset int) ([]review.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []review.Comment
	for _, c := range s.comments {
		if c.ProductID != productID {
			continue
		}
		if rating != 0 && c.RatingStar != rating {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CommentTimestamp.Equal(out[j].CommentTimestamp) {
			return out[i].CommentTimestamp.After(out[j].CommentTimestamp)
		}
		return out[i].CommentID > out[j].CommentID
	})

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByProduct counts stored comments under the same filter.
func (s *CommentStore) CountByProduct(_ context.Context, productID string, rating int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.comments {
		if c.ProductID != productID {
			continue
		}
		if rating != 0 && c.RatingStar != rating {
			continue
		}
		n++
	}
	return n, nil
}

// MarkSavedToSheet flags the given comments as exported.
func (s *CommentStore) MarkSavedToSheet(_ context.Context, productID string, commentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range commentIDs {
		key := naturalKey(productID, id)
		if c, ok := s.comments[key]; ok {
			c.SavedToSheet = true
			s.comments[key] = c
		}
	}
	return nil
}
