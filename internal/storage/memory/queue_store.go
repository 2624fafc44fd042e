// Package memory provides in-memory store implementations used by tests
// and single-node deployments without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// QueueStore is an in-memory review.QueueStore.
type QueueStore struct {
	mu    sync.Mutex
	items map[string]review.QueueItem
	clock review.Clock
	idGen review.IDGenerator
}

// NewQueueStore constructs an empty in-memory queue store.
func NewQueueStore(clock review.Clock, idGen review.IDGenerator) *QueueStore {
	return &QueueStore{
		items: make(map[string]review.QueueItem),
		clock: clock,
		idGen: idGen,
	}
}

// Enqueue validates and stores a new pending item.
func (s *QueueStore) Enqueue(_ context.Context, rawURL string, ratings []int) (review.QueueItem, error) {
	shopID, productID, err := review.ExtractIDs(rawURL)
	if err != nil {
		return review.QueueItem{}, err
	}
	normalized, err := review.NormalizeRatings(ratings)
	if err != nil {
		return review.QueueItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.URL == rawURL &&
			(existing.Status == review.StatusPending || existing.Status == review.StatusProcessing) &&
			review.SameRatingSet(existing.TargetRatings, normalized) {
			return review.QueueItem{}, fmt.Errorf("%w: %s", review.ErrAlreadyQueued, rawURL)
		}
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return review.QueueItem{}, fmt.Errorf("generate item id: %w", err)
	}
	now := s.clock.Now()
	item := review.QueueItem{
		ID:            id,
		URL:           rawURL,
		ProductID:     productID,
		ShopID:        shopID,
		TargetRatings: normalized,
		Status:        review.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.items[id] = item
	return item, nil
}

// ClaimBatch marks up to limit pending items whose targets intersect
// ratingFilter as processing, oldest first.
func (s *QueueStore) ClaimBatch(_ context.Context, limit int, ratingFilter []int) ([]review.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := make(map[int]struct{}, len(ratingFilter))
	for _, r := range ratingFilter {
		filter[r] = struct{}{}
	}

	var pending []review.QueueItem
	for _, item := range s.items {
		if item.Status != review.StatusPending {
			continue
		}
		if !intersects(item.TargetRatings, filter) {
			continue
		}
		pending = append(pending, item)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	now := s.clock.Now()
	for i := range pending {
		pending[i].Status = review.StatusProcessing
		attempted := now
		pending[i].LastAttemptedAt = &attempted
		pending[i].UpdatedAt = now
		s.items[pending[i].ID] = pending[i]
	}
	return pending, nil
}

// UpdateItem persists status, completed ratings and error message.
func (s *QueueStore) UpdateItem(_ context.Context, item review.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok {
		return fmt.Errorf("%w: %s", review.ErrNotFound, item.ID)
	}
	stored.Status = item.Status
	stored.CompletedRatings = append([]int(nil), item.CompletedRatings...)
	stored.ErrorMessage = item.ErrorMessage
	stored.LastAttemptedAt = item.LastAttemptedAt
	stored.UpdatedAt = s.clock.Now()
	s.items[item.ID] = stored
	return nil
}

// Remove deletes an item, permitted only while pending.
func (s *QueueStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", review.ErrNotFound, id)
	}
	if item.Status != review.StatusPending {
		return fmt.Errorf("%w: item %s is %s", review.ErrNotPending, id, item.Status)
	}
	delete(s.items, id)
	return nil
}

// Get returns one item by id.
func (s *QueueStore) Get(_ context.Context, id string) (review.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return review.QueueItem{}, fmt.Errorf("%w: %s", review.ErrNotFound, id)
	}
	return item, nil
}

// List returns items filtered by status and/or rating, newest first.
func (s *QueueStore) List(_ context.Context, status review.ItemStatus, rating int) ([]review.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []review.QueueItem
	for _, item := range s.items {
		if status != "" && item.Status != status {
			continue
		}
		if rating != 0 && !containsRating(item.TargetRatings, rating) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountByStatus aggregates item counts per lifecycle state.
func (s *QueueStore) CountByStatus(_ context.Context) (review.QueueCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts review.QueueCounts
	for _, item := range s.items {
		switch item.Status {
		case review.StatusPending:
			counts.Pending++
		case review.StatusProcessing:
			counts.Processing++
		case review.StatusCompleted:
			counts.Completed++
		case review.StatusError:
			counts.Error++
		}
		counts.Total++
	}
	return counts, nil
}

func intersects(ratings []int, filter map[int]struct{}) bool {
	if len(filter) == 0 {
		return false
	}
	for _, r := range ratings {
		if _, ok := filter[r]; ok {
			return true
		}
	}
	return false
}

func containsRating(ratings []int, rating int) bool {
	for _, r := range ratings {
		if r == rating {
			return true
		}
	}
	return false
}
