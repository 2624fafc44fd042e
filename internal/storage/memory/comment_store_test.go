package memory

import (
	"context"
	"testing"
	"time"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

func TestCommentStoreDeduplicates(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	store := NewCommentStore(clock)
	ctx := context.Background()

	c := review.Comment{ID: "row-1", ProductID: "100", CommentID: "42", RatingStar: 5}
	result, err := store.Store(ctx, c)
	if err != nil || result != review.StoreInserted {
		t.Fatalf("first Store() = %v, %v", result, err)
	}

	dup := c
	dup.ID = "row-2"
	dup.CommentText = "changed"
	result, err = store.Store(ctx, dup)
	if err != nil || result != review.StoreAlreadyPresent {
		t.Fatalf("duplicate Store() = %v, %v", result, err)
	}

	// Same comment id under a different product is a distinct key.
	other := c
	other.ProductID = "200"
	result, err = store.Store(ctx, other)
	if err != nil || result != review.StoreInserted {
		t.Fatalf("other-product Store() = %v, %v", result, err)
	}

	stored, err := store.ListByProduct(ctx, "100", 0, 0, 0)
	if err != nil || len(stored) != 1 {
		t.Fatalf("ListByProduct() = %v, %v", stored, err)
	}
	if stored[0].CommentText != "" {
		t.Fatal("duplicate store must not overwrite the original row")
	}
}

func TestCommentStoreListFilterAndPagination(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	store := NewCommentStore(clock)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 5; i++ {
		star := 5
		if i%2 == 1 {
			star = 3
		}
		c := review.Comment{
			ProductID:        "100",
			CommentID:        string(rune('a' + i)),
			RatingStar:       star,
			CommentTimestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := store.Store(ctx, c); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	fives, err := store.ListByProduct(ctx, "100", 5, 0, 0)
	if err != nil {
		t.Fatalf("ListByProduct() error = %v", err)
	}
	if len(fives) != 3 {
		t.Fatalf("expected 3 five-star comments, got %d", len(fives))
	}
	if !fives[0].CommentTimestamp.After(fives[1].CommentTimestamp) {
		t.Fatal("expected newest-first order")
	}

	page, err := store.ListByProduct(ctx, "100", 0, 2, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("paginated ListByProduct() = %v, %v", page, err)
	}
	beyond, err := store.ListByProduct(ctx, "100", 0, 2, 10)
	if err != nil || len(beyond) != 0 {
		t.Fatalf("offset past end = %v, %v", beyond, err)
	}

	n, err := store.CountByProduct(ctx, "100", 3)
	if err != nil || n != 2 {
		t.Fatalf("CountByProduct() = %d, %v", n, err)
	}
}

func TestCommentStoreMarkSavedToSheet(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	store := NewCommentStore(clock)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := store.Store(ctx, review.Comment{ProductID: "100", CommentID: id}); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
	if err := store.MarkSavedToSheet(ctx, "100", []string{"a", "missing"}); err != nil {
		t.Fatalf("MarkSavedToSheet() error = %v", err)
	}

	comments, err := store.ListByProduct(ctx, "100", 0, 0, 0)
	if err != nil {
		t.Fatalf("ListByProduct() error = %v", err)
	}
	saved := map[string]bool{}
	for _, c := range comments {
		saved[c.CommentID] = c.SavedToSheet
	}
	if !saved["a"] || saved["b"] {
		t.Fatalf("unexpected saved flags %v", saved)
	}
}
