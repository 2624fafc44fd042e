// Package sheetsync is the boundary to the spreadsheet-sync
// collaborator. The crawler only triggers a sync; the exporter process
// consuming the trigger events owns the actual spreadsheet writes and
// the savedToSheet flag.
package sheetsync

import (
	"context"
	"fmt"
	"time"

	"github.com/hoangbook/shopee-review-crawler/internal/publisher"
	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// Request is the payload published for the exporter.
type Request struct {
	SpreadsheetID string    `json:"spreadsheet_id"`
	ProductID     string    `json:"product_id,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

// Trigger implements review.SheetSyncer by publishing sync requests.
type Trigger struct {
	pub   publisher.Publisher
	topic string
	clock review.Clock
}

// NewTrigger builds a Trigger publishing to the given topic.
func NewTrigger(pub publisher.Publisher, topic string, clock review.Clock) *Trigger {
	return &Trigger{pub: pub, topic: topic, clock: clock}
}

// Sync publishes one sync request. An empty productID requests a full
// re-sync of the spreadsheet.
func (t *Trigger) Sync(ctx context.Context, spreadsheetID, productID string) error {
	if spreadsheetID == "" {
		return fmt.Errorf("spreadsheet id is required")
	}
	req := Request{
		SpreadsheetID: spreadsheetID,
		ProductID:     productID,
		RequestedAt:   t.clock.Now(),
	}
	if _, err := t.pub.Publish(ctx, t.topic, req); err != nil {
		return fmt.Errorf("publish sync request: %w", err)
	}
	return nil
}

// Noop is a SheetSyncer that does nothing, for deployments without a
// configured spreadsheet.
type Noop struct{}

// Sync implements review.SheetSyncer.
func (Noop) Sync(context.Context, string, string) error { return nil }
