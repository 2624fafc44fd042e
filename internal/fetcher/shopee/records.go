package shopee

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/metrics"
	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// ratingsResponse mirrors the provider's envelope. Each rating is kept
// as raw JSON alongside the typed fields so the full payload can be
// persisted without loss.
type ratingsResponse struct {
	Data struct {
		Ratings     []json.RawMessage `json:"ratings"`
		HasNextPage bool              `json:"has_next_page"`
	} `json:"data"`
}

type providerComment struct {
	CmtID          json.Number `json:"cmtid"`
	OrderID        json.Number `json:"order_id"`
	RatingStar     int         `json:"rating_star"`
	Comment        string      `json:"comment"`
	AuthorUsername string      `json:"author_username"`
	AuthorUserID   int64       `json:"author_userid"`
	Anonymous      bool        `json:"anonymous"`
	Ctime          int64       `json:"ctime"`
	LikeCount      int         `json:"like_count"`
	RatingImgs     []string    `json:"rating_imgs"`
	RatingVideos   []string    `json:"rating_videos"`
}

// persistPage stores every record of one page, skipping duplicates. It
// returns the number of newly stored comments.
func (f *Fetcher) persistPage(ctx context.Context, target review.FetchTarget, rating int, resp ratingsResponse) (int, error) {
	stored := 0
	for _, raw := range resp.Data.Ratings {
		comment, err := f.buildComment(target, rating, raw)
		if err != nil {
			f.logger.Warn("skipping malformed rating record",
				zap.String("product_id", target.ProductID),
				zap.Error(err),
			)
			continue
		}
		result, err := f.store.Store(ctx, comment)
		if err != nil {
			return stored, fmt.Errorf("store comment %s: %w", comment.CommentID, err)
		}
		if result == review.StoreInserted {
			stored++
		}
		metrics.ObserveCommentStored(result == review.StoreInserted)
	}
	return stored, nil
}

func (f *Fetcher) buildComment(target review.FetchTarget, rating int, raw json.RawMessage) (review.Comment, error) {
	var rec providerComment
	if err := json.Unmarshal(raw, &rec); err != nil {
		return review.Comment{}, fmt.Errorf("decode rating record: %w", err)
	}

	commentID, err := f.commentIdentity(rec)
	if err != nil {
		return review.Comment{}, err
	}

	id, err := f.idGen.NewID()
	if err != nil {
		return review.Comment{}, fmt.Errorf("generate comment id: %w", err)
	}

	star := rec.RatingStar
	if star == 0 {
		star = rating
	}

	return review.Comment{
		ID:               id,
		ProductID:        target.ProductID,
		CommentID:        commentID,
		OriginalURL:      target.URL,
		RatingStar:       star,
		CommentText:      rec.Comment,
		AuthorUsername:   rec.AuthorUsername,
		AuthorUserID:     rec.AuthorUserID,
		Anonymous:        rec.Anonymous,
		CommentTimestamp: time.Unix(rec.Ctime, 0).UTC(),
		LikeCount:        rec.LikeCount,
		RatingImages:     rec.RatingImgs,
		RatingVideos:     rec.RatingVideos,
		Raw:              append(json.RawMessage(nil), raw...),
		CreatedAt:        f.clock.Now(),
	}, nil
}

// commentIdentity derives the natural comment key: the provider's
// cmtid when present, then the order id, then a generated placeholder
// so records with neither are still stored exactly once per run.
func (f *Fetcher) commentIdentity(rec providerComment) (string, error) {
	if s := rec.CmtID.String(); s != "" && s != "0" {
		return s, nil
	}
	if s := rec.OrderID.String(); s != "" && s != "0" {
		return "order-" + s, nil
	}
	placeholder, err := f.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate placeholder comment id: %w", err)
	}
	return "generated-" + placeholder, nil
}
