package postgres

import (
	"context"
	"fmt"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// CommentStore persists fetched comments in Postgres. Inserts are
// idempotent on the (product_id, comment_id) natural key.
type CommentStore struct {
	pool  pgxPool
	clock review.Clock
}

// NewCommentStore constructs a CommentStore over an existing pool.
func NewCommentStore(pool pgxPool, clock review.Clock) (*CommentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CommentStore{pool: pool, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *CommentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const commentColumns = `id, product_id, comment_id, original_url, rating_star,
	comment_text, author_username, author_user_id, anonymous,
	comment_timestamp, like_count, rating_images, rating_videos,
	raw, saved_to_sheet, created_at`

// Store inserts the comment if its natural key is new. An existing key
// leaves the stored row untouched and reports StoreAlreadyPresent.
func (s *CommentStore) Store(ctx context.Context, c review.Comment) (review.StoreResult, error) {
	if c.ProductID == "" || c.CommentID == "" {
		return 0, fmt.Errorf("comment natural key is incomplete")
	}
	images := c.RatingImages
	if images == nil {
		images = []string{}
	}
	videos := c.RatingVideos
	if videos == nil {
		videos = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO comments (
	id, product_id, comment_id, original_url, rating_star,
	comment_text, author_username, author_user_id, anonymous,
	comment_timestamp, like_count, rating_images, rating_videos,
	raw, saved_to_sheet, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (product_id, comment_id) DO NOTHING`,
		c.ID, c.ProductID, c.CommentID, c.OriginalURL, c.RatingStar,
		c.CommentText, c.AuthorUsername, c.AuthorUserID, c.Anonymous,
		c.CommentTimestamp, c.LikeCount, images, videos,
		[]byte(c.Raw), c.SavedToSheet, s.clock.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return review.StoreAlreadyPresent, nil
	}
	return review.StoreInserted, nil
}

// ListByProduct returns stored comments for a product, optionally
// filtered to one rating (0 means all), newest first.
func (s *CommentStore) ListByProduct(ctx context.Context, productID string, rating, limit, offset int) ([]review.Comment, error) {
	query := fmt.Sprintf(`SELECT %s FROM comments WHERE product_id = $1`, commentColumns)
	args := []any{productID}
	if rating != 0 {
		args = append(args, rating)
		query += fmt.Sprintf(" AND rating_star = $%d", len(args))
	}
	query += " ORDER BY comment_timestamp DESC, comment_id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []review.Comment
	for rows.Next() {
		var c review.Comment
		err := rows.Scan(
			&c.ID, &c.ProductID, &c.CommentID, &c.OriginalURL, &c.RatingStar,
			&c.CommentText, &c.AuthorUsername, &c.AuthorUserID, &c.Anonymous,
			&c.CommentTimestamp, &c.LikeCount, &c.RatingImages, &c.RatingVideos,
			&c.Raw, &c.SavedToSheet, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// CountByProduct counts stored comments for a product, optionally
// filtered to one rating.
func (s *CommentStore) CountByProduct(ctx context.Context, productID string, rating int) (int, error) {
	query := `SELECT COUNT(*) FROM comments WHERE product_id = $1`
	args := []any{productID}
	if rating != 0 {
		args = append(args, rating)
		query += fmt.Sprintf(" AND rating_star = $%d", len(args))
	}
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

// MarkSavedToSheet flags the given comments as exported.
func (s *CommentStore) MarkSavedToSheet(ctx context.Context, productID string, commentIDs []string) error {
	if len(commentIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
UPDATE comments SET saved_to_sheet = TRUE
WHERE product_id = $1 AND comment_id = ANY($2)`,
		productID, commentIDs,
	)
	if err != nil {
		return fmt.Errorf("mark comments saved: %w", err)
	}
	return nil
}
