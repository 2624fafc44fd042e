// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// PoolConfig controls the shared Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool builds a pgx pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// QueueStore persists queue items in Postgres.
type QueueStore struct {
	pool  pgxPool
	clock review.Clock
	idGen review.IDGenerator
}

// NewQueueStore constructs a QueueStore over an existing pool.
func NewQueueStore(pool pgxPool, clock review.Clock, idGen review.IDGenerator) (*QueueStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &QueueStore{pool: pool, clock: clock, idGen: idGen}, nil
}

// Close releases the underlying pool resources.
func (s *QueueStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const queueColumns = `id, url, product_id, shop_id, target_ratings, completed_ratings,
	status, last_attempted_at, error_message, created_at, updated_at`

// Enqueue validates the URL and ratings, rejects duplicates of an
// in-flight item targeting the same rating set for the same URL, and
// inserts a pending item. Ratings are stored normalized, so array
// equality is exact-set equality.
func (s *QueueStore) Enqueue(ctx context.Context, rawURL string, ratings []int) (review.QueueItem, error) {
	shopID, productID, err := review.ExtractIDs(rawURL)
	if err != nil {
		return review.QueueItem{}, err
	}
	normalized, err := review.NormalizeRatings(ratings)
	if err != nil {
		return review.QueueItem{}, err
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM queue_items WHERE url = $1 AND target_ratings = $2 AND status IN ('pending','processing'))`,
		rawURL, normalized,
	).Scan(&exists)
	if err != nil {
		return review.QueueItem{}, fmt.Errorf("check duplicate queue item: %w", err)
	}
	if exists {
		return review.QueueItem{}, fmt.Errorf("%w: %s", review.ErrAlreadyQueued, rawURL)
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

	_, err = s.pool.Exec(ctx, `
INSERT INTO queue_items (
	id, url, product_id, shop_id, target_ratings, completed_ratings,
	status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		item.ID, item.URL, item.ProductID, item.ShopID,
		item.TargetRatings, []int{}, string(item.Status), "",
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		// The partial unique index on (url, target_ratings) for in-flight
		// rows closes the race between the EXISTS check and the insert.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return review.QueueItem{}, fmt.Errorf("%w: %s", review.ErrAlreadyQueued, rawURL)
		}
		return review.QueueItem{}, fmt.Errorf("insert queue item: %w", err)
	}
	return item, nil
}

// ClaimBatch marks up to limit pending items as processing and returns
// them, oldest first. SKIP LOCKED keeps concurrent claimers disjoint.
func (s *QueueStore) ClaimBatch(ctx context.Context, limit int, ratingFilter []int) ([]review.QueueItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, fmt.Sprintf(`
SELECT %s FROM queue_items
WHERE status = 'pending' AND target_ratings && $1
ORDER BY created_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED`, queueColumns),
		ratingFilter, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, tx.Commit(ctx)
	}

	now := s.clock.Now()
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
		items[i].Status = review.StatusProcessing
		items[i].LastAttemptedAt = &now
		items[i].UpdatedAt = now
	}
	_, err = tx.Exec(ctx, `
UPDATE queue_items
SET status = 'processing', last_attempted_at = $1, updated_at = $1
WHERE id = ANY($2)`,
		now, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("mark items processing: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return items, nil
}

// UpdateItem persists status, completed ratings and error message.
func (s *QueueStore) UpdateItem(ctx context.Context, item review.QueueItem) error {
	completed := item.CompletedRatings
	if completed == nil {
		completed = []int{}
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE queue_items
SET status = $1, completed_ratings = $2, error_message = $3,
	last_attempted_at = $4, updated_at = $5
WHERE id = $6`,
		string(item.Status), completed, item.ErrorMessage,
		item.LastAttemptedAt, s.clock.Now(), item.ID,
	)
	if err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", review.ErrNotFound, item.ID)
	}
	return nil
}

// Remove deletes an item, permitted only while pending.
func (s *QueueStore) Remove(ctx context.Context, id string) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != review.StatusPending {
		return fmt.Errorf("%w: item %s is %s", review.ErrNotPending, id, item.Status)
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM queue_items WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("delete queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %s is no longer pending", review.ErrNotPending, id)
	}
	return nil
}

// Get returns one item by id.
func (s *QueueStore) Get(ctx context.Context, id string) (review.QueueItem, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM queue_items WHERE id = $1`, queueColumns), id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return review.QueueItem{}, fmt.Errorf("%w: %s", review.ErrNotFound, id)
	}
	if err != nil {
		return review.QueueItem{}, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// List returns items filtered by status and/or rating, newest first.
// A zero status or rating means no filter on that dimension.
func (s *QueueStore) List(ctx context.Context, status review.ItemStatus, rating int) ([]review.QueueItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_items WHERE 1=1`, queueColumns)
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if rating != 0 {
		args = append(args, rating)
		query += fmt.Sprintf(" AND $%d = ANY(target_ratings)", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return scanItems(rows)
}

// CountByStatus aggregates item counts per lifecycle state.
func (s *QueueStore) CountByStatus(ctx context.Context) (review.QueueCounts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return review.QueueCounts{}, fmt.Errorf("count queue items: %w", err)
	}
	defer rows.Close()

	var counts review.QueueCounts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return review.QueueCounts{}, fmt.Errorf("scan queue count: %w", err)
		}
		switch review.ItemStatus(status) {
		case review.StatusPending:
			counts.Pending = n
		case review.StatusProcessing:
			counts.Processing = n
		case review.StatusCompleted:
			counts.Completed = n
		case review.StatusError:
			counts.Error = n
		}
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return review.QueueCounts{}, fmt.Errorf("iterate queue counts: %w", err)
	}
	return counts, nil
}

func scanItems(rows pgx.Rows) ([]review.QueueItem, error) {
	defer rows.Close()
	var items []review.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

func scanItem(row pgx.Row) (review.QueueItem, error) {
	var (
		item   review.QueueItem
		status string
	)
	err := row.Scan(
		&item.ID, &item.URL, &item.ProductID, &item.ShopID,
		&item.TargetRatings, &item.CompletedRatings,
		&status, &item.LastAttemptedAt, &item.ErrorMessage,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return review.QueueItem{}, err
	}
	item.Status = review.ItemStatus(status)
	return item, nil
}
