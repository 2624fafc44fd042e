package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
	recentItemsLimit = 10
)

type enqueueRequest struct {
	URLs    []string `json:"urls"`
	Ratings []int    `json:"ratings"`
}

type enqueueResult struct {
	URL    string `json:"url"`
	ItemID string `json:"item_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) enqueueURLs(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one url is required")
		return
	}
	if _, err := review.NormalizeRatings(req.Ratings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := make([]enqueueResult, 0, len(req.URLs))
	accepted := 0
	for _, u := range req.URLs {
		item, err := s.queue.Enqueue(r.Context(), u, req.Ratings)
		if err != nil {
			results = append(results, enqueueResult{URL: u, Error: err.Error()})
			continue
		}
		accepted++
		results = append(results, enqueueResult{URL: u, ItemID: item.ID})
	}

	status := http.StatusCreated
	if accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{
		"accepted": accepted,
		"rejected": len(req.URLs) - accepted,
		"results":  results,
	})
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	status := review.ItemStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	rating, ok := intQueryParam(w, r, "rating", 0)
	if !ok {
		return
	}
	if rating != 0 && (rating < 1 || rating > 5) {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	items, err := s.queue.List(r.Context(), status, rating)
	if err != nil {
		s.logger.Error("list queue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	views := make([]queueItemView, 0, len(items))
	for _, item := range items {
		views = append(views, toQueueItemView(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views, "count": len(views)})
}

func (s *Server) removeQueueItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	err := s.queue.Remove(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"item_id": id, "status": "removed"})
	case errors.Is(err, review.ErrNotFound):
		writeError(w, http.StatusNotFound, "queue item not found")
	case errors.Is(err, review.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("remove queue item failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to remove queue item")
	}
}

type runCrawlRequest struct {
	Ratings []int `json:"ratings"`
}

func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request) {
	var req runCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ratings, err := review.NormalizeRatings(req.Ratings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.runner.Running() {
		writeError(w, http.StatusConflict, review.ErrRunInProgress.Error())
		return
	}

	// The run outlives the request; detach it from the request context.
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := s.runner.Run(runCtx, ratings); err != nil && !errors.Is(err, review.ErrRunInProgress) {
			s.logger.Error("crawl run failed", zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "started",
		"ratings": ratings,
	})
}

func (s *Server) crawlStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error("count queue items failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read queue counts")
		return
	}
	items, err := s.queue.List(r.Context(), "", 0)
	if err != nil {
		s.logger.Error("list queue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	if len(items) > recentItemsLimit {
		items = items[:recentItemsLimit]
	}
	views := make([]queueItemView, 0, len(items))
	for _, item := range items {
		views = append(views, toQueueItemView(item))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"running": s.runner.Running(),
		"counts": map[string]int{
			"pending":    counts.Pending,
			"processing": counts.Processing,
			"completed":  counts.Completed,
			"error":      counts.Error,
			"total":      counts.Total,
		},
		"last_run":     s.runner.LastRun(),
		"recent_items": views,
	})
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	rating, ok := intQueryParam(w, r, "rating", 0)
	if !ok {
		return
	}
	limit, ok := intQueryParam(w, r, "limit", defaultPageLimit)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	offset, ok := intQueryParam(w, r, "offset", 0)
	if !ok {
		return
	}

	comments, err := s.comments.ListByProduct(r.Context(), productID, rating, limit, offset)
	if err != nil {
		s.logger.Error("list comments failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}
	total, err := s.comments.CountByProduct(r.Context(), productID, rating)
	if err != nil {
		s.logger.Error("count comments failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count comments")
		return
	}

	views := make([]commentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, toCommentView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"comments": views,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) recentAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQueryParam(w, r, "limit", 20)
	if !ok {
		return
	}
	if s.alerts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"alerts": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": s.alerts.Recent(limit)})
}

func intQueryParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return v, true
}

type queueItemView struct {
	ID               string     `json:"id"`
	URL              string     `json:"url"`
	ProductID        string     `json:"product_id"`
	ShopID           string     `json:"shop_id"`
	TargetRatings    []int      `json:"target_ratings"`
	CompletedRatings []int      `json:"completed_ratings"`
	Status           string     `json:"status"`
	LastAttemptedAt  *time.Time `json:"last_attempted_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toQueueItemView(item review.QueueItem) queueItemView {
	completed := item.CompletedRatings
	if completed == nil {
		completed = []int{}
	}
	return queueItemView{
		ID:               item.ID,
		URL:              item.URL,
		ProductID:        item.ProductID,
		ShopID:           item.ShopID,
		TargetRatings:    item.TargetRatings,
		CompletedRatings: completed,
		Status:           string(item.Status),
		LastAttemptedAt:  item.LastAttemptedAt,
		ErrorMessage:     item.ErrorMessage,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	}
}

type commentView struct {
	ProductID        string    `json:"product_id"`
	CommentID        string    `json:"comment_id"`
	RatingStar       int       `json:"rating_star"`
	CommentText      string    `json:"comment_text"`
	AuthorUsername   string    `json:"author_username"`
	Anonymous        bool      `json:"anonymous"`
	CommentTimestamp time.Time `json:"comment_timestamp"`
	LikeCount        int       `json:"like_count"`
	RatingImages     []string  `json:"rating_images,omitempty"`
	RatingVideos     []string  `json:"rating_videos,omitempty"`
	SavedToSheet     bool      `json:"saved_to_sheet"`
}

func toCommentView(c review.Comment) commentView {
	return commentView{
		ProductID:        c.ProductID,
		CommentID:        c.CommentID,
		RatingStar:       c.RatingStar,
		CommentText:      c.CommentText,
		AuthorUsername:   c.AuthorUsername,
		Anonymous:        c.Anonymous,
		CommentTimestamp: c.CommentTimestamp,
		LikeCount:        c.LikeCount,
		RatingImages:     c.RatingImages,
		RatingVideos:     c.RatingVideos,
		SavedToSheet:     c.SavedToSheet,
	}
}
