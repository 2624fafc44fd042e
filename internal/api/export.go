package api

import (
	"encoding/csv"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hoangbook/shopee-review-crawler/internal/review"
)

// exportComments streams every stored comment for a product as CSV or
// JSON. Unlike the paginated listing, export is unbounded.
func (s *Server) exportComments(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	rating, ok := intQueryParam(w, r, "rating", 0)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	comments, err := s.comments.ListByProduct(r.Context(), productID, rating, 0, 0)
	if err != nil {
		s.logger.Error("export comments failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export comments")
		return
	}

	if format == "json" {
		views := make([]commentView, 0, len(comments))
		for _, c := range comments {
			views = append(views, toCommentView(c))
		}
		w.Header().Set("Content-Disposition", `attachment; filename="comments-`+productID+`.json"`)
		writeJSON(w, http.StatusOK, map[string]any{"comments": views, "total": len(views)})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="comments-`+productID+`.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := writeCommentsCSV(w, comments); err != nil {
		s.logger.Error("write CSV failed", zap.Error(err))
	}
}

func writeCommentsCSV(w http.ResponseWriter, comments []review.Comment) error {
	cw := csv.NewWriter(w)
	header := []string{
		"product_id", "comment_id", "rating_star", "comment_text",
		"author_username", "anonymous", "comment_timestamp", "like_count",
		"saved_to_sheet",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, c := range comments {
		row := []string{
			c.ProductID,
			c.CommentID,
			strconv.Itoa(c.RatingStar),
			c.CommentText,
			c.AuthorUsername,
			strconv.FormatBool(c.Anonymous),
			c.CommentTimestamp.UTC().Format("2006-01-02T15:04:05Z"),
			strconv.Itoa(c.LikeCount),
			strconv.FormatBool(c.SavedToSheet),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
