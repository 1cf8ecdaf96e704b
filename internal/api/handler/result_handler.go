package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ndquoc/recon-be/internal/api/dto"
	"github.com/ndquoc/recon-be/internal/result"
)

// ListResults handles GET /results?q=&type=&jobId=&limit=. Entities come back
// most-recent-first with the limit capped server-side.
func (h *ResultHandler) ListResults(c *gin.Context) {
	var req dto.ListResultsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid query parameters",
		})
		return
	}

	entities, err := h.results.Query(c.Request.Context(), result.Filter{
		Type:      req.Type,
		TextMatch: req.TextMatch,
		JobID:     req.JobID,
		Limit:     req.Limit,
	})
	if err != nil {
		h.logger.Error("Failed to query results", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to query results",
		})
		return
	}

	if entities == nil {
		entities = []result.Entity{}
	}

	c.JSON(http.StatusOK, gin.H{
		"results": entities,
	})
}

// ExportResults handles GET /results/export?type=&q=&format=csv|ndjson&limit=.
// The body is streamed row by row; the full result set is never buffered.
func (h *ResultHandler) ExportResults(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid query parameters",
		})
		return
	}

	format := req.Format
	if format == "" {
		format = result.FormatNDJSON
	}

	var contentType string
	switch format {
	case result.FormatCSV:
		contentType = "text/csv; charset=utf-8"
	case result.FormatNDJSON:
		contentType = "application/x-ndjson"
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported format %q", format),
		})
		return
	}

	filename := fmt.Sprintf("entities-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	enc, err := result.NewEncoder(format, c.Writer)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.results.Export(c.Request.Context(), result.Filter{
		Type:      req.Type,
		TextMatch: req.TextMatch,
		JobID:     req.JobID,
		Limit:     req.Limit,
	}, enc)
	if err != nil {
		// Rows may already be on the wire; all we can do is cut the stream
		h.logger.Error("Export failed mid-stream",
			slog.String("error", err.Error()),
			slog.Int("rows_written", count),
		)
		return
	}

	h.logger.Info("Export completed",
		slog.String("format", format),
		slog.Int("rows", count),
	)
}
