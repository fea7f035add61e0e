package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
)

// EntryLister reads published research entries.
type EntryLister interface {
	ListTop(ctx context.Context, source string, limit int) ([]domain.ResearchEntry, error)
}

// ResearchHandler serves published research entries.
type ResearchHandler struct {
	entries EntryLister
}

// NewResearchHandler creates a new research handler
func NewResearchHandler(entries EntryLister) *ResearchHandler {
	return &ResearchHandler{entries: entries}
}

// ListTop returns the highest scoring entries. Query: source, limit (default 20, max 200).
func (h *ResearchHandler) ListTop(c *gin.Context) {
	ctx := c.Request.Context()
	limit := boundedLimit(c.Query("limit"), 20, 200)

	entries, err := h.entries.ListTop(ctx, c.Query("source"), limit)
	if err != nil {
		logger.CtxError(ctx, "Failed to list entries: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
