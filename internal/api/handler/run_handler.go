package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/service"
)

// RunService is the part of service.HarvestService the handler needs.
type RunService interface {
	Run(ctx context.Context, sourceID string) (*domain.RunResult, error)
	Status() []service.SourceStatus
}

// RunLister lists persisted run summaries.
type RunLister interface {
	ListRecent(ctx context.Context, source string, limit int) ([]domain.HarvestRun, error)
}

// RunHandler triggers harvest runs and reports their state.
type RunHandler struct {
	runs    RunService
	history RunLister
}

// NewRunHandler creates a new run handler.
// Parameters:
//   - runs: harvest service.
//   - history: run summary store; may be nil to disable the history endpoint.
// Returns:
//   - *RunHandler: initialized handler.
func NewRunHandler(runs RunService, history RunLister) *RunHandler {
	return &RunHandler{runs: runs, history: history}
}

// RunRequest represents the trigger API request.
type RunRequest struct {
	Source string `json:"source" binding:"required,oneof=social feed"`
}

// TriggerRun runs one pipeline synchronously and returns its RunResult.
// A run in progress for the same source yields 409; a critical run error
// yields 500 with the partial result.
func (h *RunHandler) TriggerRun(c *gin.Context) {
	ctx := c.Request.Context()

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid run request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.CtxInfo(ctx, "Received run request: source=%s, client_ip=%s", req.Source, c.ClientIP())

	// The run outlives a dropped HTTP connection.
	start := time.Now()
	res, err := h.runs.Run(context.WithoutCancel(ctx), req.Source)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrUnknownSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.With(logger.Fields{logger.FieldSource: req.Source}).
			WithDuration(time.Since(start)).
			Error(ctx, "Run failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": res})
		return
	}

	logger.With(logger.Fields{logger.FieldCount: res.Statistics.Published}).
		WithDuration(time.Since(start)).
		WithStatus(string(res.Status)).Info(ctx, "Run finished: source=%s, run_id=%s", req.Source, res.RunID)

	c.JSON(http.StatusOK, res)
}

// GetStatus reports whether each source is running and its last result.
func (h *RunHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.runs.Status()})
}

// ListRuns returns recent run summaries. Query: source, limit (default 20, max 100).
func (h *RunHandler) ListRuns(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is not enabled"})
		return
	}
	limit := boundedLimit(c.Query("limit"), 20, 100)
	runs, err := h.history.ListRecent(c.Request.Context(), c.Query("source"), limit)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func boundedLimit(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
