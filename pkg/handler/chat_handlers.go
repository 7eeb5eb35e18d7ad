// Chat ingestion API handlers
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/event"
	"github.com/localpulse/localpulse/pkg/service"
	"github.com/localpulse/localpulse/pkg/utils"
)

// ChatHandler handles chat ingestion API requests
type ChatHandler struct {
	extraction  *service.SignalExtractionService
	store       *service.SignalStoreService
	aggregation *service.AggregationService
	tasks       *service.TaskService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(extraction *service.SignalExtractionService, store *service.SignalStoreService, aggregation *service.AggregationService, tasks *service.TaskService) *ChatHandler {
	return &ChatHandler{
		extraction:  extraction,
		store:       store,
		aggregation: aggregation,
		tasks:       tasks,
	}
}

// RegisterRoutes registers chat routes
func (h *ChatHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat/ingest", h.Ingest)
}

// IngestRequest is the chat ingestion payload.
type IngestRequest struct {
	SessionID string                `json:"session_id" binding:"required"`
	UserID    string                `json:"user_id" binding:"required"`
	Messages  []db.ConversationTurn `json:"messages" binding:"required,min=1,dive"`
	Model     string                `json:"model"`
}

// Ingest accepts a batch of conversation turns, extracts signals from them
// and persists the result. Extraction failure degrades to an empty signal
// set; it never fails the request.
// POST /api/chat/ingest
func (h *ChatHandler) Ingest(c *gin.Context) {
	logger := utils.GetLogger()

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id, user_id and messages are required: " + err.Error()})
		return
	}

	ctx := c.Request.Context()

	if err := h.store.TouchSession(ctx, req.UserID, req.SessionID, len(req.Messages)); err != nil {
		logger.Warn("Failed to record chat session", "sessionID", req.SessionID, "error", err)
	}

	signals, err := h.extraction.ExtractFromTurns(ctx, req.UserID, req.SessionID, req.Messages, req.Model)
	if err != nil {
		// The conversation is not lost; extraction retries on the next batch.
		logger.Warn("Signal extraction failed, continuing with empty set",
			"userID", req.UserID, "sessionID", req.SessionID, "error", err)
		signals = nil
	}

	persisted := []db.Signal{}
	if len(signals) > 0 {
		result, err := h.store.Append(ctx, signals)
		if err != nil {
			logger.Error("Failed to append signals", "userID", req.UserID, "error", err)
		} else {
			persisted = result.Persisted
		}
	}

	if len(persisted) > 0 {
		event.Emit(event.SignalsExtractedEvent{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Count:     len(persisted),
		})
		h.enqueueAggregation(req.UserID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"signals_extracted": len(persisted),
		"signals":           persisted,
	})
}

// enqueueAggregation schedules a best-effort profile refresh. A failed run
// leaves the profile one cycle stale; it is never surfaced to the user.
func (h *ChatHandler) enqueueAggregation(userID string) {
	h.tasks.Enqueue(service.TaskTypeAggregation, "Refresh intelligence profile",
		map[string]string{"userId": userID},
		func(ctx context.Context) error {
			_, err := h.aggregation.Aggregate(ctx, userID)
			return err
		})
}
