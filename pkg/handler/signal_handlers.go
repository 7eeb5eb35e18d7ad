// Signal API handlers
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/localpulse/localpulse/pkg/service"
)

// SignalHandler handles signal API requests
type SignalHandler struct {
	store *service.SignalStoreService
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(store *service.SignalStoreService) *SignalHandler {
	return &SignalHandler{store: store}
}

// RegisterRoutes registers signal routes
func (h *SignalHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/signals/:userId", h.List)
	r.GET("/signals/:userId/search", h.Search)
}

// List returns a user's signals, newest first.
// GET /api/signals/:userId?limit=100
func (h *SignalHandler) List(c *gin.Context) {
	userID := c.Param("userId")

	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	signals, err := h.store.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signals": signals,
		"total":   len(signals),
	})
}

// Search performs vector-similarity search over a user's signals.
// GET /api/signals/:userId/search?q=...&limit=20
func (h *SignalHandler) Search(c *gin.Context) {
	userID := c.Param("userId")
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q query parameter is required"})
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	results, err := h.store.SearchSemantic(c.Request.Context(), userID, query, limit)
	if err != nil {
		if errors.Is(err, service.ErrVectorIndexDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "semantic search is not enabled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
	})
}
