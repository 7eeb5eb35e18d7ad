// Insight API handlers
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/localpulse/localpulse/pkg/service"
)

// InsightHandler handles insight API requests
type InsightHandler struct {
	insights *service.InsightService
}

// NewInsightHandler creates a new insight handler
func NewInsightHandler(insights *service.InsightService) *InsightHandler {
	return &InsightHandler{insights: insights}
}

// RegisterRoutes registers insight routes
func (h *InsightHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/insights/:userId", h.List)
	r.POST("/insights/:userId/status", h.SetStatus)
}

// List generates the current insight set for a user.
// GET /api/insights/:userId?limit=6&include_dismissed=false
func (h *InsightHandler) List(c *gin.Context) {
	userID := c.Param("userId")

	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	includeDismissed := c.Query("include_dismissed") == "true"

	insights, err := h.insights.ListInsights(c.Request.Context(), userID, limit, includeDismissed)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"insights": insights,
		"total":    len(insights),
	})
}

// SetStatusRequest marks an insight dismissed or completed.
type SetStatusRequest struct {
	InsightID string `json:"insight_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

// SetStatus records the user's dismissed/completed state for an insight.
// POST /api/insights/:userId/status
func (h *InsightHandler) SetStatus(c *gin.Context) {
	userID := c.Param("userId")

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "insight_id and status are required"})
		return
	}

	if err := h.insights.SetStatus(c.Request.Context(), userID, req.InsightID, req.Status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
