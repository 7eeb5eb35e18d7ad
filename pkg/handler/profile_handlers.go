// Intelligence and business profile API handlers
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/service"
)

// ProfileHandler handles profile API requests
type ProfileHandler struct {
	aggregation *service.AggregationService
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(aggregation *service.AggregationService) *ProfileHandler {
	return &ProfileHandler{aggregation: aggregation}
}

// RegisterRoutes registers profile routes
func (h *ProfileHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/profile/aggregate", h.Aggregate)
	r.GET("/profile/:userId", h.Get)
	r.GET("/profile/:userId/business", h.GetBusiness)
	r.PUT("/profile/:userId/business", h.UpdateBusiness)
}

// AggregateRequest is the on-demand aggregation payload.
type AggregateRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Aggregate synchronously recomputes the intelligence profile.
// POST /api/profile/aggregate
func (h *ProfileHandler) Aggregate(c *gin.Context) {
	var req AggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	profile, err := h.aggregation.Aggregate(c.Request.Context(), req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"profile": profile,
	})
}

// Get returns the stored intelligence profile.
// GET /api/profile/:userId
func (h *ProfileHandler) Get(c *gin.Context) {
	userID := c.Param("userId")

	profile, err := h.aggregation.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no profile for user"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// GetBusiness returns the declared business profile.
// GET /api/profile/:userId/business
func (h *ProfileHandler) GetBusiness(c *gin.Context) {
	userID := c.Param("userId")

	business, err := h.aggregation.GetBusinessProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no business profile for user"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"business": business})
}

// UpdateBusiness applies a partial update to the declared business profile.
// PUT /api/profile/:userId/business
func (h *ProfileHandler) UpdateBusiness(c *gin.Context) {
	userID := c.Param("userId")

	var req db.UpdateBusinessProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	business, err := h.aggregation.UpdateBusinessProfile(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"business": business})
}
