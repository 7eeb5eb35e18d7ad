// Market data API handlers
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/service"
)

// MarketHandler handles market data API requests
type MarketHandler struct {
	market  *service.MarketService
	fetcher service.MarketFetcher
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(market *service.MarketService, fetcher service.MarketFetcher) *MarketHandler {
	return &MarketHandler{market: market, fetcher: fetcher}
}

// RegisterRoutes registers market routes
func (h *MarketHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/market", h.Get)
}

// Get returns cached-or-fresh market data for a location/industry pair.
// GET /api/market?location=...&industry=...&type=competitors
func (h *MarketHandler) Get(c *gin.Context) {
	location := c.Query("location")
	industry := c.Query("industry")
	if location == "" || industry == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location and industry query parameters are required"})
		return
	}

	dataType := db.MarketDataType(c.DefaultQuery("type", string(db.MarketDataCompetitors)))
	switch dataType {
	case db.MarketDataCompetitors, db.MarketDataProperty, db.MarketDataDemographics:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown market data type: " + string(dataType)})
		return
	}

	result, err := h.market.GetOrFetch(c.Request.Context(), location, industry, dataType, h.fetcher)
	if err != nil {
		// The dashboard widget shows a "data unavailable" state.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payload":      result.Payload,
		"source":       result.Source,
		"cached":       result.Cached,
		"last_updated": result.LastUpdated,
	})
}
