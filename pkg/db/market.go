// Database models for memoized external market lookups
package db

import "time"

// MarketDataType enumerates the external lookup categories.
type MarketDataType string

const (
	MarketDataCompetitors  MarketDataType = "competitors"
	MarketDataProperty     MarketDataType = "property"
	MarketDataDemographics MarketDataType = "demographics"
)

// MarketCacheEntry memoizes one expensive external lookup, keyed by
// (location, industry, data_type). At most one non-expired entry exists
// per key; expired rows are kept for audit but never served.
type MarketCacheEntry struct {
	ID       string         `json:"id" gorm:"primaryKey;size:36"`
	Location string         `json:"location" gorm:"index:idx_market_key;size:200;not null"`
	Industry string         `json:"industry" gorm:"index:idx_market_key;size:100;not null"`
	DataType MarketDataType `json:"data_type" gorm:"index:idx_market_key;size:30;not null"`

	Payload        JSONMap `json:"payload" gorm:"type:json"`
	Source         string  `json:"source,omitempty" gorm:"size:100"`
	RelevanceScore float64 `json:"relevance_score" gorm:"default:0"`

	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

func (MarketCacheEntry) TableName() string {
	return "market_cache_entries"
}
