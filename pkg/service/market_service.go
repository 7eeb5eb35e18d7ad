// External market cache: TTL-bound memoization of expensive competitor,
// property and demographic lookups.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/event"
	"github.com/localpulse/localpulse/pkg/utils"
)

// MarketFetcher performs the external lookup on a cache miss. Fetch failure
// must leave the cache untouched; the next request retries.
type MarketFetcher interface {
	Fetch(ctx context.Context, location, industry string, dataType db.MarketDataType) (*MarketPayload, error)
}

// MarketPayload is the fetcher's result before caching.
type MarketPayload struct {
	Data           db.JSONMap `json:"data"`
	Source         string     `json:"source"`
	RelevanceScore float64    `json:"relevance_score"`
}

// MarketResult is what callers receive: the payload plus cache metadata.
type MarketResult struct {
	Location    string            `json:"location"`
	Industry    string            `json:"industry"`
	DataType    db.MarketDataType `json:"data_type"`
	Payload     db.JSONMap        `json:"payload"`
	Source      string            `json:"source,omitempty"`
	Cached      bool              `json:"cached"`
	LastUpdated time.Time         `json:"last_updated"`
}

// MarketConfig holds configuration for the market cache
type MarketConfig struct {
	TTL          time.Duration `yaml:"ttl"`            // Entry lifetime
	RedisHotTier bool          `yaml:"redis_hot_tier"` // Mirror entries into Redis
}

// DefaultMarketConfig returns default configuration
func DefaultMarketConfig() *MarketConfig {
	return &MarketConfig{
		TTL: 7 * 24 * time.Hour,
	}
}

// MarketService serves market lookups through a two-tier cache: an optional
// Redis hot tier in front of the durable gorm-backed tier. Concurrent misses
// for the same key may both fetch and write; last write wins, which is
// acceptable for advisory data.
type MarketService struct {
	db     *gorm.DB
	rdb    *redis.Client
	config *MarketConfig
	logger *slog.Logger

	now func() time.Time
}

// NewMarketService creates a new market cache service. rdb may be nil, in
// which case only the durable tier is used.
func NewMarketService(database *gorm.DB, rdb *redis.Client, config *MarketConfig) *MarketService {
	if config == nil {
		config = DefaultMarketConfig()
	}
	if config.TTL <= 0 {
		config.TTL = 7 * 24 * time.Hour
	}
	return &MarketService{
		db:     database,
		rdb:    rdb,
		config: config,
		logger: utils.GetLogger(),
		now:    time.Now,
	}
}

// AutoMigrate creates database tables
func (s *MarketService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.MarketCacheEntry{})
}

// GetOrFetch returns a non-expired cached payload for the composite key, or
// invokes fetcher, caches the result with the configured TTL, and returns it.
// Fetch errors propagate and nothing is cached on failure.
func (s *MarketService) GetOrFetch(ctx context.Context, location, industry string, dataType db.MarketDataType, fetcher MarketFetcher) (*MarketResult, error) {
	location = strings.TrimSpace(location)
	industry = strings.TrimSpace(industry)
	if location == "" || industry == "" {
		return nil, fmt.Errorf("location and industry are required")
	}

	if entry := s.lookupHotTier(ctx, location, industry, dataType); entry != nil {
		return s.resultFromEntry(entry, true), nil
	}

	now := s.now()
	var entry db.MarketCacheEntry
	err := s.db.WithContext(ctx).
		Where("location = ? AND industry = ? AND data_type = ? AND expires_at > ?",
			location, industry, dataType, now).
		Order("fetched_at DESC").
		First(&entry).Error
	if err == nil {
		s.storeHotTier(ctx, &entry)
		return s.resultFromEntry(&entry, true), nil
	}
	if err != gorm.ErrRecordNotFound {
		// Degraded cache reads fall through to the fetcher.
		s.logger.Warn("Market cache read failed", "error", err)
	}

	payload, err := fetcher.Fetch(ctx, location, industry, dataType)
	if err != nil {
		return nil, fmt.Errorf("market fetch failed: %w", err)
	}

	fresh := db.MarketCacheEntry{
		ID:             uuid.New().String(),
		Location:       location,
		Industry:       industry,
		DataType:       dataType,
		Payload:        payload.Data,
		Source:         payload.Source,
		RelevanceScore: payload.RelevanceScore,
		FetchedAt:      now,
		ExpiresAt:      now.Add(s.config.TTL),
	}
	if err := s.db.WithContext(ctx).Create(&fresh).Error; err != nil {
		// The payload is still good; serving it beats failing the caller.
		s.logger.Warn("Failed to cache market entry", "error", err)
	} else {
		s.storeHotTier(ctx, &fresh)
		event.Emit(event.MarketRefreshedEvent{
			Location: location,
			Industry: industry,
			DataType: string(dataType),
		})
	}

	return s.resultFromEntry(&fresh, false), nil
}

func (s *MarketService) resultFromEntry(entry *db.MarketCacheEntry, cached bool) *MarketResult {
	return &MarketResult{
		Location:    entry.Location,
		Industry:    entry.Industry,
		DataType:    entry.DataType,
		Payload:     entry.Payload,
		Source:      entry.Source,
		Cached:      cached,
		LastUpdated: entry.FetchedAt,
	}
}

func hotTierKey(location, industry string, dataType db.MarketDataType) string {
	return fmt.Sprintf("market:%s:%s:%s",
		strings.ToLower(location), strings.ToLower(industry), dataType)
}

// lookupHotTier checks Redis; any failure is treated as a miss.
func (s *MarketService) lookupHotTier(ctx context.Context, location, industry string, dataType db.MarketDataType) *db.MarketCacheEntry {
	if !s.config.RedisHotTier || s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, hotTierKey(location, industry, dataType)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug("Redis hot tier read failed", "error", err)
		}
		return nil
	}
	var entry db.MarketCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil
	}
	if !entry.ExpiresAt.After(s.now()) {
		return nil
	}
	return &entry
}

// storeHotTier mirrors an entry into Redis with the remaining TTL,
// best-effort.
func (s *MarketService) storeHotTier(ctx context.Context, entry *db.MarketCacheEntry) {
	if !s.config.RedisHotTier || s.rdb == nil {
		return
	}
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, hotTierKey(entry.Location, entry.Industry, entry.DataType), raw, ttl).Err(); err != nil {
		s.logger.Debug("Redis hot tier write failed", "error", err)
	}
}

// ========== Static fetcher ==========

// StaticMarketFetcher is a deterministic stand-in for a real data provider.
// The interface is the contract; this implementation exists so the cache
// path works end to end without external credentials.
type StaticMarketFetcher struct{}

func (StaticMarketFetcher) Fetch(ctx context.Context, location, industry string, dataType db.MarketDataType) (*MarketPayload, error) {
	switch dataType {
	case db.MarketDataCompetitors:
		return &MarketPayload{
			Data: db.JSONMap{
				"competitor_density": "moderate",
				"top_categories":     []string{industry},
				"note":               fmt.Sprintf("Competitive snapshot for %s businesses near %s", industry, location),
			},
			Source:         "static",
			RelevanceScore: 0.5,
		}, nil
	case db.MarketDataProperty:
		return &MarketPayload{
			Data: db.JSONMap{
				"commercial_availability": "unknown",
				"note":                    fmt.Sprintf("Property overview for %s", location),
			},
			Source:         "static",
			RelevanceScore: 0.4,
		}, nil
	case db.MarketDataDemographics:
		return &MarketPayload{
			Data: db.JSONMap{
				"note": fmt.Sprintf("Demographic overview for %s", location),
			},
			Source:         "static",
			RelevanceScore: 0.4,
		}, nil
	default:
		return nil, fmt.Errorf("unknown market data type: %s", dataType)
	}
}
