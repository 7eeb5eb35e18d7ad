package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/localpulse/localpulse/pkg/db"
)

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) Fetch(ctx context.Context, location, industry string, dataType db.MarketDataType) (*MarketPayload, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &MarketPayload{
		Data:           db.JSONMap{"call": f.calls},
		Source:         "test",
		RelevanceScore: 0.9,
	}, nil
}

func newTestMarketService(t *testing.T) *MarketService {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	svc := NewMarketService(database, nil, DefaultMarketConfig())
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return svc
}

func TestGetOrFetch_MissThenHit(t *testing.T) {
	svc := newTestMarketService(t)
	fetcher := &countingFetcher{}
	ctx := context.Background()

	first, err := svc.GetOrFetch(ctx, "Nanuet", "restaurant", db.MarketDataCompetitors, fetcher)
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if first.Cached {
		t.Error("first lookup should be a miss")
	}

	second, err := svc.GetOrFetch(ctx, "Nanuet", "restaurant", db.MarketDataCompetitors, fetcher)
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if !second.Cached {
		t.Error("second lookup should be a hit")
	}
	if fetcher.calls != 1 {
		t.Errorf("expected 1 fetch, got %d", fetcher.calls)
	}
	if second.LastUpdated.IsZero() {
		t.Error("expected last updated timestamp")
	}
}

func TestGetOrFetch_DistinctKeysDoNotCollide(t *testing.T) {
	svc := newTestMarketService(t)
	fetcher := &countingFetcher{}
	ctx := context.Background()

	if _, err := svc.GetOrFetch(ctx, "Nanuet", "restaurant", db.MarketDataCompetitors, fetcher); err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if _, err := svc.GetOrFetch(ctx, "Nanuet", "restaurant", db.MarketDataDemographics, fetcher); err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if _, err := svc.GetOrFetch(ctx, "Nyack", "restaurant", db.MarketDataCompetitors, fetcher); err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}

	if fetcher.calls != 3 {
		t.Errorf("expected 3 fetches for 3 distinct keys, got %d", fetcher.calls)
	}
}

func TestGetOrFetch_TTLBoundary(t *testing.T) {
	svc := newTestMarketService(t)
	fetcher := &countingFetcher{}
	ctx := context.Background()

	start := time.Now()
	svc.now = func() time.Time { return start }

	if _, err := svc.GetOrFetch(ctx, "Nanuet", "hvac", db.MarketDataCompetitors, fetcher); err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}

	// Just inside the TTL: still a hit.
	svc.now = func() time.Time { return start.Add(svc.config.TTL - time.Second) }
	res, err := svc.GetOrFetch(ctx, "Nanuet", "hvac", db.MarketDataCompetitors, fetcher)
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if !res.Cached || fetcher.calls != 1 {
		t.Errorf("expected hit inside TTL, cached=%v calls=%d", res.Cached, fetcher.calls)
	}

	// Just past the TTL: miss, re-fetch.
	svc.now = func() time.Time { return start.Add(svc.config.TTL + time.Second) }
	res, err = svc.GetOrFetch(ctx, "Nanuet", "hvac", db.MarketDataCompetitors, fetcher)
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if res.Cached || fetcher.calls != 2 {
		t.Errorf("expected miss past TTL, cached=%v calls=%d", res.Cached, fetcher.calls)
	}
}

func TestGetOrFetch_FetchFailureNotCached(t *testing.T) {
	svc := newTestMarketService(t)
	failing := &countingFetcher{err: errors.New("provider down")}
	ctx := context.Background()

	if _, err := svc.GetOrFetch(ctx, "Nanuet", "hvac", db.MarketDataProperty, failing); err == nil {
		t.Fatal("expected fetch error to propagate")
	}

	var count int64
	if err := svc.db.Model(&db.MarketCacheEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected nothing cached after failure, got %d rows", count)
	}

	// Recovery on the next request.
	working := &countingFetcher{}
	res, err := svc.GetOrFetch(ctx, "Nanuet", "hvac", db.MarketDataProperty, working)
	if err != nil {
		t.Fatalf("GetOrFetch failed after recovery: %v", err)
	}
	if res.Cached {
		t.Error("recovered lookup should be a miss")
	}
}

func TestGetOrFetch_ValidatesKey(t *testing.T) {
	svc := newTestMarketService(t)

	if _, err := svc.GetOrFetch(context.Background(), "", "hvac", db.MarketDataCompetitors, StaticMarketFetcher{}); err == nil {
		t.Error("expected error for empty location")
	}
	if _, err := svc.GetOrFetch(context.Background(), "Nanuet", "", db.MarketDataCompetitors, StaticMarketFetcher{}); err == nil {
		t.Error("expected error for empty industry")
	}
}

func TestStaticMarketFetcher_UnknownType(t *testing.T) {
	if _, err := (StaticMarketFetcher{}).Fetch(context.Background(), "Nanuet", "hvac", "astrology"); err == nil {
		t.Error("expected error for unknown data type")
	}
}
