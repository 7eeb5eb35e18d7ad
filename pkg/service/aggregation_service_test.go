package service

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/localpulse/localpulse/pkg/db"
)

func newTestAggregation(t *testing.T) (*AggregationService, *SignalStoreService) {
	t.Helper()
	store := newTestSignalStore(t)
	agg := NewAggregationService(store.db, store, DefaultAggregationConfig())
	if err := agg.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return agg, store
}

func appendSignals(t *testing.T, store *SignalStoreService, signals ...db.Signal) {
	t.Helper()
	result, err := store.Append(context.Background(), signals)
	if err != nil || len(result.Failed) > 0 {
		t.Fatalf("failed to append signals: %v (%d failed)", err, len(result.Failed))
	}
}

func TestAggregate_Scenario(t *testing.T) {
	agg, store := newTestAggregation(t)
	ctx := context.Background()

	if err := store.db.Create(&db.BusinessProfile{
		UserID:   "u1",
		Location: "Rockland County",
	}).Error; err != nil {
		t.Fatalf("failed to create business profile: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	appendSignals(t, store,
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Nanuet", base.Add(2*time.Minute)),
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Nyack", base.Add(time.Minute)),
		testSignal("u1", "s1", db.SignalTypePainPoint, "low website traffic", base),
	)

	profile, err := agg.Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	wantLocations := []string{"Rockland County", "Nanuet", "Nyack"}
	if !reflect.DeepEqual([]string(profile.TargetLocations), wantLocations) {
		t.Errorf("target locations = %v, want %v", profile.TargetLocations, wantLocations)
	}
	if len(profile.TopPainPoints) != 1 || profile.TopPainPoints[0] != "low website traffic" {
		t.Errorf("top pain points = %v", profile.TopPainPoints)
	}
	if profile.UrgencyLevel != db.UrgencyMedium {
		t.Errorf("urgency = %v, want medium", profile.UrgencyLevel)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	agg, store := newTestAggregation(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	appendSignals(t, store,
		testSignal("u1", "s1", db.SignalTypePainPoint, "no repeat customers", base),
		testSignal("u1", "s1", db.SignalTypeServiceInterest, "email marketing", base.Add(time.Minute)),
	)

	first, err := agg.Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("first Aggregate failed: %v", err)
	}
	second, err := agg.Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("second Aggregate failed: %v", err)
	}

	if !reflect.DeepEqual(first.TopPainPoints, second.TopPainPoints) ||
		!reflect.DeepEqual(first.ServiceFocus, second.ServiceFocus) ||
		!reflect.DeepEqual(first.TargetLocations, second.TargetLocations) ||
		first.UrgencyLevel != second.UrgencyLevel ||
		first.ExperienceLevel != second.ExperienceLevel ||
		first.BudgetRange != second.BudgetRange {
		t.Errorf("re-run diverged: first=%+v second=%+v", first, second)
	}

	var count int64
	if err := store.db.Model(&db.IntelligenceProfile{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one profile row, got %d", count)
	}
}

func TestAggregate_NoSignalsIdempotent(t *testing.T) {
	agg, _ := newTestAggregation(t)
	ctx := context.Background()

	first, err := agg.Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("first Aggregate failed: %v", err)
	}
	second, err := agg.Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("second Aggregate failed: %v", err)
	}

	if !first.LastActiveAt.IsZero() {
		t.Errorf("expected zero LastActiveAt without signals, got %v", first.LastActiveAt)
	}
	if !first.LastActiveAt.Equal(second.LastActiveAt) {
		t.Errorf("LastActiveAt diverged across identical runs: %v vs %v",
			first.LastActiveAt, second.LastActiveAt)
	}
}

func TestDedupeValues_CaseInsensitiveWithCap(t *testing.T) {
	base := time.Now()
	var signals []db.Signal
	for i, v := range []string{"HVAC", "hvac", "Plumbing", "plumbing", "Roofing", "Siding", "Gutters", "Decks", "Windows"} {
		signals = append(signals, testSignal("u1", "s1", db.SignalTypeServiceInterest, v, base.Add(-time.Duration(i)*time.Minute)))
	}

	got := dedupeValues(signals, 5)
	want := []string{"HVAC", "Plumbing", "Roofing", "Siding", "Gutters"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dedupeValues() = %v, want %v", got, want)
	}
}

func TestClassifyUrgency(t *testing.T) {
	mk := func(values ...string) []db.Signal {
		var signals []db.Signal
		for _, v := range values {
			signals = append(signals, db.Signal{Type: db.SignalTypeUrgency, Value: v})
		}
		return signals
	}

	tests := []struct {
		name    string
		signals []db.Signal
		want    db.UrgencyLevel
	}{
		{"no signals", nil, db.UrgencyMedium},
		{"high cue", mk("need this ASAP"), db.UrgencyHigh},
		{"low cue", mk("maybe someday"), db.UrgencyLow},
		{"no cue defaults medium", mk("thinking about a campaign"), db.UrgencyMedium},
		{"high wins over low", mk("eventually, but the website fix is urgent"), db.UrgencyHigh},
		{"mixed across signals", mk("someday", "immediately"), db.UrgencyHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyUrgency(tt.signals); got != tt.want {
				t.Errorf("classifyUrgency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyExperience(t *testing.T) {
	agg := NewAggregationService(nil, nil, DefaultAggregationConfig())

	tests := []struct {
		sessions int
		want     db.ExperienceLevel
	}{
		{0, db.ExperienceBeginner},
		{5, db.ExperienceBeginner},
		{6, db.ExperienceIntermediate},
		{15, db.ExperienceIntermediate},
		{16, db.ExperienceAdvanced},
	}

	for _, tt := range tests {
		if got := agg.classifyExperience(tt.sessions); got != tt.want {
			t.Errorf("classifyExperience(%d) = %v, want %v", tt.sessions, got, tt.want)
		}
	}
}

func TestAggregate_ExperienceFromSessions(t *testing.T) {
	agg, store := newTestAggregation(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := store.TouchSession(ctx, "u1", fmt.Sprintf("s%d", i), 2); err != nil {
			t.Fatalf("TouchSession failed: %v", err)
		}
	}

	profile, err := agg.Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if profile.ExperienceLevel != db.ExperienceIntermediate {
		t.Errorf("experience = %v, want intermediate", profile.ExperienceLevel)
	}
	if profile.ConversationCount != 7 {
		t.Errorf("conversation count = %d, want 7", profile.ConversationCount)
	}
}

func TestAggregate_BudgetPrefersRecentHint(t *testing.T) {
	agg, store := newTestAggregation(t)
	ctx := context.Background()

	if err := store.db.Create(&db.BusinessProfile{UserID: "u1", MonthlyBudget: "$200/month"}).Error; err != nil {
		t.Fatalf("failed to create business profile: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	appendSignals(t, store,
		testSignal("u1", "s1", db.SignalTypeBudgetHint, "$300-500/month", base),
		testSignal("u1", "s2", db.SignalTypeBudgetHint, "around $800/month", base.Add(time.Minute)),
	)

	profile, err := agg.Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if profile.BudgetRange != "around $800/month" {
		t.Errorf("budget range = %q, want most recent hint", profile.BudgetRange)
	}
}

func TestAggregate_NoBusinessProfile(t *testing.T) {
	agg, store := newTestAggregation(t)
	ctx := context.Background()

	appendSignals(t, store,
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Pearl River", time.Now()),
	)

	profile, err := agg.Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	want := []string{"Pearl River"}
	if !reflect.DeepEqual([]string(profile.TargetLocations), want) {
		t.Errorf("target locations = %v, want %v", profile.TargetLocations, want)
	}
}

func TestDeriveChannels(t *testing.T) {
	signals := []db.Signal{
		{Type: db.SignalTypeServiceInterest, Value: "wants to try Instagram and Facebook ads"},
		{Type: db.SignalTypeServiceInterest, Value: "asked about SEO for the new site"},
		{Type: db.SignalTypeServiceInterest, Value: "general branding help"},
	}

	got := deriveChannels(signals, 5)
	want := []string{"social_media", "seo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("deriveChannels() = %v, want %v", got, want)
	}
}
