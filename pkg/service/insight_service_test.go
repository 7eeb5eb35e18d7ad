package service

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/localpulse/localpulse/pkg/db"
)

func sampleProfile() *db.IntelligenceProfile {
	return &db.IntelligenceProfile{
		UserID:          "u1",
		TopPainPoints:   db.StringArray{"low website traffic", "few repeat customers"},
		TargetLocations: db.StringArray{"Rockland County", "Nanuet", "Nyack"},
		Recommendations: db.StringArray{"Start an SEO audit", "Launch a referral program"},
		UrgencyLevel:    db.UrgencyMedium,
		UpdatedAt:       time.Now().Add(-time.Minute),
	}
}

func TestGenerateInsights_RuleCoverage(t *testing.T) {
	now := time.Now()
	signals := []db.Signal{
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Nanuet", now),
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Nyack", now.Add(-time.Minute)),
		testSignal("u1", "s1", db.SignalTypeBudgetHint, "$500/month", now.Add(-2*time.Minute)),
		testSignal("u1", "s1", db.SignalTypePainPoint, "low website traffic", now.Add(-3*time.Minute)),
	}

	insights := GenerateInsights(sampleProfile(), signals, 0)

	byID := make(map[string]Insight, len(insights))
	for _, ins := range insights {
		byID[ins.ID] = ins
	}

	pain, ok := byID["pain-point-opportunity"]
	if !ok {
		t.Fatal("missing pain point insight")
	}
	if pain.Type != InsightOpportunity || pain.Priority != PriorityHigh || !pain.Actionable {
		t.Errorf("unexpected pain point insight: %+v", pain)
	}

	step1, ok := byID["next-step-1"]
	if !ok || step1.Priority != PriorityHigh {
		t.Errorf("first next step should be high priority: %+v", step1)
	}
	step2, ok := byID["next-step-2"]
	if !ok || step2.Priority != PriorityMedium {
		t.Errorf("second next step should be medium priority: %+v", step2)
	}

	budget, ok := byID["budget-opportunity"]
	if !ok || budget.Actionable {
		t.Errorf("budget insight should be informational: %+v", budget)
	}

	loc, ok := byID["multi-location-campaigns"]
	if !ok || loc.Type != InsightRecommendation || loc.Priority != PriorityMedium {
		t.Errorf("unexpected location insight: %+v", loc)
	}

	if _, ok := byID["urgency-warning"]; ok {
		t.Error("urgency warning should not fire at medium urgency")
	}
}

func TestGenerateInsights_UrgencyWarning(t *testing.T) {
	profile := sampleProfile()
	profile.UrgencyLevel = db.UrgencyHigh

	insights := GenerateInsights(profile, nil, 0)
	found := false
	for _, ins := range insights {
		if ins.ID == "urgency-warning" {
			found = true
			if ins.Type != InsightWarning || ins.Priority != PriorityHigh {
				t.Errorf("unexpected warning: %+v", ins)
			}
		}
	}
	if !found {
		t.Error("expected urgency warning at high urgency")
	}
}

func TestGenerateInsights_Deterministic(t *testing.T) {
	profile := sampleProfile()
	profile.UrgencyLevel = db.UrgencyHigh
	now := time.Now()
	signals := []db.Signal{
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Nanuet", now),
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Nyack", now.Add(-time.Minute)),
		testSignal("u1", "s1", db.SignalTypeBudgetHint, "$500/month", now.Add(-2*time.Minute)),
	}

	first := GenerateInsights(profile, signals, 0)
	second := GenerateInsights(profile, signals, 0)

	var firstIDs, secondIDs []string
	for _, ins := range first {
		firstIDs = append(firstIDs, ins.ID)
	}
	for _, ins := range second {
		secondIDs = append(secondIDs, ins.ID)
	}
	if !reflect.DeepEqual(firstIDs, secondIDs) {
		t.Errorf("generation order diverged: %v vs %v", firstIDs, secondIDs)
	}
}

func TestGenerateInsights_PriorityOrderAndLimit(t *testing.T) {
	profile := sampleProfile()
	profile.UrgencyLevel = db.UrgencyHigh
	now := time.Now()
	signals := []db.Signal{
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Nanuet", now),
		testSignal("u1", "s1", db.SignalTypeLocationMention, "Nyack", now.Add(-time.Minute)),
		testSignal("u1", "s1", db.SignalTypeBudgetHint, "$500/month", now.Add(-2*time.Minute)),
	}

	insights := GenerateInsights(profile, signals, 3)
	if len(insights) != 3 {
		t.Fatalf("expected limit 3, got %d", len(insights))
	}
	for i := 1; i < len(insights); i++ {
		if priorityRank[insights[i].Priority] < priorityRank[insights[i-1].Priority] {
			t.Errorf("insights out of priority order at %d: %v before %v",
				i, insights[i-1].Priority, insights[i].Priority)
		}
	}
}

func TestGenerateInsights_NilProfile(t *testing.T) {
	if got := GenerateInsights(nil, nil, 0); got != nil {
		t.Errorf("expected nil for nil profile, got %v", got)
	}
}

func TestInsightService_SetStatusAndFilter(t *testing.T) {
	agg, store := newTestAggregation(t)
	svc := NewInsightService(store.db, agg, store)
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	ctx := context.Background()

	appendSignals(t, store,
		testSignal("u1", "s1", db.SignalTypePainPoint, "low foot traffic", time.Now()),
	)
	if _, err := agg.Aggregate(ctx, "u1"); err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	insights, err := svc.ListInsights(ctx, "u1", 0, false)
	if err != nil {
		t.Fatalf("ListInsights failed: %v", err)
	}
	if len(insights) == 0 {
		t.Fatal("expected at least one insight")
	}
	target := insights[0].ID

	if err := svc.SetStatus(ctx, "u1", target, db.InsightStatusDismissed); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	after, err := svc.ListInsights(ctx, "u1", 0, false)
	if err != nil {
		t.Fatalf("ListInsights failed: %v", err)
	}
	for _, ins := range after {
		if ins.ID == target {
			t.Errorf("dismissed insight %s still listed", target)
		}
	}

	withDismissed, err := svc.ListInsights(ctx, "u1", 0, true)
	if err != nil {
		t.Fatalf("ListInsights failed: %v", err)
	}
	found := false
	for _, ins := range withDismissed {
		if ins.ID == target && ins.Status == db.InsightStatusDismissed {
			found = true
		}
	}
	if !found {
		t.Errorf("expected dismissed insight %s with status set", target)
	}

	if err := svc.SetStatus(ctx, "u1", target, "archived"); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestInsightService_NoProfileReturnsEmpty(t *testing.T) {
	agg, store := newTestAggregation(t)
	svc := NewInsightService(store.db, agg, store)
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	insights, err := svc.ListInsights(context.Background(), "nobody", 0, false)
	if err != nil {
		t.Fatalf("ListInsights failed: %v", err)
	}
	if len(insights) != 0 {
		t.Errorf("expected empty insights, got %d", len(insights))
	}
}
