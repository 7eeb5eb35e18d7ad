// Insight generation: derives the ranked, user-facing insight list from an
// intelligence profile plus recent signals.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/event"
	"github.com/localpulse/localpulse/pkg/utils"
)

// DefaultInsightLimit bounds the number of insights returned per generation.
const DefaultInsightLimit = 6

// InsightType classifies a generated insight.
type InsightType string

const (
	InsightOpportunity    InsightType = "opportunity"
	InsightWarning        InsightType = "warning"
	InsightSuccess        InsightType = "success"
	InsightRecommendation InsightType = "recommendation"
)

// InsightPriority orders insights for display.
type InsightPriority string

const (
	PriorityHigh   InsightPriority = "high"
	PriorityMedium InsightPriority = "medium"
	PriorityLow    InsightPriority = "low"
)

var priorityRank = map[InsightPriority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// Insight is a surfaced recommendation. Insights are regenerated on every
// read, never accumulated; only the user's dismissed/completed status is
// persisted, keyed by the insight's deterministic rule-based ID.
type Insight struct {
	ID          string          `json:"id"`
	Type        InsightType     `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    InsightPriority `json:"priority"`
	Actionable  bool            `json:"actionable"`
	CreatedAt   time.Time       `json:"created_at"`
	Provenance  []string        `json:"provenance,omitempty"`
	Status      string          `json:"status,omitempty"`

	// recency of the underlying signal or profile update, used for ordering
	basedOn time.Time
}

// GenerateInsights is a pure function of its inputs: the same profile and
// signal snapshot produce the same insights in the same order. Signals are
// expected newest first.
func GenerateInsights(profile *db.IntelligenceProfile, recentSignals []db.Signal, limit int) []Insight {
	if profile == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultInsightLimit
	}

	now := time.Now()
	var insights []Insight

	// Rule: surface the top pain point as an opportunity.
	if len(profile.TopPainPoints) > 0 {
		top := profile.TopPainPoints[0]
		insights = append(insights, Insight{
			ID:          "pain-point-opportunity",
			Type:        InsightOpportunity,
			Title:       fmt.Sprintf("Address your biggest challenge: %s", top),
			Description: fmt.Sprintf("You've mentioned %q as a pain point. A targeted campaign can turn this around.", top),
			Priority:    PriorityHigh,
			Actionable:  true,
			CreatedAt:   now,
			Provenance:  []string{"top_pain_points"},
			basedOn:     signalRecency(recentSignals, db.SignalTypePainPoint, profile.UpdatedAt),
		})
	}

	// Rule: up to two recommended next steps; the first is high priority.
	for i, rec := range profile.Recommendations {
		if i >= 2 {
			break
		}
		priority := PriorityHigh
		if i > 0 {
			priority = PriorityMedium
		}
		insights = append(insights, Insight{
			ID:          fmt.Sprintf("next-step-%d", i+1),
			Type:        InsightRecommendation,
			Title:       "Recommended next step",
			Description: rec,
			Priority:    priority,
			Actionable:  true,
			CreatedAt:   now,
			Provenance:  []string{"recommendations"},
			basedOn:     profile.UpdatedAt,
		})
	}

	// Rule: high urgency gets a warning.
	if profile.UrgencyLevel == db.UrgencyHigh {
		insights = append(insights, Insight{
			ID:          "urgency-warning",
			Type:        InsightWarning,
			Title:       "Time-sensitive goals detected",
			Description: "Your recent conversations suggest tight timing. Prioritize quick-win channels before longer plays.",
			Priority:    PriorityHigh,
			Actionable:  true,
			CreatedAt:   now,
			Provenance:  []string{"urgency_level"},
			basedOn:     signalRecency(recentSignals, db.SignalTypeUrgency, profile.UpdatedAt),
		})
	}

	// Rule: a recent budget hint is informational.
	if hasSignalType(recentSignals, db.SignalTypeBudgetHint) {
		insights = append(insights, Insight{
			ID:          "budget-opportunity",
			Type:        InsightOpportunity,
			Title:       "Budget signals captured",
			Description: fmt.Sprintf("Your budget range looks like %s. Plans in this range typically mix one paid and one organic channel.", budgetLabel(profile)),
			Priority:    PriorityMedium,
			Actionable:  false,
			CreatedAt:   now,
			Provenance:  []string{"budget_range"},
			basedOn:     signalRecency(recentSignals, db.SignalTypeBudgetHint, profile.UpdatedAt),
		})
	}

	// Rule: multiple mentioned locations suggest geo-targeted campaigns.
	if countDistinctLocations(recentSignals) > 1 {
		insights = append(insights, Insight{
			ID:          "multi-location-campaigns",
			Type:        InsightRecommendation,
			Title:       "Run location-specific campaigns",
			Description: fmt.Sprintf("You operate across %s. Separate campaigns per area usually outperform one generic campaign.", strings.Join(profile.TargetLocations, ", ")),
			Priority:    PriorityMedium,
			Actionable:  true,
			CreatedAt:   now,
			Provenance:  []string{"target_locations"},
			basedOn:     signalRecency(recentSignals, db.SignalTypeLocationMention, profile.UpdatedAt),
		})
	}

	// Priority first, then recency of the underlying data, newest first.
	sort.SliceStable(insights, func(i, j int) bool {
		ri, rj := priorityRank[insights[i].Priority], priorityRank[insights[j].Priority]
		if ri != rj {
			return ri < rj
		}
		return insights[i].basedOn.After(insights[j].basedOn)
	})

	if len(insights) > limit {
		insights = insights[:limit]
	}
	return insights
}

// signalRecency returns the newest ExtractedAt among signals of the given
// type, falling back when none exist.
func signalRecency(signals []db.Signal, typ db.SignalType, fallback time.Time) time.Time {
	for _, sig := range signals {
		if sig.Type == typ {
			return sig.ExtractedAt
		}
	}
	return fallback
}

func hasSignalType(signals []db.Signal, typ db.SignalType) bool {
	for _, sig := range signals {
		if sig.Type == typ {
			return true
		}
	}
	return false
}

func countDistinctLocations(signals []db.Signal) int {
	seen := make(map[string]struct{})
	for _, sig := range signals {
		if sig.Type != db.SignalTypeLocationMention {
			continue
		}
		seen[strings.ToLower(strings.TrimSpace(sig.Value))] = struct{}{}
	}
	return len(seen)
}

func budgetLabel(profile *db.IntelligenceProfile) string {
	if profile.BudgetRange != "" {
		return profile.BudgetRange
	}
	return "still taking shape"
}

// ========== Service ==========

// InsightService joins generated insights with the user's persisted
// dismissed/completed statuses.
type InsightService struct {
	db          *gorm.DB
	aggregation *AggregationService
	store       *SignalStoreService
	logger      *slog.Logger
}

// NewInsightService creates a new insight service
func NewInsightService(database *gorm.DB, aggregation *AggregationService, store *SignalStoreService) *InsightService {
	return &InsightService{
		db:          database,
		aggregation: aggregation,
		store:       store,
		logger:      utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *InsightService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.InsightStatus{})
}

// ListInsights generates the current insight set for a user and annotates
// it with persisted statuses. Dismissed insights are filtered out unless
// includeDismissed is set.
func (s *InsightService) ListInsights(ctx context.Context, userID string, limit int, includeDismissed bool) ([]Insight, error) {
	profile, err := s.aggregation.GetProfile(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return []Insight{}, nil
		}
		return nil, err
	}

	signals, err := s.store.ListByUser(ctx, userID, DefaultAggregationConfig().SignalWindow)
	if err != nil {
		return nil, err
	}

	insights := GenerateInsights(profile, signals, limit)

	var statuses []db.InsightStatus
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&statuses).Error; err != nil {
		return nil, err
	}
	statusByID := make(map[string]string, len(statuses))
	for _, st := range statuses {
		statusByID[st.InsightID] = st.Status
	}

	out := insights[:0]
	for _, ins := range insights {
		ins.Status = statusByID[ins.ID]
		if !includeDismissed && ins.Status == db.InsightStatusDismissed {
			continue
		}
		out = append(out, ins)
	}
	return out, nil
}

// SetStatus records the user's dismissed/completed state for an insight.
func (s *InsightService) SetStatus(ctx context.Context, userID, insightID, status string) error {
	if status != db.InsightStatusDismissed && status != db.InsightStatusCompleted {
		return fmt.Errorf("invalid insight status: %s", status)
	}

	record := db.InsightStatus{
		ID:        uuid.New().String(),
		UserID:    userID,
		InsightID: insightID,
		Status:    status,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "insight_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return err
	}

	event.Emit(event.InsightStatusChangedEvent{UserID: userID, InsightID: insightID, Status: status})
	return nil
}
