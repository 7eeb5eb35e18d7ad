// Pattern aggregation: recomputes the per-user intelligence profile from
// the signal history plus the declared business profile.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/event"
	"github.com/localpulse/localpulse/pkg/utils"
)

// AggregationConfig holds configuration for pattern aggregation
type AggregationConfig struct {
	SignalWindow         int `yaml:"signal_window"`         // Signals per run, newest first
	ListFieldCap         int `yaml:"list_field_cap"`        // Max entries per list-valued profile field
	AdvancedSessions     int `yaml:"advanced_sessions"`     // Session count above which a user is advanced
	IntermediateSessions int `yaml:"intermediate_sessions"` // Session count above which a user is intermediate
}

// DefaultAggregationConfig returns default configuration
func DefaultAggregationConfig() *AggregationConfig {
	return &AggregationConfig{
		SignalWindow:         100,
		ListFieldCap:         5,
		AdvancedSessions:     15,
		IntermediateSessions: 5,
	}
}

// Lexical urgency cues. High cues are checked before low cues; a transcript
// containing both resolves to high.
var (
	highUrgencyCues = []string{"asap", "urgent", "immediately", "right away", "right now"}
	lowUrgencyCues  = []string{"eventually", "someday", "no rush", "down the road"}
)

// channelCues maps marketing-channel keywords to the canonical channel name
// recorded in the profile.
var channelCues = []struct {
	cue     string
	channel string
}{
	{"social media", "social_media"},
	{"instagram", "social_media"},
	{"facebook", "social_media"},
	{"tiktok", "social_media"},
	{"email", "email"},
	{"newsletter", "email"},
	{"seo", "seo"},
	{"search engine", "seo"},
	{"google ads", "paid_search"},
	{"ppc", "paid_search"},
	{"paid search", "paid_search"},
	{"flyer", "local_print"},
	{"direct mail", "local_print"},
	{"referral", "referrals"},
	{"word of mouth", "referrals"},
}

// AggregationService recomputes the intelligence profile for a user. Every
// run is a full recompute over the signal window; nothing is patched
// incrementally, so re-running with the same inputs converges to the same
// profile.
type AggregationService struct {
	db     *gorm.DB
	store  *SignalStoreService
	config *AggregationConfig
	logger *slog.Logger
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(database *gorm.DB, store *SignalStoreService, config *AggregationConfig) *AggregationService {
	if config == nil {
		config = DefaultAggregationConfig()
	}
	return &AggregationService{
		db:     database,
		store:  store,
		config: config,
		logger: utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *AggregationService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.IntelligenceProfile{}, &db.BusinessProfile{})
}

// Aggregate recomputes and upserts the user's intelligence profile. Any read
// failure aborts the run before anything is written, leaving the prior
// profile intact.
func (s *AggregationService) Aggregate(ctx context.Context, userID string) (*db.IntelligenceProfile, error) {
	signals, err := s.store.ListByUser(ctx, userID, s.config.SignalWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to read signals: %w", err)
	}

	business, err := s.loadBusinessProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read business profile: %w", err)
	}

	sessionCount, err := s.store.CountSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	profile := s.buildProfile(userID, signals, business, sessionCount)

	// Single-row upsert keyed by user id; replaces all derived fields.
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(profile).Error; err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}

	event.Emit(event.ProfileUpdatedEvent{UserID: userID})

	s.logger.Info("Profile aggregation completed",
		"userID", userID,
		"signalCount", len(signals),
		"sessionCount", sessionCount)

	return profile, nil
}

// GetProfile returns the stored intelligence profile for a user.
func (s *AggregationService) GetProfile(ctx context.Context, userID string) (*db.IntelligenceProfile, error) {
	var profile db.IntelligenceProfile
	if err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetBusinessProfile returns the declared business profile for a user.
func (s *AggregationService) GetBusinessProfile(ctx context.Context, userID string) (*db.BusinessProfile, error) {
	var business db.BusinessProfile
	if err := s.db.WithContext(ctx).First(&business, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

// UpdateBusinessProfile applies a partial update to the declared business
// profile, creating it on first write.
func (s *AggregationService) UpdateBusinessProfile(ctx context.Context, userID string, req *db.UpdateBusinessProfileRequest) (*db.BusinessProfile, error) {
	var business db.BusinessProfile
	err := s.db.WithContext(ctx).First(&business, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		business = db.BusinessProfile{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	if req.BusinessName != nil {
		business.BusinessName = *req.BusinessName
	}
	if req.Industry != nil {
		business.Industry = *req.Industry
	}
	if req.Location != nil {
		business.Location = *req.Location
	}
	if req.MarketingGoal != nil {
		business.MarketingGoal = *req.MarketingGoal
	}
	if req.MonthlyBudget != nil {
		business.MonthlyBudget = *req.MonthlyBudget
	}

	if err := s.db.WithContext(ctx).Save(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func (s *AggregationService) loadBusinessProfile(ctx context.Context, userID string) (*db.BusinessProfile, error) {
	var business db.BusinessProfile
	err := s.db.WithContext(ctx).First(&business, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No declared profile yet; aggregation proceeds from signals alone.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &business, nil
}

// buildProfile is the deterministic core of a run: signals are expected
// newest first, and the output depends only on its arguments.
func (s *AggregationService) buildProfile(userID string, signals []db.Signal, business *db.BusinessProfile, sessionCount int) *db.IntelligenceProfile {
	byType := partitionByType(signals)
	fieldCap := s.config.ListFieldCap

	profile := &db.IntelligenceProfile{
		UserID:            userID,
		TopPainPoints:     dedupeValues(byType[db.SignalTypePainPoint], fieldCap),
		ServiceFocus:      dedupeValues(byType[db.SignalTypeServiceInterest], fieldCap),
		PreferredChannels: deriveChannels(byType[db.SignalTypeServiceInterest], fieldCap),
		UrgencyLevel:      classifyUrgency(byType[db.SignalTypeUrgency]),
		ExperienceLevel:   s.classifyExperience(sessionCount),
		ConversationCount: sessionCount,
		LastActiveAt:      lastActiveAt(signals),
	}

	declaredLocation := ""
	if business != nil {
		declaredLocation = business.Location
	}
	profile.TargetLocations = mergeLocations(declaredLocation, byType[db.SignalTypeLocationMention], fieldCap)
	profile.BudgetRange = resolveBudget(byType[db.SignalTypeBudgetHint], business)
	profile.Insights = buildScratchInsights(signals, byType)
	profile.Recommendations = buildRecommendations(profile, business)

	return profile
}

// partitionByType groups signals by type, preserving input order.
func partitionByType(signals []db.Signal) map[db.SignalType][]db.Signal {
	byType := make(map[db.SignalType][]db.Signal)
	for _, sig := range signals {
		byType[sig.Type] = append(byType[sig.Type], sig)
	}
	return byType
}

// dedupeValues projects signal values, deduplicates case-insensitively
// preserving most-recent-first order, and truncates to limit.
func dedupeValues(signals []db.Signal, limit int) []string {
	seen := make(map[string]struct{})
	var values []string
	for _, sig := range signals {
		v := strings.TrimSpace(sig.Value)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		values = append(values, v)
		if limit > 0 && len(values) >= limit {
			break
		}
	}
	return values
}

// mergeLocations puts the declared business location first, then novel
// mentioned locations in most-recent-first order.
func mergeLocations(declared string, mentions []db.Signal, limit int) []string {
	seen := make(map[string]struct{})
	var locations []string

	declared = strings.TrimSpace(declared)
	if declared != "" {
		seen[strings.ToLower(declared)] = struct{}{}
		locations = append(locations, declared)
	}

	for _, sig := range mentions {
		v := strings.TrimSpace(sig.Value)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		locations = append(locations, v)
		if limit > 0 && len(locations) >= limit {
			break
		}
	}
	return locations
}

// classifyUrgency scans the concatenated urgency-signal text for lexical
// cues. High cues win over low cues; no cue means medium.
func classifyUrgency(signals []db.Signal) db.UrgencyLevel {
	if len(signals) == 0 {
		return db.UrgencyMedium
	}

	var sb strings.Builder
	for _, sig := range signals {
		sb.WriteString(sig.Value)
		sb.WriteString(" ")
		sb.WriteString(sig.Context)
		sb.WriteString(" ")
	}
	text := strings.ToLower(sb.String())

	for _, cue := range highUrgencyCues {
		if strings.Contains(text, cue) {
			return db.UrgencyHigh
		}
	}
	for _, cue := range lowUrgencyCues {
		if strings.Contains(text, cue) {
			return db.UrgencyLow
		}
	}
	return db.UrgencyMedium
}

func (s *AggregationService) classifyExperience(sessionCount int) db.ExperienceLevel {
	switch {
	case sessionCount > s.config.AdvancedSessions:
		return db.ExperienceAdvanced
	case sessionCount > s.config.IntermediateSessions:
		return db.ExperienceIntermediate
	default:
		return db.ExperienceBeginner
	}
}

// deriveChannels maps service-interest text onto canonical marketing
// channels, first mention wins.
func deriveChannels(signals []db.Signal, limit int) []string {
	seen := make(map[string]struct{})
	var channels []string
	for _, sig := range signals {
		text := strings.ToLower(sig.Value)
		for _, c := range channelCues {
			if !strings.Contains(text, c.cue) {
				continue
			}
			if _, ok := seen[c.channel]; ok {
				continue
			}
			seen[c.channel] = struct{}{}
			channels = append(channels, c.channel)
			if limit > 0 && len(channels) >= limit {
				return channels
			}
		}
	}
	return channels
}

// resolveBudget prefers the most recent budget hint, falling back to the
// declared monthly budget.
func resolveBudget(hints []db.Signal, business *db.BusinessProfile) string {
	for _, sig := range hints {
		if v := strings.TrimSpace(sig.Value); v != "" {
			return v
		}
	}
	if business != nil {
		return business.MonthlyBudget
	}
	return ""
}

// lastActiveAt is the newest signal's extraction time. With no signals it
// stays zero so repeated runs over the same empty window write the same row.
func lastActiveAt(signals []db.Signal) time.Time {
	if len(signals) > 0 {
		return signals[0].ExtractedAt
	}
	return time.Time{}
}

// buildScratchInsights summarizes the signal window for the insight
// generator: type distribution and most-discussed values.
func buildScratchInsights(signals []db.Signal, byType map[db.SignalType][]db.Signal) db.JSONMap {
	distribution := make(map[string]interface{}, len(byType))
	for typ, sigs := range byType {
		distribution[string(typ)] = len(sigs)
	}

	// Count repeated values across pain points and interests; a value the
	// user keeps coming back to is what they care about most.
	counts := make(map[string]int)
	canonical := make(map[string]string)
	for _, typ := range []db.SignalType{db.SignalTypePainPoint, db.SignalTypeServiceInterest} {
		for _, sig := range byType[typ] {
			key := strings.ToLower(strings.TrimSpace(sig.Value))
			if key == "" {
				continue
			}
			counts[key]++
			if _, ok := canonical[key]; !ok {
				canonical[key] = strings.TrimSpace(sig.Value)
			}
		}
	}
	var mostDiscussed string
	best := 0
	for key, n := range counts {
		if n > best || (n == best && canonical[key] < mostDiscussed) {
			best = n
			mostDiscussed = canonical[key]
		}
	}

	scratch := db.JSONMap{
		"signal_count":             len(signals),
		"signal_type_distribution": distribution,
	}
	if mostDiscussed != "" {
		scratch["most_discussed"] = mostDiscussed
	}
	return scratch
}

// buildRecommendations derives up to three next-step strings from the
// freshly computed profile. Deterministic given the same profile.
func buildRecommendations(profile *db.IntelligenceProfile, business *db.BusinessProfile) []string {
	var recs []string

	if len(profile.ServiceFocus) > 0 {
		target := "your area"
		if len(profile.TargetLocations) > 0 {
			target = profile.TargetLocations[0]
		}
		recs = append(recs, fmt.Sprintf("Start a %s campaign targeting %s", profile.ServiceFocus[0], target))
	}
	if profile.BudgetRange == "" {
		recs = append(recs, "Set a monthly marketing budget to unlock spend guidance")
	}
	if business == nil || business.MarketingGoal == "" {
		recs = append(recs, "Define a primary marketing goal for your business")
	}
	if len(recs) > 3 {
		recs = recs[:3]
	}
	return recs
}
