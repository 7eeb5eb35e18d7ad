// Database models for per-user intelligence profiles
package db

import "time"

// UrgencyLevel is the aggregated urgency classification for a user.
type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
)

// ExperienceLevel is derived from how many sessions a user has held.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

// IntelligenceProfile is the durable per-user summary derived from the
// signal history plus the declared business profile. Exactly one row per
// user; every aggregation run recomputes and replaces all derived fields.
type IntelligenceProfile struct {
	UserID string `json:"user_id" gorm:"primaryKey;size:36"`

	// List fields are capped and deduplicated case-insensitively,
	// most recent first.
	TopPainPoints     StringArray `json:"top_pain_points" gorm:"type:json"`
	ServiceFocus      StringArray `json:"service_focus" gorm:"type:json"`
	TargetLocations   StringArray `json:"target_locations" gorm:"type:json"`
	PreferredChannels StringArray `json:"preferred_channels" gorm:"type:json"`

	BudgetRange     string          `json:"budget_range,omitempty" gorm:"size:200"`
	UrgencyLevel    UrgencyLevel    `json:"urgency_level" gorm:"size:10;default:'medium'"`
	ExperienceLevel ExperienceLevel `json:"experience_level" gorm:"size:15;default:'beginner'"`

	ConversationCount int       `json:"conversation_count" gorm:"default:0"`
	LastActiveAt      time.Time `json:"last_active_at"`

	// Scratch payloads for the insight generator: topic counts, signal
	// distribution, recommended next steps. Working data, not the final
	// user-facing insights.
	Insights        JSONMap     `json:"insights,omitempty" gorm:"type:json"`
	Recommendations StringArray `json:"recommendations,omitempty" gorm:"type:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IntelligenceProfile) TableName() string {
	return "intelligence_profiles"
}

// BusinessProfile is the user's declared business information. It is the
// input side of aggregation, never derived.
type BusinessProfile struct {
	UserID        string `json:"user_id" gorm:"primaryKey;size:36"`
	BusinessName  string `json:"business_name,omitempty" gorm:"size:200"`
	Industry      string `json:"industry,omitempty" gorm:"size:100"`
	Location      string `json:"location,omitempty" gorm:"size:200"`
	MarketingGoal string `json:"marketing_goal,omitempty" gorm:"size:500"`
	MonthlyBudget string `json:"monthly_budget,omitempty" gorm:"size:100"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BusinessProfile) TableName() string {
	return "business_profiles"
}

// UpdateBusinessProfileRequest is the declared-profile write payload.
type UpdateBusinessProfileRequest struct {
	BusinessName  *string `json:"business_name,omitempty"`
	Industry      *string `json:"industry,omitempty"`
	Location      *string `json:"location,omitempty"`
	MarketingGoal *string `json:"marketing_goal,omitempty"`
	MonthlyBudget *string `json:"monthly_budget,omitempty"`
}

// InsightStatus persists only the user's dismissed/completed state for a
// generated insight. Insight content itself is never stored.
type InsightStatus struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"user_id" gorm:"index:idx_insight_status_user_insight,unique;size:36;not null"`
	InsightID string    `json:"insight_id" gorm:"index:idx_insight_status_user_insight,unique;size:100;not null"`
	Status    string    `json:"status" gorm:"size:20;not null"` // dismissed, completed
	UpdatedAt time.Time `json:"updated_at"`
}

func (InsightStatus) TableName() string {
	return "insight_statuses"
}

const (
	InsightStatusDismissed = "dismissed"
	InsightStatusCompleted = "completed"
)
