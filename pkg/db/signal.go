// Database models for conversation signals
package db

import "time"

// SignalType classifies an atomic fact inferred from conversation.
type SignalType string

const (
	SignalTypePainPoint         SignalType = "pain_point"
	SignalTypeServiceInterest   SignalType = "service_interest"
	SignalTypeLocationMention   SignalType = "location_mention"
	SignalTypeBudgetHint        SignalType = "budget_hint"
	SignalTypeCompetitorMention SignalType = "competitor_mention"
	SignalTypeSeasonalPattern   SignalType = "seasonal_pattern"
	SignalTypeUrgency           SignalType = "urgency"
)

// KnownSignalTypes lists every valid signal type.
var KnownSignalTypes = map[SignalType]struct{}{
	SignalTypePainPoint:         {},
	SignalTypeServiceInterest:   {},
	SignalTypeLocationMention:   {},
	SignalTypeBudgetHint:        {},
	SignalTypeCompetitorMention: {},
	SignalTypeSeasonalPattern:   {},
	SignalTypeUrgency:           {},
}

// Signal is an immutable, typed fact extracted from a conversation.
// Corrections are expressed as new signals, never as edits; the store
// exposes no update or delete path.
type Signal struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	UserID    string     `json:"user_id" gorm:"index:idx_signal_user_extracted;size:36;not null"`
	SessionID string     `json:"session_id" gorm:"index;size:36;not null"`
	Type      SignalType `json:"type" gorm:"index;size:30;not null"`

	// Value is free text or a small structured payload rendered as text.
	Value      string  `json:"value" gorm:"type:text;not null"`
	Confidence float64 `json:"confidence" gorm:"default:0.85"`

	// Context is a short transcript excerpt supporting the signal.
	Context string `json:"context,omitempty" gorm:"type:text"`

	ExtractedAt time.Time `json:"extracted_at" gorm:"index:idx_signal_user_extracted"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Signal) TableName() string {
	return "signals"
}

// ChatSession records one conversation session per (user, session) pair.
// The aggregator derives experience level from the per-user session count.
type ChatSession struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	UserID        string    `json:"user_id" gorm:"index;size:36;not null"`
	MessageCount  int       `json:"message_count" gorm:"default:0"`
	StartedAt     time.Time `json:"started_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ========== Request/Response Types ==========

// ConversationTurn is one turn of a transcript submitted for extraction.
type ConversationTurn struct {
	Role string `json:"role" binding:"required"`
	Text string `json:"text" binding:"required"`
}
