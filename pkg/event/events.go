package event

// Event names.
const (
	SignalsExtracted     = "signal.extracted"
	ProfileUpdated       = "profile.updated"
	InsightStatusChanged = "insight.statusChanged"
	MarketRefreshed      = "market.refreshed"
	TaskCreated          = "task.created"
	TaskCompleted        = "task.completed"
)

// SignalsExtractedEvent is emitted after a batch of signals has been
// persisted for a user.
type SignalsExtractedEvent struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
}

func (e SignalsExtractedEvent) EventName() string { return SignalsExtracted }

// ProfileUpdatedEvent is emitted after the intelligence profile has been
// recomputed and written.
type ProfileUpdatedEvent struct {
	UserID string `json:"user_id"`
}

func (e ProfileUpdatedEvent) EventName() string { return ProfileUpdated }

// InsightStatusChangedEvent is emitted when a user dismisses or completes
// an insight.
type InsightStatusChangedEvent struct {
	UserID    string `json:"user_id"`
	InsightID string `json:"insight_id"`
	Status    string `json:"status"`
}

func (e InsightStatusChangedEvent) EventName() string { return InsightStatusChanged }

// MarketRefreshedEvent is emitted after a cache miss caused a fresh
// external market fetch to be stored.
type MarketRefreshedEvent struct {
	Location string `json:"location"`
	Industry string `json:"industry"`
	DataType string `json:"data_type"`
}

func (e MarketRefreshedEvent) EventName() string { return MarketRefreshed }

// TaskCreatedEvent is emitted when a background task is enqueued.
type TaskCreatedEvent struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
}

func (e TaskCreatedEvent) EventName() string { return TaskCreated }

// TaskCompletedEvent is emitted when a background task finishes,
// successfully or not.
type TaskCompletedEvent struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (e TaskCompletedEvent) EventName() string { return TaskCompleted }
