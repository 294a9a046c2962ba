package domain

import "habitbuilder/internal/calendar"

// Task is one dated record of a habit or activity. The status field is a
// completion percentage; the intended range is 0..100 but the store accepts
// any integer and only interactive edit paths clamp. CreatedAt is the day
// the task belongs to and is immutable after creation.
type Task struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Category  string        `json:"category"`
	Status    int           `json:"status"`
	CreatedAt calendar.Date `json:"created_at"`
}

// CategoryAverage is the per-category mean status over a date range.
// Categories with no tasks in the range are never emitted.
type CategoryAverage struct {
	Category      string  `json:"category"`
	AverageStatus float64 `json:"averageStatus"`
}

// Event is an append-only log entry recording a store mutation. Mutation
// commands return success or failure and the dashboard re-reads explicitly;
// events exist for operators and the log tail, not for reactive updates.
type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	EntityID int64  `json:"entity_id,omitempty"`
	ActorID  string `json:"actor_id"`
	Payload  string `json:"payload_json"`
}
