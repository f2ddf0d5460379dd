package task

import "time"

// Status is the task workflow state. Transitions go open → in_progress →
// done.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusOpen:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusDone
	}
	return false
}

// Task is the smallest unit of work, scheduled into a sprint.
type Task struct {
	ID            string    `json:"id" db:"id"`
	SprintID      string    `json:"sprint_id" db:"sprint_id"`
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description" db:"description"`
	Status        Status    `json:"status" db:"status"`
	AssigneeID    string    `json:"assignee_id,omitempty" db:"assignee_id"`
	EstimateHours float64   `json:"estimate_hours" db:"estimate_hours"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
