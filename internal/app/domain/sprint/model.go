package sprint

import "time"

// Status is the sprint lifecycle state. Transitions go planned → active →
// completed; no other transitions are accepted.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPlanned:
		return next == StatusActive
	case StatusActive:
		return next == StatusCompleted
	}
	return false
}

// Sprint is a time-boxed iteration on a feature.
type Sprint struct {
	ID        string    `json:"id" db:"id"`
	FeatureID string    `json:"feature_id" db:"feature_id"`
	Name      string    `json:"name" db:"name"`
	StartDate time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate   time.Time `json:"end_date,omitempty" db:"end_date"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
