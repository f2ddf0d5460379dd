package activity

import "time"

// Origin identifies the entry point that performed an operation.
type Origin string

const (
	OriginREST      Origin = "rest"
	OriginAssistant Origin = "assistant"
	OriginSystem    Origin = "system"
)

// Event is an audit record of a mutation. Events are also fanned out to
// connected activity stream clients.
type Event struct {
	ID         string    `json:"id" db:"id"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	Action     string    `json:"action" db:"action"` // e.g. "create", "update", "delete", "grant"
	EntityKind string    `json:"entity_kind" db:"entity_kind"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	ProductID  string    `json:"product_id,omitempty" db:"product_id"`
	Detail     string    `json:"detail,omitempty" db:"detail"`
	Origin     Origin    `json:"origin" db:"origin"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
