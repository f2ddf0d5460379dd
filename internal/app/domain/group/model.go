package group

import "time"

// Group is a named set of users. ACL entries may target a group instead of a
// single user; membership then confers access transitively.
type Group struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	// MemberIDs is populated on reads; persisted through the membership
	// join table, not as a column.
	MemberIDs []string `json:"member_ids,omitempty" db:"-"`
}
