// Package product defines the root aggregate of an ACL scope. Every
// descendant entity (version, feature, sprint, task) inherits its access
// policy from the ACL entries of its ancestor product.
package product

import "time"

// Product is the top of the planning hierarchy and the anchor for access
// control.
type Product struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ACLEntry grants access to a product. Exactly one of UserID or GroupID is
// set. Deleting the product removes its entries.
type ACLEntry struct {
	ID        string    `json:"id" db:"id"`
	ProductID string    `json:"product_id" db:"product_id"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
	GroupID   string    `json:"group_id,omitempty" db:"group_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsUserEntry reports whether the entry targets a single user.
func (e ACLEntry) IsUserEntry() bool { return e.UserID != "" }
