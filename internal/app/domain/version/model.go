package version

import "time"

// Version is a planned release of a product.
type Version struct {
	ID          string    `json:"id" db:"id"`
	ProductID   string    `json:"product_id" db:"product_id"`
	Name        string    `json:"name" db:"name"`
	ReleaseDate time.Time `json:"release_date,omitempty" db:"release_date"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
