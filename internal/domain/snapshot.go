package domain

import "time"

// Snapshot is the state of the wishlist at one point in time.
type Snapshot struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Value is the sum of price * quantity over all scraped entries, in minor units.
	Value int64 `json:"value"`

	// ProductIDs keeps the scraped order; a product may appear more than once.
	ProductIDs []string `json:"product_ids"`
}
