package domain

import "time"

// Product represents a single wishlist item as persisted in the catalog.
type Product struct {
	// ID is the store-assigned identifier.
	ID string `json:"id"`

	// Name as scraped on first observation.
	Name string `json:"name"`

	// Price in minor currency units (cents).
	Price int64 `json:"price"`

	// Quantity is the requested count on the wishlist.
	Quantity int `json:"quantity"`

	// Stars in tenths of a star, 0 if the item has no rating.
	Stars int `json:"stars"`

	// URL links to the product page.
	URL string `json:"url"`

	// ImageURL links to the product thumbnail.
	ImageURL string `json:"url_img"`

	// ItemID is the source site's stable identifier and the natural key of a product.
	ItemID string `json:"item_id"`

	// SourceID references the Source the product was last scraped from.
	SourceID string `json:"source_id"`

	// FirstSeen is nil for legacy records that predate first/last-seen tracking.
	FirstSeen *time.Time `json:"first_seen,omitempty"`

	// LastSeen is the time of the most recent observation.
	LastSeen time.Time `json:"last_seen"`
}

// ProductChange is one changed field of a product, as recorded in the change log.
type ProductChange struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Field     string    `json:"field"`
	Old       string    `json:"old"`
	New       string    `json:"new"`
	ChangedAt time.Time `json:"changed_at"`
}
