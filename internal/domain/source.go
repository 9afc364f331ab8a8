package domain

// Source represents a wishlist origin, e.g. one named wishlist page.
type Source struct {
	// ID is the store-assigned identifier.
	ID string `json:"id"`

	// Name is the unique key of the source, taken from configuration.
	Name string `json:"name"`

	// URL is the page the source was first scraped from.
	URL string `json:"url"`
}

// SourceSpec is a configured (name, url) pair to scrape.
type SourceSpec struct {
	Name string
	URL  string
}
