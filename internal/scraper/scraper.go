package scraper

import (
	"context"
	"fmt"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

// Fetcher retrieves the HTML of a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Producer yields the flat list of scraped records for a set of wishlists.
// A failure on any page fails the whole result.
type Producer interface {
	Scrape(ctx context.Context, sources []domain.SourceSpec) ([]domain.ScrapedRecord, error)
}

// DefaultUserAgent is sent by both fetchers unless configured otherwise.
const DefaultUserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; startmebot/1.0; +https://start.me/bot)"

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received http %d for %s", e.Code, e.URL)
}
