package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

const maxPages = 100

// WishlistScraper walks paginated wishlists through a Fetcher.
type WishlistScraper struct {
	fetcher    Fetcher
	tries      int
	retryDelay time.Duration
	log        logrus.FieldLogger
}

// NewWishlistScraper creates a scraper that tries each page up to tries times.
func NewWishlistScraper(fetcher Fetcher, tries int, retryDelay time.Duration, logger logrus.FieldLogger) *WishlistScraper {
	if tries < 1 {
		tries = 1
	}
	return &WishlistScraper{
		fetcher:    fetcher,
		tries:      tries,
		retryDelay: retryDelay,
		log:        logger.WithField("component", "scraper"),
	}
}

// Scrape returns the records of all sources in order. If any wishlist yields
// nothing, the whole result is empty.
func (s *WishlistScraper) Scrape(ctx context.Context, sources []domain.SourceSpec) ([]domain.ScrapedRecord, error) {
	if len(sources) == 0 {
		s.log.Error("Received no wishlist sources for scraping")
		return nil, errors.New("no wishlist sources configured")
	}
	var records []domain.ScrapedRecord
	for _, src := range sources {
		recs, err := s.ScrapeWishlist(ctx, src)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("wishlist %q yielded no products", src.Name)
		}
		records = append(records, recs...)
	}
	return records, nil
}

// ScrapeWishlist follows the "see more" links of one wishlist until the last page.
func (s *WishlistScraper) ScrapeWishlist(ctx context.Context, src domain.SourceSpec) ([]domain.ScrapedRecord, error) {
	log := s.log.WithField("wishlist", src.Name)
	log.Info("Scraping wishlist")

	var records []domain.ScrapedRecord
	visited := map[string]bool{}
	next := src.URL
	for page := 1; next != ""; page++ {
		if page > maxPages {
			return nil, fmt.Errorf("wishlist %q exceeds %d pages", src.Name, maxPages)
		}
		if visited[next] {
			log.WithField("url", next).Warn("Pagination loops back to a visited page, stopping")
			break
		}
		visited[next] = true

		html, err := s.fetch(ctx, next)
		if err != nil {
			log.WithError(err).WithField("url", next).Error("Couldn't retrieve wishlist page")
			return nil, err
		}
		parsed, err := ParseWishlistPage(next, strings.NewReader(html))
		if err != nil {
			log.WithError(err).WithField("page", page).Error("Couldn't parse wishlist page")
			return nil, fmt.Errorf("wishlist %q page %d: %w", src.Name, page, err)
		}
		for _, rec := range parsed.Records {
			rec.SourceName = src.Name
			rec.SourceURL = src.URL
			records = append(records, rec)
		}
		log.WithFields(logrus.Fields{"page": page, "items": len(parsed.Records)}).Debug("Parsed wishlist page")
		next = parsed.NextURL
	}

	log.WithField("items", len(records)).Info("Wishlist scraped")
	return records, nil
}

func (s *WishlistScraper) fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	for i := 0; i < s.tries; i++ {
		html, err := s.fetcher.Fetch(ctx, url)
		if err == nil {
			return html, nil
		}
		lastErr = err
		s.log.WithError(err).WithField("url", url).Warnf("Fetch failed, try %d/%d", i+1, s.tries)
		if i+1 == s.tries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
	return "", fmt.Errorf("couldn't retrieve %s after %d tries: %w", url, s.tries, lastErr)
}
