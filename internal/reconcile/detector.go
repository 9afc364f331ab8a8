package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
	"github.com/bauhaus93/wishlist-scrape/internal/storage"
)

// NeedsNewSnapshot reports whether the scraped item ids differ, as a set, from the
// item ids of the latest snapshot. Order and duplicates are ignored, and changes
// of price, quantity or stars alone never require a new snapshot.
func NeedsNewSnapshot(ctx context.Context, catalog storage.Catalog, records []domain.ScrapedRecord) (bool, error) {
	latest, err := catalog.LatestSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	products, err := catalog.FindProductsByIDs(ctx, latest.ProductIDs)
	if err != nil {
		return false, fmt.Errorf("failed to resolve products of snapshot %s: %w", latest.ID, err)
	}
	previous := make(map[string]struct{}, len(products))
	for _, p := range products {
		previous[p.ItemID] = struct{}{}
	}
	return !sameSet(previous, domain.ItemIDSet(records)), nil
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
