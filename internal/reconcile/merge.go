package reconcile

import (
	"time"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

// MergeProduct computes the field-level update that brings existing in line with
// a scraped observation seen at now. It never touches the store and never logs.
//
// Rules:
//   - first_seen is only filled when missing;
//   - price is only replaced by a different, strictly positive price;
//   - stars compare at tenth-of-a-star granularity;
//   - every other field is replaced when it differs;
//   - last_seen becomes now, but never earlier than first_seen.
func MergeProduct(existing domain.Product, rec domain.ScrapedRecord, sourceID string, now time.Time) domain.ProductUpdate {
	var u domain.ProductUpdate

	firstSeen := existing.FirstSeen
	if firstSeen == nil {
		t := now
		u.FirstSeen = &t
		firstSeen = &t
	}

	if price := rec.PriceMinor(); price != existing.Price && price > 0 {
		u.Price = &price
	}
	if stars := rec.StarsTenths(); stars != existing.Stars {
		u.Stars = &stars
	}
	if rec.Quantity != existing.Quantity {
		qty := rec.Quantity
		u.Quantity = &qty
	}
	if rec.URL != existing.URL {
		v := rec.URL
		u.URL = &v
	}
	if rec.ImageURL != existing.ImageURL {
		v := rec.ImageURL
		u.ImageURL = &v
	}
	if rec.ItemID != existing.ItemID {
		v := rec.ItemID
		u.ItemID = &v
	}
	if sourceID != existing.SourceID {
		v := sourceID
		u.SourceID = &v
	}

	lastSeen := now
	if lastSeen.Before(*firstSeen) {
		lastSeen = *firstSeen
	}
	if !lastSeen.Equal(existing.LastSeen) {
		u.LastSeen = &lastSeen
	}
	return u
}
