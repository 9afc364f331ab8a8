package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// ScrapedRecord is one product observation produced by the scraper.
type ScrapedRecord struct {
	Name string

	// Price in source currency units. Zero when the page showed no price.
	Price decimal.Decimal

	Quantity int

	// Stars between 0.0 and 5.0, zero when unrated.
	Stars float64

	URL      string
	ImageURL string
	ItemID   string

	SourceName string
	SourceURL  string
}

var hundred = decimal.NewFromInt(100)

// PriceMinor returns the price in minor currency units.
func (r ScrapedRecord) PriceMinor() int64 {
	return r.Price.Mul(hundred).Round(0).IntPart()
}

// StarsTenths returns the rating at tenth-of-a-star granularity.
func (r ScrapedRecord) StarsTenths() int {
	return int(math.Round(r.Stars * 10))
}

// WishlistValue sums price * quantity over records, in minor units.
func WishlistValue(records []ScrapedRecord) int64 {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Price.Mul(decimal.NewFromInt(int64(r.Quantity))))
	}
	return total.Mul(hundred).Round(0).IntPart()
}

// ItemIDSet collapses the item ids of records into a set.
func ItemIDSet(records []ScrapedRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.ItemID] = struct{}{}
	}
	return set
}
