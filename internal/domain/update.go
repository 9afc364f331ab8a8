package domain

import (
	"strconv"
	"time"
)

// Field names used in the change log and in partial updates.
const (
	FieldPrice     = "price"
	FieldStars     = "stars"
	FieldQuantity  = "quantity"
	FieldURL       = "url"
	FieldImageURL  = "url_img"
	FieldItemID    = "item_id"
	FieldSourceID  = "source_id"
	FieldFirstSeen = "first_seen"
	FieldLastSeen  = "last_seen"
)

// ProductUpdate is a partial update of a Product. Nil fields are left untouched.
type ProductUpdate struct {
	Price     *int64
	Stars     *int
	Quantity  *int
	URL       *string
	ImageURL  *string
	ItemID    *string
	SourceID  *string
	FirstSeen *time.Time
	LastSeen  *time.Time
}

// FieldChange describes one field going from Old to New.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// IsEmpty reports whether the update touches no field.
func (u ProductUpdate) IsEmpty() bool {
	return u.Price == nil && u.Stars == nil && u.Quantity == nil &&
		u.URL == nil && u.ImageURL == nil && u.ItemID == nil &&
		u.SourceID == nil && u.FirstSeen == nil && u.LastSeen == nil
}

// Apply writes the set fields of u onto p.
func (u ProductUpdate) Apply(p *Product) {
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Stars != nil {
		p.Stars = *u.Stars
	}
	if u.Quantity != nil {
		p.Quantity = *u.Quantity
	}
	if u.URL != nil {
		p.URL = *u.URL
	}
	if u.ImageURL != nil {
		p.ImageURL = *u.ImageURL
	}
	if u.ItemID != nil {
		p.ItemID = *u.ItemID
	}
	if u.SourceID != nil {
		p.SourceID = *u.SourceID
	}
	if u.FirstSeen != nil {
		t := *u.FirstSeen
		p.FirstSeen = &t
	}
	if u.LastSeen != nil {
		p.LastSeen = *u.LastSeen
	}
}

// Changes lists the fields of u that differ from old, in a stable order.
// last_seen is never listed.
func (u ProductUpdate) Changes(old Product) []FieldChange {
	var out []FieldChange
	add := func(field, from, to string) {
		if from != to {
			out = append(out, FieldChange{Field: field, Old: from, New: to})
		}
	}
	if u.Price != nil {
		add(FieldPrice, strconv.FormatInt(old.Price, 10), strconv.FormatInt(*u.Price, 10))
	}
	if u.Stars != nil {
		add(FieldStars, strconv.Itoa(old.Stars), strconv.Itoa(*u.Stars))
	}
	if u.Quantity != nil {
		add(FieldQuantity, strconv.Itoa(old.Quantity), strconv.Itoa(*u.Quantity))
	}
	if u.URL != nil {
		add(FieldURL, old.URL, *u.URL)
	}
	if u.ImageURL != nil {
		add(FieldImageURL, old.ImageURL, *u.ImageURL)
	}
	if u.ItemID != nil {
		add(FieldItemID, old.ItemID, *u.ItemID)
	}
	if u.SourceID != nil {
		add(FieldSourceID, old.SourceID, *u.SourceID)
	}
	if u.FirstSeen != nil {
		from := ""
		if old.FirstSeen != nil {
			from = old.FirstSeen.UTC().Format(time.RFC3339)
		}
		add(FieldFirstSeen, from, u.FirstSeen.UTC().Format(time.RFC3339))
	}
	return out
}
