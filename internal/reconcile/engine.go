package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
	"github.com/bauhaus93/wishlist-scrape/internal/storage"
)

// Engine merges scraped records into the catalog.
//
// Sources and products are resolved with a lookup followed by a conditional
// insert. This is only safe with a single writer; the Cycle guarantees that.
type Engine struct {
	catalog   storage.Catalog
	observers []Observer
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewEngine creates an engine notifying the given observers.
func NewEngine(catalog storage.Catalog, logger logrus.FieldLogger, observers ...Observer) *Engine {
	return &Engine{
		catalog:   catalog,
		observers: observers,
		log:       logger.WithField("component", "engine"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSnapshot stores a new snapshot of the wishlist and upserts every record.
// The snapshot is inserted first with an empty product list, which is filled in
// once all products are resolved.
func (e *Engine) CreateSnapshot(ctx context.Context, records []domain.ScrapedRecord) (Summary, error) {
	now := e.now()
	summary := Summary{NewSnapshot: true, Scraped: len(records), Value: domain.WishlistValue(records)}
	e.log.Info("Adding wishlist to catalog...")

	snapshot := &domain.Snapshot{Timestamp: now, Value: summary.Value, ProductIDs: []string{}}
	if err := e.catalog.InsertSnapshot(ctx, snapshot); err != nil {
		return summary, err
	}
	summary.SnapshotID = snapshot.ID

	sources := map[string]string{}
	productIDs := make([]string, 0, len(records))
	for _, rec := range records {
		sourceID, err := e.resolveSource(ctx, rec, sources)
		if err != nil {
			return summary, err
		}

		existing, err := e.catalog.FindProductByItemID(ctx, rec.ItemID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			product, err := e.insertProduct(ctx, rec, sourceID, now)
			if err != nil {
				return summary, err
			}
			summary.Created++
			productIDs = append(productIDs, product.ID)
			continue
		case err != nil:
			return summary, fmt.Errorf("failed to look up product %q: %w", rec.ItemID, err)
		}

		changed, err := e.merge(ctx, *existing, rec, sourceID, now)
		if err != nil {
			return summary, err
		}
		if changed {
			summary.Updated++
		} else {
			summary.Unchanged++
		}
		productIDs = append(productIDs, existing.ID)
	}

	if err := e.catalog.SetSnapshotProducts(ctx, snapshot.ID, productIDs); err != nil {
		return summary, fmt.Errorf("failed to link products to snapshot %s: %w", snapshot.ID, err)
	}
	e.log.WithFields(logrus.Fields{
		"snapshot_id": snapshot.ID,
		"products":    len(productIDs),
		"value":       summary.Value,
	}).Info("Added wishlist to catalog")
	return summary, nil
}

// UpdateProducts merges records into already known products. Unknown items are
// skipped: only a new snapshot may add products to the catalog.
func (e *Engine) UpdateProducts(ctx context.Context, records []domain.ScrapedRecord) (Summary, error) {
	now := e.now()
	summary := Summary{Scraped: len(records), Value: domain.WishlistValue(records)}

	sources := map[string]string{}
	for _, rec := range records {
		sourceID, err := e.resolveSource(ctx, rec, sources)
		if err != nil {
			return summary, err
		}

		existing, err := e.catalog.FindProductByItemID(ctx, rec.ItemID)
		if errors.Is(err, storage.ErrNotFound) {
			e.log.WithFields(logrus.Fields{
				"product": shortName(rec.Name),
				"item_id": rec.ItemID,
			}).Warn("Wanted to update product, but product isn't present in catalog")
			summary.Skipped++
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("failed to look up product %q: %w", rec.ItemID, err)
		}

		changed, err := e.merge(ctx, *existing, rec, sourceID, now)
		if err != nil {
			return summary, err
		}
		if changed {
			summary.Updated++
		} else {
			summary.Unchanged++
		}
	}

	if summary.Skipped > 0 {
		e.log.WithFields(logrus.Fields{
			"skipped": summary.Skipped,
			"scraped": summary.Scraped,
		}).Warn("Some scraped products could not be matched to the catalog")
	}
	return summary, nil
}

// resolveSource finds the source of rec by name, inserting it when unknown.
// Resolved ids are cached in known for the rest of the cycle.
func (e *Engine) resolveSource(ctx context.Context, rec domain.ScrapedRecord, known map[string]string) (string, error) {
	if id, ok := known[rec.SourceName]; ok {
		return id, nil
	}
	log := e.log.WithField("source", rec.SourceName)
	if rec.SourceName == "" {
		log.WithField("item_id", rec.ItemID).Error("Couldn't resolve source: record carries no source name")
		return "", fmt.Errorf("record %q has no source name", rec.ItemID)
	}

	source, err := e.catalog.FindSourceByName(ctx, rec.SourceName)
	if errors.Is(err, storage.ErrNotFound) {
		source = &domain.Source{Name: rec.SourceName, URL: rec.SourceURL}
		err = e.catalog.InsertSource(ctx, source)
		if err == nil {
			log.WithField("url", rec.SourceURL).Info("Added source")
		}
	}
	if err != nil {
		log.WithError(err).Error("Couldn't resolve source")
		return "", fmt.Errorf("failed to resolve source %q: %w", rec.SourceName, err)
	}
	known[rec.SourceName] = source.ID
	return source.ID, nil
}

func (e *Engine) insertProduct(ctx context.Context, rec domain.ScrapedRecord, sourceID string, now time.Time) (*domain.Product, error) {
	firstSeen := now
	product := &domain.Product{
		Name:      rec.Name,
		Price:     rec.PriceMinor(),
		Quantity:  rec.Quantity,
		Stars:     rec.StarsTenths(),
		URL:       rec.URL,
		ImageURL:  rec.ImageURL,
		ItemID:    rec.ItemID,
		SourceID:  sourceID,
		FirstSeen: &firstSeen,
		LastSeen:  now,
	}
	if err := e.catalog.InsertProduct(ctx, product); err != nil {
		return nil, err
	}
	for _, o := range e.observers {
		o.ProductCreated(ctx, *product)
	}
	return product, nil
}

// merge applies MergeProduct to the catalog and reports whether any logged field changed.
func (e *Engine) merge(ctx context.Context, existing domain.Product, rec domain.ScrapedRecord, sourceID string, now time.Time) (bool, error) {
	update := MergeProduct(existing, rec, sourceID, now)
	if update.IsEmpty() {
		return false, nil
	}
	if err := e.catalog.UpdateProduct(ctx, existing.ID, update); err != nil {
		return false, fmt.Errorf("failed to update product %q: %w", existing.ItemID, err)
	}

	changes := update.Changes(existing)
	if len(changes) == 0 {
		return false, nil
	}
	for _, o := range e.observers {
		o.ProductUpdated(ctx, existing, changes, now)
	}
	return true, nil
}

func (e *Engine) completed(ctx context.Context, s Summary) {
	for _, o := range e.observers {
		o.CycleCompleted(ctx, s)
	}
}
