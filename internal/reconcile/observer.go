package reconcile

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
	"github.com/bauhaus93/wishlist-scrape/internal/storage"
)

// Observer is notified after the engine has written a change to the catalog.
// Observers handle their own errors; they cannot fail a cycle.
type Observer interface {
	ProductCreated(ctx context.Context, product domain.Product)
	// ProductUpdated receives the product as it was before the update.
	ProductUpdated(ctx context.Context, before domain.Product, changes []domain.FieldChange, at time.Time)
	CycleCompleted(ctx context.Context, summary Summary)
}

// Summary describes the outcome of one reconciliation.
type Summary struct {
	NewSnapshot bool
	SnapshotID  string
	Value       int64

	Scraped   int
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
}

func shortName(name string) string {
	r := []rune(name)
	if len(r) > 20 {
		return string(r[:20]) + "[..]"
	}
	return name
}

// LogObserver writes one log line per created product and per changed field.
type LogObserver struct {
	log logrus.FieldLogger
}

func NewLogObserver(logger logrus.FieldLogger) *LogObserver {
	return &LogObserver{log: logger.WithField("component", "changelog")}
}

func (o *LogObserver) ProductCreated(ctx context.Context, p domain.Product) {
	o.log.WithFields(logrus.Fields{
		"product": shortName(p.Name),
		"item_id": p.ItemID,
		"price":   p.Price,
	}).Info("Adding product")
}

func (o *LogObserver) ProductUpdated(ctx context.Context, before domain.Product, changes []domain.FieldChange, at time.Time) {
	for _, ch := range changes {
		o.log.WithFields(logrus.Fields{
			"product": shortName(before.Name),
			"item_id": before.ItemID,
			"field":   ch.Field,
			"old":     ch.Old,
			"new":     ch.New,
		}).Infof("Value '%s' changed: %s -> %s", ch.Field, ch.Old, ch.New)
	}
}

func (o *LogObserver) CycleCompleted(ctx context.Context, s Summary) {
	o.log.WithFields(logrus.Fields{
		"new_snapshot": s.NewSnapshot,
		"snapshot_id":  s.SnapshotID,
		"scraped":      s.Scraped,
		"created":      s.Created,
		"updated":      s.Updated,
		"unchanged":    s.Unchanged,
		"skipped":      s.Skipped,
	}).Info("Reconciliation finished")
}

// HistoryRecorder persists every change into the catalog change log. A created
// product records its initial price so the price history starts at first sight.
type HistoryRecorder struct {
	catalog storage.Catalog
	log     logrus.FieldLogger
}

func NewHistoryRecorder(catalog storage.Catalog, logger logrus.FieldLogger) *HistoryRecorder {
	return &HistoryRecorder{catalog: catalog, log: logger.WithField("component", "history")}
}

func (h *HistoryRecorder) ProductCreated(ctx context.Context, p domain.Product) {
	at := p.LastSeen
	h.append(ctx, []domain.ProductChange{{
		ProductID: p.ID,
		Field:     domain.FieldPrice,
		New:       strconv.FormatInt(p.Price, 10),
		ChangedAt: at,
	}})
}

func (h *HistoryRecorder) ProductUpdated(ctx context.Context, before domain.Product, changes []domain.FieldChange, at time.Time) {
	entries := make([]domain.ProductChange, 0, len(changes))
	for _, ch := range changes {
		entries = append(entries, domain.ProductChange{
			ProductID: before.ID,
			Field:     ch.Field,
			Old:       ch.Old,
			New:       ch.New,
			ChangedAt: at,
		})
	}
	h.append(ctx, entries)
}

func (h *HistoryRecorder) CycleCompleted(ctx context.Context, s Summary) {}

func (h *HistoryRecorder) append(ctx context.Context, entries []domain.ProductChange) {
	if len(entries) == 0 {
		return
	}
	if err := h.catalog.AppendChanges(ctx, entries); err != nil {
		h.log.WithError(err).Error("Failed to record product changes")
	}
}
