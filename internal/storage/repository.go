package storage

import (
	"context"
	"errors"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

// ErrNotFound is returned when a looked-up source, product or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Catalog defines the persistence operations the reconciliation engine relies on.
// Every operation is atomic for a single document; there are no multi-document
// transactions. Callers are expected to be the only writer.
type Catalog interface {
	// FindSourceByName returns ErrNotFound if no source carries the name.
	FindSourceByName(ctx context.Context, name string) (*domain.Source, error)

	// InsertSource stores a new source and assigns its ID if empty.
	InsertSource(ctx context.Context, source *domain.Source) error

	// FindProductByItemID looks a product up by its external item id.
	FindProductByItemID(ctx context.Context, itemID string) (*domain.Product, error)

	// FindProductsByIDs returns the existing products among ids. Unknown ids are
	// ignored and duplicates collapse.
	FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)

	// InsertProduct stores a new product and assigns its ID if empty.
	InsertProduct(ctx context.Context, product *domain.Product) error

	// UpdateProduct applies a partial update to the product with the given id.
	UpdateProduct(ctx context.Context, id string, update domain.ProductUpdate) error

	// InsertSnapshot stores a new snapshot and assigns its ID if empty.
	InsertSnapshot(ctx context.Context, snapshot *domain.Snapshot) error

	// SetSnapshotProducts replaces the product list of a snapshot.
	SetSnapshotProducts(ctx context.Context, id string, productIDs []string) error

	// LatestSnapshot returns the snapshot with the newest timestamp, or ErrNotFound.
	LatestSnapshot(ctx context.Context) (*domain.Snapshot, error)

	// ListSnapshots returns up to limit snapshots, newest first. limit <= 0 means all.
	ListSnapshots(ctx context.Context, limit int) ([]domain.Snapshot, error)

	// AppendChanges adds entries to the product change log.
	AppendChanges(ctx context.Context, changes []domain.ProductChange) error

	// ProductChanges returns the change log of a product, oldest first.
	ProductChanges(ctx context.Context, productID string) ([]domain.ProductChange, error)

	// Close gracefully shuts down the store.
	Close() error
}
