package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

// Key layout:
//
//	source:{id}                      -> Source JSON
//	source_name:{name}               -> source id
//	product:{id}                     -> Product JSON
//	product_item:{itemID}            -> product id
//	snapshot:{id}                    -> Snapshot JSON
//	snapshot_ts:{unixnano}:{id}      -> snapshot id
//	change:{productID}:{unixnano}:{id} -> ProductChange JSON
const (
	prefixSource       = "source:"
	prefixSourceName   = "source_name:"
	prefixProduct      = "product:"
	prefixProductItem  = "product_item:"
	prefixSnapshot     = "snapshot:"
	prefixSnapshotTime = "snapshot_ts:"
	prefixChange       = "change:"
)

// BadgerCatalog implements the Catalog interface using BadgerDB.
type BadgerCatalog struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerCatalog opens (or creates) the database at dbPath.
func NewBadgerCatalog(dbPath string, logger logrus.FieldLogger) (*BadgerCatalog, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerCatalog{
		db:  db,
		log: logger.WithField("component", "catalog"),
	}, nil
}

// Close closes the BadgerDB database connection.
func (c *BadgerCatalog) Close() error {
	c.log.Info("Closing BadgerDB...")
	if err := c.db.Close(); err != nil {
		c.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	c.log.Info("BadgerDB closed.")
	return nil
}

// RunGC reclaims value log space until ctx is cancelled.
func (c *BadgerCatalog) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := c.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				c.log.Debug("BadgerDB GC completed")
			case errors.Is(err, badger.ErrNoRewrite):
				c.log.Debug("BadgerDB GC: no rewrite needed")
			default:
				c.log.WithError(err).Warn("BadgerDB GC failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func timeKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func getString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func setJSON(txn *badger.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), b)
}

// FindSourceByName looks a source up through the name index.
func (c *BadgerCatalog) FindSourceByName(ctx context.Context, name string) (*domain.Source, error) {
	var source domain.Source
	err := c.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, prefixSourceName+name)
		if err != nil {
			return err
		}
		return getJSON(txn, prefixSource+id, &source)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find source %q: %w", name, err)
	}
	return &source, nil
}

// InsertSource stores a source together with its name index entry.
func (c *BadgerCatalog) InsertSource(ctx context.Context, source *domain.Source) error {
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixSource+source.ID, source); err != nil {
			return err
		}
		return txn.Set([]byte(prefixSourceName+source.Name), []byte(source.ID))
	})
	if err != nil {
		c.log.WithError(err).WithField("source", source.Name).Error("Failed to insert source")
		return fmt.Errorf("failed to insert source %q: %w", source.Name, err)
	}
	return nil
}

// FindProductByItemID looks a product up through the item id index.
func (c *BadgerCatalog) FindProductByItemID(ctx context.Context, itemID string) (*domain.Product, error) {
	var product domain.Product
	err := c.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, prefixProductItem+itemID)
		if err != nil {
			return err
		}
		return getJSON(txn, prefixProduct+id, &product)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find product %q: %w", itemID, err)
	}
	return &product, nil
}

// FindProductsByIDs returns the known products among ids.
func (c *BadgerCatalog) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	var products []domain.Product
	seen := make(map[string]struct{}, len(ids))
	err := c.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			var p domain.Product
			err := getJSON(txn, prefixProduct+id, &p)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			products = append(products, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	return products, nil
}

// InsertProduct stores a product together with its item id index entry.
func (c *BadgerCatalog) InsertProduct(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixProduct+product.ID, product); err != nil {
			return err
		}
		return txn.Set([]byte(prefixProductItem+product.ItemID), []byte(product.ID))
	})
	if err != nil {
		c.log.WithError(err).WithField("item_id", product.ItemID).Error("Failed to insert product")
		return fmt.Errorf("failed to insert product %q: %w", product.ItemID, err)
	}
	return nil
}

// UpdateProduct reads, patches and writes the product in one transaction.
func (c *BadgerCatalog) UpdateProduct(ctx context.Context, id string, update domain.ProductUpdate) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		var p domain.Product
		if err := getJSON(txn, prefixProduct+id, &p); err != nil {
			return err
		}
		oldItemID := p.ItemID
		update.Apply(&p)
		if p.ItemID != oldItemID {
			if err := txn.Delete([]byte(prefixProductItem + oldItemID)); err != nil {
				return err
			}
			if err := txn.Set([]byte(prefixProductItem+p.ItemID), []byte(p.ID)); err != nil {
				return err
			}
		}
		return setJSON(txn, prefixProduct+id, &p)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		c.log.WithError(err).WithField("product_id", id).Error("Failed to update product")
		return fmt.Errorf("failed to update product %s: %w", id, err)
	}
	return nil
}

// InsertSnapshot stores a snapshot and its timestamp index entry.
func (c *BadgerCatalog) InsertSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.ProductIDs == nil {
		snapshot.ProductIDs = []string{}
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixSnapshot+snapshot.ID, snapshot); err != nil {
			return err
		}
		key := prefixSnapshotTime + timeKey(snapshot.Timestamp) + ":" + snapshot.ID
		return txn.Set([]byte(key), []byte(snapshot.ID))
	})
	if err != nil {
		c.log.WithError(err).Error("Failed to insert snapshot")
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// SetSnapshotProducts replaces the product list of a snapshot.
func (c *BadgerCatalog) SetSnapshotProducts(ctx context.Context, id string, productIDs []string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		var s domain.Snapshot
		if err := getJSON(txn, prefixSnapshot+id, &s); err != nil {
			return err
		}
		s.ProductIDs = append([]string{}, productIDs...)
		return setJSON(txn, prefixSnapshot+id, &s)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to set products of snapshot %s: %w", id, err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot by timestamp.
func (c *BadgerCatalog) LatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	snapshots, err := c.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNotFound
	}
	return &snapshots[0], nil
}

// ListSnapshots walks the timestamp index backwards.
func (c *BadgerCatalog) ListSnapshots(ctx context.Context, limit int) ([]domain.Snapshot, error) {
	var snapshots []domain.Snapshot
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixSnapshotTime)
		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var s domain.Snapshot
			if err := getJSON(txn, prefixSnapshot+string(id), &s); err != nil {
				return fmt.Errorf("snapshot index points to %s: %w", id, err)
			}
			snapshots = append(snapshots, s)
			if limit > 0 && len(snapshots) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		c.log.WithError(err).Error("Failed to list snapshots")
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

// AppendChanges writes change log entries keyed by product and time.
func (c *BadgerCatalog) AppendChanges(ctx context.Context, changes []domain.ProductChange) error {
	if len(changes) == 0 {
		return nil
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		for i := range changes {
			ch := &changes[i]
			if ch.ID == "" {
				ch.ID = uuid.NewString()
			}
			key := prefixChange + ch.ProductID + ":" + timeKey(ch.ChangedAt) + ":" + ch.ID
			if err := setJSON(txn, key, ch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append %d changes: %w", len(changes), err)
	}
	return nil
}

// ProductChanges returns the change log of one product, oldest first.
func (c *BadgerCatalog) ProductChanges(ctx context.Context, productID string) ([]domain.ProductChange, error) {
	var changes []domain.ProductChange
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixChange + productID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var ch domain.ProductChange
				if err := json.Unmarshal(val, &ch); err != nil {
					return fmt.Errorf("failed to unmarshal change %s: %w", string(item.Key()), err)
				}
				changes = append(changes, ch)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get changes of product %s: %w", productID, err)
	}
	return changes, nil
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
