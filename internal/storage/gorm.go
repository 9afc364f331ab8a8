package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

type sourceRow struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
	URL  string
}

func (sourceRow) TableName() string { return "sources" }

type productRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Price     int64
	Quantity  int
	Stars     int
	URL       string
	ImageURL  string
	ItemID    string `gorm:"uniqueIndex;not null"`
	SourceID  string `gorm:"index"`
	FirstSeen *time.Time
	LastSeen  time.Time
}

func (productRow) TableName() string { return "products" }

type snapshotRow struct {
	ID        string    `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index;not null"`
	Value     int64
	Products  []snapshotProductRow `gorm:"foreignKey:SnapshotID"`
}

func (snapshotRow) TableName() string { return "snapshots" }

// snapshotProductRow keeps the ordered, possibly repeating product list of a snapshot.
type snapshotProductRow struct {
	SnapshotID string `gorm:"primaryKey"`
	Position   int    `gorm:"primaryKey;autoIncrement:false"`
	ProductID  string `gorm:"index;not null"`
}

func (snapshotProductRow) TableName() string { return "snapshot_products" }

type changeRow struct {
	ID        string `gorm:"primaryKey"`
	ProductID string `gorm:"index;not null"`
	Field     string
	Old       string
	New       string
	ChangedAt time.Time `gorm:"index"`
}

func (changeRow) TableName() string { return "product_changes" }

// GormCatalog implements the Catalog interface on a SQL database through gorm.
type GormCatalog struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// OpenGorm connects to a sqlite or postgres database.
func OpenGorm(driver, dsn string, logger logrus.FieldLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger.WithField("component", "gorm")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return db, nil
}

// NewGormCatalog migrates the schema and returns the catalog.
func NewGormCatalog(db *gorm.DB, logger logrus.FieldLogger) (*GormCatalog, error) {
	err := db.AutoMigrate(&sourceRow{}, &productRow{}, &snapshotRow{}, &snapshotProductRow{}, &changeRow{})
	if err != nil {
		logger.WithError(err).Error("Failed to auto-migrate catalog schema")
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	logger.Info("Catalog schema migrated")
	return &GormCatalog{db: db, log: logger.WithField("component", "catalog")}, nil
}

// Close closes the underlying connection pool.
func (c *GormCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (c *GormCatalog) FindSourceByName(ctx context.Context, name string) (*domain.Source, error) {
	var row sourceRow
	if err := c.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error; err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find source %q: %w", name, err)
	}
	return &domain.Source{ID: row.ID, Name: row.Name, URL: row.URL}, nil
}

func (c *GormCatalog) InsertSource(ctx context.Context, source *domain.Source) error {
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	row := sourceRow{ID: source.ID, Name: source.Name, URL: source.URL}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert source %q: %w", source.Name, err)
	}
	return nil
}

func toProduct(row productRow) domain.Product {
	p := domain.Product{
		ID:       row.ID,
		Name:     row.Name,
		Price:    row.Price,
		Quantity: row.Quantity,
		Stars:    row.Stars,
		URL:      row.URL,
		ImageURL: row.ImageURL,
		ItemID:   row.ItemID,
		SourceID: row.SourceID,
		LastSeen: row.LastSeen.UTC(),
	}
	if row.FirstSeen != nil {
		t := row.FirstSeen.UTC()
		p.FirstSeen = &t
	}
	return p
}

func (c *GormCatalog) FindProductByItemID(ctx context.Context, itemID string) (*domain.Product, error) {
	var row productRow
	if err := c.db.WithContext(ctx).Where("item_id = ?", itemID).Take(&row).Error; err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find product %q: %w", itemID, err)
	}
	p := toProduct(row)
	return &p, nil
}

func (c *GormCatalog) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []productRow
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, toProduct(row))
	}
	return products, nil
}

func (c *GormCatalog) InsertProduct(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	row := productRow{
		ID:        product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  product.Quantity,
		Stars:     product.Stars,
		URL:       product.URL,
		ImageURL:  product.ImageURL,
		ItemID:    product.ItemID,
		SourceID:  product.SourceID,
		FirstSeen: utcPtr(product.FirstSeen),
		LastSeen:  product.LastSeen.UTC(),
	}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert product %q: %w", product.ItemID, err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// updateColumns maps a partial update onto column names.
func updateColumns(u domain.ProductUpdate) map[string]any {
	cols := map[string]any{}
	if u.Price != nil {
		cols["price"] = *u.Price
	}
	if u.Stars != nil {
		cols["stars"] = *u.Stars
	}
	if u.Quantity != nil {
		cols["quantity"] = *u.Quantity
	}
	if u.URL != nil {
		cols["url"] = *u.URL
	}
	if u.ImageURL != nil {
		cols["image_url"] = *u.ImageURL
	}
	if u.ItemID != nil {
		cols["item_id"] = *u.ItemID
	}
	if u.SourceID != nil {
		cols["source_id"] = *u.SourceID
	}
	if u.FirstSeen != nil {
		cols["first_seen"] = u.FirstSeen.UTC()
	}
	if u.LastSeen != nil {
		cols["last_seen"] = u.LastSeen.UTC()
	}
	return cols
}

func (c *GormCatalog) UpdateProduct(ctx context.Context, id string, update domain.ProductUpdate) error {
	cols := updateColumns(update)
	if len(cols) == 0 {
		return nil
	}
	res := c.db.WithContext(ctx).Model(&productRow{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to update product %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *GormCatalog) InsertSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	row := snapshotRow{
		ID:        snapshot.ID,
		Timestamp: snapshot.Timestamp.UTC(),
		Value:     snapshot.Value,
		Products:  positions(snapshot.ID, snapshot.ProductIDs),
	}
	if snapshot.ProductIDs == nil {
		snapshot.ProductIDs = []string{}
	}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func positions(snapshotID string, productIDs []string) []snapshotProductRow {
	rows := make([]snapshotProductRow, 0, len(productIDs))
	for i, id := range productIDs {
		rows = append(rows, snapshotProductRow{SnapshotID: snapshotID, Position: i, ProductID: id})
	}
	return rows
}

func (c *GormCatalog) SetSnapshotProducts(ctx context.Context, id string, productIDs []string) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&snapshotRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		if err := tx.Where("snapshot_id = ?", id).Delete(&snapshotProductRow{}).Error; err != nil {
			return err
		}
		rows := positions(id, productIDs)
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 200).Error
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to set products of snapshot %s: %w", id, err)
	}
	return nil
}

func (c *GormCatalog) LatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	snapshots, err := c.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNotFound
	}
	return &snapshots[0], nil
}

func (c *GormCatalog) ListSnapshots(ctx context.Context, limit int) ([]domain.Snapshot, error) {
	q := c.db.WithContext(ctx).
		Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []snapshotRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	snapshots := make([]domain.Snapshot, 0, len(rows))
	for _, row := range rows {
		ids := make([]string, 0, len(row.Products))
		for _, p := range row.Products {
			ids = append(ids, p.ProductID)
		}
		snapshots = append(snapshots, domain.Snapshot{
			ID:         row.ID,
			Timestamp:  row.Timestamp.UTC(),
			Value:      row.Value,
			ProductIDs: ids,
		})
	}
	return snapshots, nil
}

func (c *GormCatalog) AppendChanges(ctx context.Context, changes []domain.ProductChange) error {
	if len(changes) == 0 {
		return nil
	}
	rows := make([]changeRow, 0, len(changes))
	for i := range changes {
		ch := &changes[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		rows = append(rows, changeRow{
			ID:        ch.ID,
			ProductID: ch.ProductID,
			Field:     ch.Field,
			Old:       ch.Old,
			New:       ch.New,
			ChangedAt: ch.ChangedAt.UTC(),
		})
	}
	if err := c.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to append %d changes: %w", len(changes), err)
	}
	return nil
}

func (c *GormCatalog) ProductChanges(ctx context.Context, productID string) ([]domain.ProductChange, error) {
	var rows []changeRow
	err := c.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("changed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get changes of product %s: %w", productID, err)
	}
	changes := make([]domain.ProductChange, 0, len(rows))
	for _, r := range rows {
		changes = append(changes, domain.ProductChange{
			ID:        r.ID,
			ProductID: r.ProductID,
			Field:     r.Field,
			Old:       r.Old,
			New:       r.New,
			ChangedAt: r.ChangedAt.UTC(),
		})
	}
	return changes, nil
}
