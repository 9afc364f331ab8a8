package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.ErrorLevel)
	return l
}

var baseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// runCatalogContract exercises the behaviour every Catalog implementation must share.
func runCatalogContract(t *testing.T, newCatalog func(t *testing.T) Catalog) {
	t.Run("Sources", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()

		_, err := c.FindSourceByName(ctx, "books")
		assert.ErrorIs(t, err, ErrNotFound)

		src := &domain.Source{Name: "books", URL: "https://example.com/wishlist/books"}
		require.NoError(t, c.InsertSource(ctx, src))
		require.NotEmpty(t, src.ID, "InsertSource should assign an id")

		got, err := c.FindSourceByName(ctx, "books")
		require.NoError(t, err)
		assert.Equal(t, *src, *got)
	})

	t.Run("Products", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()

		_, err := c.FindProductByItemID(ctx, "I1")
		assert.ErrorIs(t, err, ErrNotFound)

		first := baseTime
		p1 := &domain.Product{Name: "Book", Price: 1299, Quantity: 1, Stars: 45, URL: "u1", ImageURL: "i1",
			ItemID: "I1", SourceID: "s1", FirstSeen: &first, LastSeen: baseTime}
		p2 := &domain.Product{Name: "Lamp", Price: 4999, Quantity: 2, ItemID: "I2", SourceID: "s1", LastSeen: baseTime}
		require.NoError(t, c.InsertProduct(ctx, p1))
		require.NoError(t, c.InsertProduct(ctx, p2))

		got, err := c.FindProductByItemID(ctx, "I1")
		require.NoError(t, err)
		assert.Equal(t, p1.ID, got.ID)
		assert.Equal(t, int64(1299), got.Price)
		assert.Equal(t, 45, got.Stars)
		require.NotNil(t, got.FirstSeen)
		assert.True(t, got.FirstSeen.Equal(baseTime))
		assert.True(t, got.LastSeen.Equal(baseTime))

		got2, err := c.FindProductByItemID(ctx, "I2")
		require.NoError(t, err)
		assert.Nil(t, got2.FirstSeen, "missing first_seen must stay nil")

		list, err := c.FindProductsByIDs(ctx, []string{p1.ID, "unknown", p2.ID, p1.ID})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		// partial update
		price := int64(999)
		later := baseTime.Add(time.Hour)
		require.NoError(t, c.UpdateProduct(ctx, p1.ID, domain.ProductUpdate{Price: &price, LastSeen: &later}))
		got, err = c.FindProductByItemID(ctx, "I1")
		require.NoError(t, err)
		assert.Equal(t, int64(999), got.Price)
		assert.Equal(t, "u1", got.URL, "untouched fields must survive a partial update")
		assert.True(t, got.LastSeen.Equal(later))

		// item id change moves the lookup key
		newItem := "I1-b"
		require.NoError(t, c.UpdateProduct(ctx, p1.ID, domain.ProductUpdate{ItemID: &newItem}))
		_, err = c.FindProductByItemID(ctx, "I1")
		assert.ErrorIs(t, err, ErrNotFound)
		got, err = c.FindProductByItemID(ctx, "I1-b")
		require.NoError(t, err)
		assert.Equal(t, p1.ID, got.ID)

		err = c.UpdateProduct(ctx, "missing", domain.ProductUpdate{Price: &price})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Snapshots", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()

		_, err := c.LatestSnapshot(ctx)
		assert.ErrorIs(t, err, ErrNotFound)

		older := &domain.Snapshot{Timestamp: baseTime, Value: 100}
		newer := &domain.Snapshot{Timestamp: baseTime.Add(24 * time.Hour), Value: 200}
		require.NoError(t, c.InsertSnapshot(ctx, newer))
		require.NoError(t, c.InsertSnapshot(ctx, older))

		latest, err := c.LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, latest.ID)
		assert.Empty(t, latest.ProductIDs, "a fresh snapshot has no products yet")

		require.NoError(t, c.SetSnapshotProducts(ctx, newer.ID, []string{"b", "a", "b"}))
		latest, err = c.LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a", "b"}, latest.ProductIDs, "order and duplicates are kept")
		assert.Equal(t, int64(200), latest.Value)

		all, err := c.ListSnapshots(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, newer.ID, all[0].ID)
		assert.Equal(t, older.ID, all[1].ID)

		err = c.SetSnapshotProducts(ctx, "missing", []string{"a"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Changes", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()

		require.NoError(t, c.AppendChanges(ctx, nil))
		require.NoError(t, c.AppendChanges(ctx, []domain.ProductChange{
			{ProductID: "p1", Field: domain.FieldPrice, Old: "1000", New: "900", ChangedAt: baseTime.Add(time.Hour)},
			{ProductID: "p1", Field: domain.FieldQuantity, Old: "1", New: "2", ChangedAt: baseTime},
			{ProductID: "p2", Field: domain.FieldStars, Old: "40", New: "45", ChangedAt: baseTime},
		}))

		changes, err := c.ProductChanges(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, changes, 2)
		assert.Equal(t, domain.FieldQuantity, changes[0].Field)
		assert.Equal(t, domain.FieldPrice, changes[1].Field)
		assert.NotEmpty(t, changes[0].ID)

		none, err := c.ProductChanges(ctx, "p3")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
