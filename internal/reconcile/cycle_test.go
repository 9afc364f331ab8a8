package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
	"github.com/bauhaus93/wishlist-scrape/internal/storage"
)

func TestCycle_Bootstrap(t *testing.T) {
	r := newRig(t)

	s := r.run(t, t0, rec("X", "10.00"), rec("Y", "20.00"))
	assert.True(t, s.NewSnapshot)
	assert.Equal(t, 2, s.Created)
	assert.Equal(t, int64(3000), s.Value)

	snaps := r.snapshots(t)
	require.Len(t, snaps, 1)
	x, y := r.product(t, "X"), r.product(t, "Y")
	assert.Equal(t, []string{x.ID, y.ID}, snaps[0].ProductIDs)
	assert.True(t, snaps[0].Timestamp.Equal(t0))

	for _, p := range []domain.Product{x, y} {
		require.NotNil(t, p.FirstSeen)
		assert.True(t, p.FirstSeen.Equal(t0))
		assert.True(t, p.LastSeen.Equal(t0))
	}
	assert.Equal(t, int64(1000), x.Price)
	assert.Equal(t, 45, x.Stars)

	src, err := r.catalog.FindSourceByName(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/wishlist/main", src.URL)
	assert.Equal(t, src.ID, x.SourceID)
	assert.Equal(t, src.ID, y.SourceID)

	assert.Len(t, r.observer.created, 2)
	require.Len(t, r.observer.summaries, 1)
	assert.Equal(t, s, r.observer.summaries[0])
}

func TestCycle_PriceChangeUpdatesOnly(t *testing.T) {
	r := newRig(t)
	r.run(t, t0, rec("X", "10.00"), rec("Y", "10.00"))
	before := r.product(t, "X")
	r.observer.reset()

	t1 := t0.Add(24 * time.Hour)
	s := r.run(t, t1, rec("X", "10.00"), rec("Y", "9.00"))
	assert.False(t, s.NewSnapshot)
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 1, s.Unchanged)
	assert.Len(t, r.snapshots(t), 1, "a price change must not create a snapshot")

	y := r.product(t, "Y")
	assert.Equal(t, int64(900), y.Price)
	assert.True(t, y.LastSeen.Equal(t1))
	assert.True(t, y.FirstSeen.Equal(t0))

	x := r.product(t, "X")
	assert.Equal(t, before.Price, x.Price)
	assert.Equal(t, before.URL, x.URL)
	assert.True(t, x.LastSeen.Equal(t1), "last_seen follows every observation")

	assert.Equal(t, []domain.FieldChange{{Field: domain.FieldPrice, Old: "1000", New: "900"}}, r.observer.changes["Y"])
	assert.Empty(t, r.observer.changes["X"])

	history, err := r.catalog.ProductChanges(context.Background(), y.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "1000", history[0].New, "creation records the initial price")
	assert.Equal(t, "900", history[1].New)
	assertSeenOrder(t, r, "X", "Y")
}

func TestCycle_ReplacedItem(t *testing.T) {
	r := newRig(t)
	r.run(t, t0, rec("X", "10.00"), rec("Y", "20.00"))
	yBefore := r.product(t, "Y")

	t1 := t0.Add(time.Hour)
	s := r.run(t, t1, rec("X", "11.00"), rec("Z", "30.00"))
	assert.True(t, s.NewSnapshot)
	assert.Equal(t, 1, s.Created)
	assert.Equal(t, 1, s.Updated)

	snaps := r.snapshots(t)
	require.Len(t, snaps, 2)
	x, z := r.product(t, "X"), r.product(t, "Z")
	assert.Equal(t, []string{x.ID, z.ID}, snaps[0].ProductIDs)
	assert.Equal(t, int64(1100), x.Price)
	assert.True(t, x.LastSeen.Equal(t1))
	assert.True(t, z.FirstSeen.Equal(t1))

	assert.Equal(t, yBefore, r.product(t, "Y"), "a dropped product is left untouched")
	assert.Contains(t, snaps[1].ProductIDs, yBefore.ID)
	assertSeenOrder(t, r, "X", "Y", "Z")
}

func TestCycle_ZeroPriceKeepsKnownPrice(t *testing.T) {
	r := newRig(t)
	r.run(t, t0, rec("X", "5.00"))

	zero := rec("X", "0")
	zero.Quantity = 2
	r.run(t, t0.Add(time.Hour), zero)

	x := r.product(t, "X")
	assert.Equal(t, int64(500), x.Price)
	assert.Equal(t, 2, x.Quantity)
}

func TestCycle_UpdateIsIdempotent(t *testing.T) {
	r := newRig(t)
	r.run(t, t0, rec("X", "5.00"), rec("Y", "6.00"))

	changed := rec("X", "4.00")
	changed.Stars = 3.9
	r.observer.reset()
	r.run(t, t0.Add(time.Hour), changed, rec("Y", "6.00"))
	assert.Len(t, r.observer.changes["X"], 2)
	after := r.product(t, "X")

	r.observer.reset()
	t2 := t0.Add(2 * time.Hour)
	s := r.run(t, t2, changed, rec("Y", "6.00"))
	assert.Equal(t, 0, s.Updated)
	assert.Equal(t, 2, s.Unchanged)
	assert.Empty(t, r.observer.changes, "second identical run must not change any field")

	again := r.product(t, "X")
	assert.True(t, again.LastSeen.Equal(t2))
	again.LastSeen = after.LastSeen
	assert.Equal(t, after, again)
}

func TestCycle_DuplicatesAreKeptInSnapshot(t *testing.T) {
	r := newRig(t)
	r.run(t, t0, rec("X", "1.00"), rec("Y", "2.00"), rec("X", "1.00"))

	x, y := r.product(t, "X"), r.product(t, "Y")
	snaps := r.snapshots(t)
	require.Len(t, snaps, 1)
	assert.Equal(t, []string{x.ID, y.ID, x.ID}, snaps[0].ProductIDs)
}

func TestCycle_LegacyProductGetsFirstSeen(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	legacy := &domain.Product{Name: "Old", Price: 100, Quantity: 1, ItemID: "L", SourceID: "gone", LastSeen: t0.Add(-time.Hour)}
	require.NoError(t, r.catalog.InsertProduct(ctx, legacy))

	t1 := t0.Add(time.Hour)
	r.run(t, t1, rec("L", "1.00"))

	p := r.product(t, "L")
	require.NotNil(t, p.FirstSeen)
	assert.True(t, p.FirstSeen.Equal(t1))
	assert.True(t, p.LastSeen.Equal(t1))
	assertSeenOrder(t, r, "L")
}

func TestCycle_EmptyScrapeAborts(t *testing.T) {
	r := newRig(t)

	r.producer.records = nil
	_, err := r.cycle.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmptyScrape)

	r.producer.err = errors.New("http 503")
	_, err = r.cycle.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmptyScrape)

	_, err = r.catalog.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound, "a failed scrape must not touch the catalog")
	_, err = r.catalog.FindSourceByName(context.Background(), "main")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, r.observer.summaries)
}

func TestCycle_RejectsOverlappingRuns(t *testing.T) {
	r := newRig(t)
	r.cycle.mu.Lock()
	_, err := r.cycle.Run(context.Background())
	r.cycle.mu.Unlock()
	assert.ErrorIs(t, err, ErrCycleRunning)
}

func TestEngine_UpdateSkipsUnknownProducts(t *testing.T) {
	r := newRig(t)
	r.run(t, t0, rec("X", "1.00"))

	s, err := r.engine.UpdateProducts(context.Background(), []domain.ScrapedRecord{rec("X", "1.00"), rec("Q", "2.00")})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Skipped)

	_, err = r.catalog.FindProductByItemID(context.Background(), "Q")
	assert.ErrorIs(t, err, storage.ErrNotFound, "the update path must never create products")
}

func TestEngine_UnresolvableSource(t *testing.T) {
	r := newRig(t)
	bad := rec("X", "1.00")
	bad.SourceName = ""

	_, err := r.engine.UpdateProducts(context.Background(), []domain.ScrapedRecord{bad})
	assert.Error(t, err)
}
