package reconcile

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
	"github.com/bauhaus93/wishlist-scrape/internal/storage"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupCatalog(t *testing.T) *storage.BadgerCatalog {
	t.Helper()
	c, err := storage.NewBadgerCatalog(t.TempDir(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c
}

func rec(itemID, price string) domain.ScrapedRecord {
	return domain.ScrapedRecord{
		Name:       "Product " + itemID,
		Price:      decimal.RequireFromString(price),
		Quantity:   1,
		Stars:      4.5,
		URL:        "https://shop.test/dp/" + itemID,
		ImageURL:   "https://img.test/" + itemID + ".jpg",
		ItemID:     itemID,
		SourceName: "main",
		SourceURL:  "https://shop.test/wishlist/main",
	}
}

// stubProducer returns fixed records, or err.
type stubProducer struct {
	records []domain.ScrapedRecord
	err     error
}

func (p *stubProducer) Scrape(ctx context.Context, sources []domain.SourceSpec) ([]domain.ScrapedRecord, error) {
	return p.records, p.err
}

// recordingObserver keeps every notification.
type recordingObserver struct {
	mu        sync.Mutex
	created   []domain.Product
	changes   map[string][]domain.FieldChange
	summaries []Summary
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{changes: map[string][]domain.FieldChange{}}
}

func (o *recordingObserver) ProductCreated(ctx context.Context, p domain.Product) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, p)
}

func (o *recordingObserver) ProductUpdated(ctx context.Context, before domain.Product, changes []domain.FieldChange, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes[before.ItemID] = append(o.changes[before.ItemID], changes...)
}

func (o *recordingObserver) CycleCompleted(ctx context.Context, s Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, s)
}

func (o *recordingObserver) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = nil
	o.changes = map[string][]domain.FieldChange{}
	o.summaries = nil
}

// testRig wires a cycle on a fresh catalog with a settable clock.
type testRig struct {
	catalog  *storage.BadgerCatalog
	producer *stubProducer
	observer *recordingObserver
	engine   *Engine
	cycle    *Cycle
	clock    time.Time
}

func newRig(t *testing.T) *testRig {
	r := &testRig{
		catalog:  setupCatalog(t),
		producer: &stubProducer{},
		observer: newRecordingObserver(),
		clock:    t0,
	}
	log := quietLogger()
	r.engine = NewEngine(r.catalog, log, r.observer, NewHistoryRecorder(r.catalog, log))
	r.engine.now = func() time.Time { return r.clock }
	r.cycle = NewCycle(r.producer, r.catalog, r.engine, []domain.SourceSpec{{Name: "main"}}, log)
	return r
}

func (r *testRig) run(t *testing.T, at time.Time, records ...domain.ScrapedRecord) Summary {
	t.Helper()
	r.clock = at
	r.producer.records = records
	r.producer.err = nil
	s, err := r.cycle.Run(context.Background())
	require.NoError(t, err)
	return s
}

func (r *testRig) product(t *testing.T, itemID string) domain.Product {
	t.Helper()
	p, err := r.catalog.FindProductByItemID(context.Background(), itemID)
	require.NoError(t, err)
	return *p
}

func (r *testRig) snapshots(t *testing.T) []domain.Snapshot {
	t.Helper()
	s, err := r.catalog.ListSnapshots(context.Background(), 0)
	require.NoError(t, err)
	return s
}

// assertSeenOrder checks first_seen <= last_seen on every given product.
func assertSeenOrder(t *testing.T, r *testRig, itemIDs ...string) {
	t.Helper()
	for _, id := range itemIDs {
		p := r.product(t, id)
		if assert.NotNil(t, p.FirstSeen, "product %s", id) {
			assert.False(t, p.LastSeen.Before(*p.FirstSeen), "product %s: last_seen before first_seen", id)
		}
	}
}
