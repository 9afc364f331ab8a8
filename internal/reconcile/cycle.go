package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
	"github.com/bauhaus93/wishlist-scrape/internal/scraper"
	"github.com/bauhaus93/wishlist-scrape/internal/storage"
)

var (
	// ErrEmptyScrape aborts a cycle whose scrape produced nothing. An empty result
	// means the scrape broke, never that the wishlist became empty.
	ErrEmptyScrape = errors.New("scrape returned no products")

	// ErrCycleRunning is returned when a cycle is started while another one is active.
	ErrCycleRunning = errors.New("a reconciliation cycle is already running")
)

// Cycle runs scrape, change detection and reconciliation once per call.
type Cycle struct {
	producer scraper.Producer
	catalog  storage.Catalog
	engine   *Engine
	sources  []domain.SourceSpec
	log      logrus.FieldLogger

	mu sync.Mutex
}

func NewCycle(producer scraper.Producer, catalog storage.Catalog, engine *Engine, sources []domain.SourceSpec, logger logrus.FieldLogger) *Cycle {
	return &Cycle{
		producer: producer,
		catalog:  catalog,
		engine:   engine,
		sources:  sources,
		log:      logger.WithField("component", "cycle"),
	}
}

// Run executes one cycle. No store mutation happens when the scrape fails.
func (c *Cycle) Run(ctx context.Context) (Summary, error) {
	if !c.mu.TryLock() {
		return Summary{}, ErrCycleRunning
	}
	defer c.mu.Unlock()

	c.log.Info("Start scraping of wishlists...")
	records, err := c.producer.Scrape(ctx, c.sources)
	if err != nil || len(records) == 0 {
		c.log.WithError(err).Error("Couldn't scrape wishlists!")
		if err != nil {
			return Summary{}, fmt.Errorf("%w: %w", ErrEmptyScrape, err)
		}
		return Summary{}, ErrEmptyScrape
	}
	c.log.WithField("products", len(records)).Info("Wishlists successfully scraped")

	needed, err := NeedsNewSnapshot(ctx, c.catalog, records)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	if needed {
		c.log.Info("Wishlist changed, add new snapshot")
		summary, err = c.engine.CreateSnapshot(ctx, records)
	} else {
		c.log.Info("Wishlist didn't change, only check for product updates")
		summary, err = c.engine.UpdateProducts(ctx, records)
	}
	if err != nil {
		c.log.WithError(err).Error("Reconciliation aborted")
		return summary, err
	}
	c.engine.completed(ctx, summary)
	return summary, nil
}
