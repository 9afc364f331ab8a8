package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
)

func TestNeedsNewSnapshot(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	needed, err := NeedsNewSnapshot(ctx, r.catalog, []domain.ScrapedRecord{rec("A", "1")})
	require.NoError(t, err)
	assert.True(t, needed, "an empty catalog always needs a first snapshot")

	r.run(t, t0, rec("A", "1"), rec("B", "2"), rec("C", "3"))

	tests := []struct {
		name    string
		records []domain.ScrapedRecord
		want    bool
	}{
		{"same ids", []domain.ScrapedRecord{rec("A", "1"), rec("B", "2"), rec("C", "3")}, false},
		{"reordered with duplicates", []domain.ScrapedRecord{rec("C", "3"), rec("A", "1"), rec("C", "3"), rec("B", "2"), rec("A", "1")}, false},
		{"price and quantity changes only", func() []domain.ScrapedRecord {
			a := rec("A", "99.99")
			a.Quantity = 7
			return []domain.ScrapedRecord{a, rec("B", "2"), rec("C", "3")}
		}(), false},
		{"one id replaced", []domain.ScrapedRecord{rec("A", "1"), rec("B", "2"), rec("D", "3")}, true},
		{"one id removed", []domain.ScrapedRecord{rec("A", "1"), rec("B", "2")}, true},
		{"one id added", []domain.ScrapedRecord{rec("A", "1"), rec("B", "2"), rec("C", "3"), rec("D", "4")}, true},
		{"empty scrape", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			needed, err := NeedsNewSnapshot(ctx, r.catalog, tc.records)
			require.NoError(t, err)
			assert.Equal(t, tc.want, needed)
		})
	}
}

func TestNeedsNewSnapshot_UnfilledSnapshot(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	// a snapshot left without products, e.g. after a crash mid-cycle
	require.NoError(t, r.catalog.InsertSnapshot(ctx, &domain.Snapshot{Timestamp: t0}))

	needed, err := NeedsNewSnapshot(ctx, r.catalog, []domain.ScrapedRecord{rec("A", "1")})
	require.NoError(t, err)
	assert.True(t, needed)
}
