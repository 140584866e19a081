package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

func newTestAggregator() *Aggregator {
	a := NewAggregator(art, 5, 0)
	a.now = fixedClock
	return a
}

func saleDoc(id, day string, final int64, items ...models.SaleItem) store.Document {
	rec := models.SaleRecord{
		Timestamp: testNow,
		Day:       day,
		Totals:    models.SaleTotals{TotalBeforeDiscount: final, FinalTotal: decimal.NewFromInt(final)},
		Items:     items,
	}
	return store.Document{ID: id, Fields: store.SaleRecordFields(rec)}
}

func item(name string, qty int) models.SaleItem {
	return models.SaleItem{ProductID: "prd-" + name, Name: name, UnitPrice: 100, Quantity: qty}
}

func TestAggregateZeroFill(t *testing.T) {
	summary := newTestAggregator().Aggregate(nil, 7)

	require.Len(t, summary.Days, 7)
	for _, d := range summary.Days {
		assert.True(t, d.Total.IsZero())
		assert.Zero(t, d.Count)
		assert.Empty(t, d.Records)
	}
	assert.Equal(t, "2026-02-27", summary.Days[0].Day)
	assert.Equal(t, "2026-03-05", summary.Days[6].Day)
	assert.Equal(t, "2026-02-27", summary.From)
	assert.Equal(t, "2026-03-05", summary.To)
	assert.Empty(t, summary.TopProducts)
	assert.True(t, summary.GrandTotal.IsZero())
}

func TestAggregateBucketsAndDropsOutOfWindow(t *testing.T) {
	docs := []store.Document{
		saleDoc("s1", "2026-03-05", 1000, item("Martillo", 1)),
		saleDoc("s2", "2026-03-05", 500, item("Cinta", 2)),
		saleDoc("s3", "2026-02-27", 300, item("Martillo", 3)),
		saleDoc("old", "2026-02-26", 9999, item("Viejo", 50)),
		saleDoc("future", "2026-03-06", 9999, item("Futuro", 50)),
	}

	summary := newTestAggregator().Aggregate(docs, 7)

	today, ok := summary.Day("2026-03-05")
	require.True(t, ok)
	assert.Equal(t, 2, today.Count)
	assert.True(t, today.Total.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, []string{"s1", "s2"}, []string{today.Records[0].ID, today.Records[1].ID})

	first, _ := summary.Day("2026-02-27")
	assert.Equal(t, 1, first.Count)

	_, ok = summary.Day("2026-02-26")
	assert.False(t, ok)

	assert.Equal(t, 3, summary.Transactions)
	assert.True(t, summary.GrandTotal.Equal(decimal.NewFromInt(1800)))
	assert.Equal(t, []models.ProductRank{{Name: "Martillo", Quantity: 4}, {Name: "Cinta", Quantity: 2}}, summary.TopProducts)
	assert.Zero(t, summary.Skipped)
}

func TestAggregateSkipsMalformedRecords(t *testing.T) {
	docs := []store.Document{
		saleDoc("ok", "2026-03-04", 700, item("Martillo", 1)),
		{ID: "no-day", Fields: map[string]interface{}{store.FieldItems: []interface{}{}}},
		{ID: "no-items", Fields: map[string]interface{}{store.FieldDay: "2026-03-04"}},
		{ID: "bad-item", Fields: map[string]interface{}{
			store.FieldDay:   "2026-03-04",
			store.FieldItems: []interface{}{"not an object"},
		}},
	}

	summary := newTestAggregator().Aggregate(docs, 7)

	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 1, summary.Transactions)
	day, _ := summary.Day("2026-03-04")
	assert.True(t, day.Total.Equal(decimal.NewFromInt(700)))
}

func TestAggregateTopProductsStableAndTruncated(t *testing.T) {
	var items []models.SaleItem
	for i := 1; i <= 7; i++ {
		items = append(items, item(fmt.Sprintf("P%d", i), 1))
	}
	items[5].Quantity = 3 // P6

	summary := newTestAggregator().Aggregate([]store.Document{saleDoc("s", "2026-03-05", 100, items...)}, 7)

	require.Len(t, summary.TopProducts, 5)
	assert.Equal(t, "P6", summary.TopProducts[0].Name)
	assert.Equal(t, []string{"P1", "P2", "P3", "P4"}, []string{
		summary.TopProducts[1].Name,
		summary.TopProducts[2].Name,
		summary.TopProducts[3].Name,
		summary.TopProducts[4].Name,
	})
}

func TestNewestFirst(t *testing.T) {
	summary := newTestAggregator().Aggregate(nil, 3)
	days := summary.NewestFirst()
	require.Len(t, days, 3)
	assert.Equal(t, "2026-03-05", days[0].Day)
	assert.Equal(t, "2026-03-03", days[2].Day)
	assert.Equal(t, "2026-03-03", summary.Days[0].Day)
}

func TestWindowStart(t *testing.T) {
	start := newTestAggregator().WindowStart(7)
	assert.Equal(t, time.Date(2026, 2, 26, 0, 0, 0, 0, art), start)
	assert.True(t, start.Equal(time.Date(2026, 2, 26, 3, 0, 0, 0, time.UTC)))
}

func TestAggregateDefaultsWindow(t *testing.T) {
	summary := newTestAggregator().Aggregate(nil, 0)
	assert.Len(t, summary.Days, DefaultWindowDays)
}
