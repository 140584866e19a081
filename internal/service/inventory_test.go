package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

func TestInventoryListFilter(t *testing.T) {
	inv := NewInventory(newSeededStore(), nil)
	ctx := context.Background()

	all, err := inv.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 6)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"keywords are ANDed", "martillo stanley", []string{"Martillo Azul"}},
		{"punctuation is stripped", "alimento, gato!", []string{"Alimento Gato 7.5kg"}},
		{"barcode substring", "000-036", []string{"Destornillador Phillips"}},
		{"no match", "taladro", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inv.List(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestInventoryCreateUpdateDelete(t *testing.T) {
	st := newSeededStore()
	inv := NewInventory(st, nil)
	ctx := context.Background()

	created, err := inv.Create(ctx, models.Product{
		Name:     " Taladro Percutor ",
		Brand:    "Black+Decker",
		Price:    65000,
		Stock:    3,
		Barcodes: []string{"7791234000097", " "},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Taladro Percutor", created.Name)
	assert.Equal(t, []string{"7791234000097"}, created.Barcodes)

	created.Price = 61000
	updated, err := inv.Update(ctx, created.ID, created)
	require.NoError(t, err)
	assert.Equal(t, int64(61000), updated.Price)

	_, err = inv.Update(ctx, "missing", created)
	assert.ErrorIs(t, err, ErrProductNotFound)

	require.NoError(t, inv.Delete(ctx, created.ID))
	_, err = inv.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, inv.Delete(ctx, created.ID), ErrProductNotFound)
}

func TestInventoryValidation(t *testing.T) {
	inv := NewInventory(newSeededStore(), nil)
	ctx := context.Background()

	for _, p := range []models.Product{
		{Name: "  "},
		{Name: "Lija", Price: -1},
		{Name: "Lija", Stock: -2},
	} {
		_, err := inv.Create(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidProduct)
	}
}

func TestInventorySetAndAdjustStock(t *testing.T) {
	st := newSeededStore()
	publisher := &recordingPublisher{}
	inv := NewInventory(st, publisher)
	ctx := context.Background()

	change, err := inv.SetStock(ctx, "prd-cinta", 25)
	require.NoError(t, err)
	assert.Equal(t, models.StockChange{ProductID: "prd-cinta", Previous: 0, Stock: 25}, change)

	change, err = inv.AdjustStock(ctx, "prd-cinta", -5)
	require.NoError(t, err)
	assert.Equal(t, 20, change.Stock)
	assert.Equal(t, 20, stockOf(t, st, "prd-cinta"))

	_, err = inv.AdjustStock(ctx, "prd-cinta", -21)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 20, stockErr.Available)
	assert.Equal(t, 20, stockOf(t, st, "prd-cinta"))

	_, err = inv.SetStock(ctx, "prd-cinta", -1)
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = inv.SetStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrProductNotFound)

	require.Len(t, publisher.stock, 2)
	assert.Equal(t, "set", publisher.stock[0].Reason)
	assert.Equal(t, "adjust", publisher.stock[1].Reason)
	assert.Equal(t, 25, publisher.stock[1].Change.Previous)
}

func TestInventoryStats(t *testing.T) {
	st := newSeededStore()
	inv := NewInventory(st, nil)
	ctx := context.Background()

	require.NoError(t, st.Delete(ctx, store.ProductsCollection, "prd-martillo-azul"))
	stats, err := inv.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 1, stats.OutOfStock)

	_, err = NewInventory(&failingStore{DocumentStore: st, failList: true}, nil).Stats(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStockMonitor(t *testing.T) {
	c := newMemoryCache()
	monitor := NewStockMonitor(NewHistory(newSeededStore(), c, newTestAggregator(), 0))
	ctx := context.Background()

	err := monitor.HandleSaleCommitted(ctx, &models.SaleCommittedEvent{
		SaleID: "s1",
		Stock:  []models.StockChange{{ProductID: "prd-martillo-rojo", Previous: 1, Stock: 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.invalidations)

	require.NoError(t, monitor.HandleStockAdjusted(ctx, &models.StockAdjustedEvent{
		Change: models.StockChange{ProductID: "prd-cinta", Previous: 0, Stock: 0},
		Reason: "set",
	}))
}
