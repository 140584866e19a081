package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/store"
)

func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Location = art
	return cfg
}

func openSession(t *testing.T, deps Dependencies, cfg SessionConfig) *Session {
	t.Helper()
	s := NewSession("t1", deps, cfg)
	require.NoError(t, s.Open(context.Background()))
	return s
}

func TestSearchIgnoresShortQueries(t *testing.T) {
	s := openSession(t, Dependencies{Store: newSeededStore()}, testSessionConfig())

	result, err := s.Search(context.Background(), " a ")
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
	assert.Nil(t, result.Added)
	assert.Equal(t, 0, result.Matches)
}

func TestSearchBarcodeAddsLine(t *testing.T) {
	s := openSession(t, Dependencies{Store: newSeededStore()}, testSessionConfig())
	ctx := context.Background()

	result, err := s.Search(ctx, "7791234000011")
	require.NoError(t, err)
	assert.True(t, result.ByBarcode)
	require.NotNil(t, result.Added)
	assert.Equal(t, "prd-martillo-azul", result.Added.ProductID)
	assert.Equal(t, 1, result.Added.Quantity)

	result, err = s.Search(ctx, "779-1234-000-011")
	require.NoError(t, err)
	require.NotNil(t, result.Added)
	assert.Equal(t, 2, result.Added.Quantity)
	assert.Len(t, result.Sale.Lines, 1)
	assert.Equal(t, int64(17000), result.Sale.Totals.TotalBeforeDiscount)
}

func TestSearchBarcodeOutOfStock(t *testing.T) {
	s := openSession(t, Dependencies{Store: newSeededStore()}, testSessionConfig())

	result, err := s.Search(context.Background(), "7791234000066")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.True(t, result.ByBarcode)
	assert.Empty(t, result.Sale.Lines)
}

func TestSearchKeywordSuggestionsAreCapped(t *testing.T) {
	cfg := testSessionConfig()
	cfg.SuggestionLimit = 1
	s := openSession(t, Dependencies{Store: newSeededStore()}, cfg)

	result, err := s.Search(context.Background(), "alimento")
	require.NoError(t, err)
	assert.False(t, result.ByBarcode)
	assert.Equal(t, 2, result.Matches)
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, "Alimento Gato 7.5kg", result.Suggestions[0].Name)
	assert.Empty(t, result.Sale.Lines)
}

func TestAddRemoveAndDiscount(t *testing.T) {
	s := openSession(t, Dependencies{Store: newSeededStore()}, testSessionConfig())

	_, err := s.AddProduct("missing")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = s.AddProduct("prd-destornillador")
	require.NoError(t, err)
	view, err := s.AddProduct("prd-martillo-rojo")
	require.NoError(t, err)
	assert.Len(t, view.Lines, 2)

	view, applied, err := s.SetDiscountPercent(150)
	assert.ErrorIs(t, err, ErrInvalidDiscount)
	assert.Equal(t, "100", applied.String())
	assert.True(t, view.Totals.FinalTotal.IsZero())

	view, applied, err = s.SetDiscountPercent(10)
	require.NoError(t, err)
	assert.Equal(t, "10", applied.String())
	assert.Equal(t, "10350", view.Totals.FinalTotal.String())

	view, err = s.RemoveLine("prd-martillo-rojo")
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1)

	_, err = s.RemoveLine("prd-martillo-rojo")
	assert.ErrorIs(t, err, ErrProductNotFound)

	view = s.Clear()
	assert.Empty(t, view.Lines)
	assert.True(t, view.Totals.FinalTotal.IsZero())
}

func TestSessionCommit(t *testing.T) {
	st := newSeededStore()
	publisher := &recordingPublisher{}
	c := newMemoryCache()
	history := NewHistory(st, c, newTestAggregator(), 0)
	s := openSession(t, Dependencies{Store: st, Publisher: publisher, History: history}, testSessionConfig())
	ctx := context.Background()

	_, err := s.AddProduct("prd-alimento-gato")
	require.NoError(t, err)
	_, err = s.AddProduct("prd-alimento-gato")
	require.NoError(t, err)

	result, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Record.ID)
	assert.Empty(t, result.Sale.Lines)
	assert.Equal(t, 3, stockOf(t, st, "prd-alimento-gato"))
	assert.Equal(t, 3, product(t, s.catalog, "prd-alimento-gato").Stock)

	require.Len(t, publisher.sales, 1)
	event := publisher.sales[0]
	assert.Equal(t, "t1", event.TerminalID)
	assert.Equal(t, result.Record.ID, event.SaleID)
	assert.Equal(t, "59000", event.FinalTotal)
	assert.Equal(t, 1, c.invalidations)

	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, ErrEmptySale)
}

func TestSessionCommitFailureKeepsSale(t *testing.T) {
	st := newSeededStore()
	s := openSession(t, Dependencies{Store: st}, testSessionConfig())
	ctx := context.Background()

	_, err := s.AddProduct("prd-alimento-perro")
	require.NoError(t, err)

	// another terminal sells the last units first
	require.NoError(t, st.Update(ctx, store.ProductsCollection, "prd-alimento-perro", map[string]interface{}{store.FieldStock: 0}))

	_, err = s.Commit(ctx)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)

	view := s.View()
	assert.Len(t, view.Lines, 1)

	view, err = s.RefreshCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1)
	assert.Equal(t, 0, product(t, s.catalog, "prd-alimento-perro").Stock)
}

func TestSessionCommitInProgress(t *testing.T) {
	s := openSession(t, Dependencies{Store: newSeededStore(), Guard: busyGuard{}}, testSessionConfig())

	_, err := s.AddProduct("prd-cinta")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	_, err = s.AddProduct("prd-destornillador")
	require.NoError(t, err)

	_, err = s.Commit(context.Background())
	assert.ErrorIs(t, err, ErrCommitInProgress)
	assert.Len(t, s.View().Lines, 1)
}

func TestSessionOpenFailure(t *testing.T) {
	st := &failingStore{DocumentStore: newSeededStore(), failList: true}
	s := NewSession("t1", Dependencies{Store: st}, testSessionConfig())

	err := s.Open(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 0, s.View().CatalogSize)
}
