package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/store/memory"
	"pos-service/internal/util"
)

var (
	art = time.FixedZone("ART", -3*3600)
	// 2026-03-05 22:30 in ART, already the 6th in UTC
	testNow = time.Date(2026, 3, 6, 1, 30, 0, 0, time.UTC)
)

func TestMain(m *testing.M) {
	util.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

func fixedClock() time.Time { return testNow }

func newSeededStore() *memory.Store {
	return memory.NewSeeded(memory.WithClock(fixedClock), memory.WithMaxAttempts(1000))
}

func loadedCatalog(t *testing.T, st store.DocumentStore) *Catalog {
	t.Helper()
	c := NewCatalog(st)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func product(t *testing.T, c *Catalog, id string) models.Product {
	t.Helper()
	p, ok := c.FindByID(id)
	if !ok {
		t.Fatalf("product %s not in catalog", id)
	}
	return p
}

func stockOf(t *testing.T, st store.DocumentStore, id string) int {
	t.Helper()
	doc, err := st.Get(context.Background(), store.ProductsCollection, id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	stock, err := store.StockFromFields(id, doc.Fields)
	if err != nil {
		t.Fatalf("stock of %s: %v", id, err)
	}
	return stock
}

var errBackendDown = errors.New("backend down")

// failingStore wraps a store and fails selected operations
type failingStore struct {
	store.DocumentStore
	failList bool
	failTx   bool
}

func (f *failingStore) List(ctx context.Context, collection string, opts ...store.QueryOption) ([]store.Document, error) {
	if f.failList {
		return nil, errBackendDown
	}
	return f.DocumentStore.List(ctx, collection, opts...)
}

func (f *failingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if f.failTx {
		return errBackendDown
	}
	return f.DocumentStore.RunTransaction(ctx, fn)
}

type recordingPublisher struct {
	mu    sync.Mutex
	sales []*models.SaleCommittedEvent
	stock []*models.StockAdjustedEvent
}

func (p *recordingPublisher) PublishSaleCommitted(_ context.Context, event *models.SaleCommittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sales = append(p.sales, event)
	return nil
}

func (p *recordingPublisher) PublishStockAdjusted(_ context.Context, event *models.StockAdjustedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stock = append(p.stock, event)
	return nil
}

type memoryCache struct {
	mu            sync.Mutex
	entries       map[string]*models.SalesSummary
	generation    int64
	gets          int
	invalidations int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]*models.SalesSummary{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (*models.SalesSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.entries[key]
	return s, ok, nil
}

func (c *memoryCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value *models.SalesSummary, _ time.Duration, generation int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false, nil
	}
	c.entries[key] = value
	return true, nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*models.SalesSummary{}
	c.generation++
	c.invalidations++
	return nil
}

type busyGuard struct{}

func (busyGuard) Acquire(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, nil
}
