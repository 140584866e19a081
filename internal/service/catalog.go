package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// Catalog is a terminal's mirror of the products collection. It is owned by
// one session and is not safe for concurrent use on its own.
type Catalog struct {
	store    store.DocumentStore
	logger   *zap.Logger
	now      func() time.Time
	products []models.Product
	index    map[string]int
	loadedAt time.Time
}

// NewCatalog creates an empty catalog backed by the given store
func NewCatalog(st store.DocumentStore) *Catalog {
	return &Catalog{
		store:  st,
		logger: util.GetLogger(),
		now:    time.Now,
		index:  map[string]int{},
	}
}

// Load replaces the snapshot with every product ordered by name. On failure
// the previous snapshot is kept.
func (c *Catalog) Load(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "Catalog.Load")
	defer span.End()

	docs, err := c.store.List(ctx, store.ProductsCollection, store.OrderBy(store.FieldName))
	if err != nil {
		util.CatalogLoadsTotal.WithLabelValues("failed").Inc()
		util.RecordError(span, err)
		return &StoreUnavailableError{Op: "load catalog", Err: err}
	}

	products := make([]models.Product, 0, len(docs))
	index := make(map[string]int, len(docs))
	for _, doc := range docs {
		p, err := store.ProductFromDocument(doc)
		if err != nil {
			c.logger.Warn("Skipping undecodable product",
				zap.String("product_id", doc.ID),
				zap.Error(err))
			continue
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}

	c.products = products
	c.index = index
	c.loadedAt = c.now()

	util.CatalogLoadsTotal.WithLabelValues("ok").Inc()
	util.CatalogSize.Set(float64(len(products)))
	c.logger.Debug("Catalog loaded", zap.Int("products", len(products)))
	return nil
}

// FindByID returns the cached product
func (c *Catalog) FindByID(id string) (models.Product, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.Product{}, false
	}
	return c.products[i], true
}

// Products returns the snapshot in name order
func (c *Catalog) Products() []models.Product {
	out := make([]models.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Len() int {
	return len(c.products)
}

// LoadedAt is the zero time until the first successful Load
func (c *Catalog) LoadedAt() time.Time {
	return c.loadedAt
}

// ApplyStock patches a cached stock value. Call it only with a value the
// store has confirmed.
func (c *Catalog) ApplyStock(id string, stock int) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.products[i].Stock = stock
	return true
}

// Stats summarizes the snapshot
func (c *Catalog) Stats() models.InventoryStats {
	return inventoryStats(c.products)
}

func inventoryStats(products []models.Product) models.InventoryStats {
	var stats models.InventoryStats
	stats.Total = len(products)
	for _, p := range products {
		if p.Stock > 0 {
			stats.InStock++
		} else {
			stats.OutOfStock++
		}
		if p.Stock > 0 && p.Price > 0 {
			stats.StockValue += p.Price * int64(p.Stock)
		}
	}
	return stats
}
