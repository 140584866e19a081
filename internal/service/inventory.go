package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// Inventory is the back-office view of the products collection
type Inventory struct {
	store     store.DocumentStore
	publisher EventPublisher
	logger    *zap.Logger
}

func NewInventory(st store.DocumentStore, publisher EventPublisher) *Inventory {
	return &Inventory{
		store:     st,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// List returns products in name order, narrowed by the admin filter
func (i *Inventory) List(ctx context.Context, query string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Inventory.List")
	defer span.End()

	products, err := i.all(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(products, query), nil
}

func (i *Inventory) all(ctx context.Context) ([]models.Product, error) {
	docs, err := i.store.List(ctx, store.ProductsCollection, store.OrderBy(store.FieldName))
	if err != nil {
		return nil, &StoreUnavailableError{Op: "list products", Err: err}
	}

	products := make([]models.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := store.ProductFromDocument(doc)
		if err != nil {
			i.logger.Warn("Skipping undecodable product", zap.String("product_id", doc.ID), zap.Error(err))
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (i *Inventory) Get(ctx context.Context, id string) (models.Product, error) {
	doc, err := i.store.Get(ctx, store.ProductsCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return models.Product{}, &StoreUnavailableError{Op: "get product", Err: err}
	}
	return store.ProductFromDocument(doc)
}

// Create validates and inserts a product; the store assigns the id
func (i *Inventory) Create(ctx context.Context, p models.Product) (models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Inventory.Create")
	defer span.End()

	if err := validateProduct(p); err != nil {
		return models.Product{}, err
	}
	id, err := i.store.Insert(ctx, store.ProductsCollection, store.ProductFields(p))
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to create product: %w", err)
	}
	i.logger.Info("Product created", zap.String("product_id", id), zap.String("name", p.Name))
	return i.Get(ctx, id)
}

// Update replaces every editable field of a product
func (i *Inventory) Update(ctx context.Context, id string, p models.Product) (models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Inventory.Update")
	defer span.End()

	if err := validateProduct(p); err != nil {
		return models.Product{}, err
	}
	err := i.store.Update(ctx, store.ProductsCollection, id, store.ProductFields(p))
	if errors.Is(err, store.ErrNotFound) {
		return models.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	return i.Get(ctx, id)
}

func (i *Inventory) Delete(ctx context.Context, id string) error {
	err := i.store.Delete(ctx, store.ProductsCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	i.logger.Info("Product deleted", zap.String("product_id", id))
	return nil
}

func (i *Inventory) Stats(ctx context.Context) (models.InventoryStats, error) {
	products, err := i.all(ctx)
	if err != nil {
		return models.InventoryStats{}, err
	}
	return inventoryStats(products), nil
}

// SetStock writes an absolute stock value
func (i *Inventory) SetStock(ctx context.Context, id string, stock int) (models.StockChange, error) {
	if stock < 0 {
		return models.StockChange{}, fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	return i.writeStock(ctx, id, "set", func(models.Product, int) (int, error) {
		return stock, nil
	})
}

// AdjustStock adds delta to the current stock. A result below zero is
// rejected with an *InsufficientStockError.
func (i *Inventory) AdjustStock(ctx context.Context, id string, delta int) (models.StockChange, error) {
	return i.writeStock(ctx, id, "adjust", func(p models.Product, current int) (int, error) {
		next := current + delta
		if next < 0 {
			return 0, &InsufficientStockError{ProductID: id, Name: p.Name, Available: current, Requested: -delta}
		}
		return next, nil
	})
}

func (i *Inventory) writeStock(ctx context.Context, id, kind string, next func(p models.Product, current int) (int, error)) (models.StockChange, error) {
	ctx, span := util.StartSpan(ctx, "Inventory.WriteStock")
	defer span.End()

	var change models.StockChange
	err := i.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(ctx, store.ProductsCollection, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		if err != nil {
			return err
		}
		p, err := store.ProductFromDocument(doc)
		if err != nil {
			return err
		}
		stock, err := next(p, p.Stock)
		if err != nil {
			return err
		}
		tx.Update(store.ProductsCollection, id, map[string]interface{}{store.FieldStock: stock})
		change = models.StockChange{ProductID: id, Previous: p.Stock, Stock: stock}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return models.StockChange{}, err
	}

	util.StockAdjustmentsTotal.WithLabelValues(kind).Inc()
	i.logger.Info("Stock written",
		zap.String("product_id", id),
		zap.Int("previous", change.Previous),
		zap.Int("stock", change.Stock))

	if i.publisher != nil {
		event := &models.StockAdjustedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockAdjusted,
				Timestamp: time.Now(),
			},
			Change: change,
			Reason: kind,
		}
		if err := i.publisher.PublishStockAdjusted(ctx, event); err != nil {
			i.logger.Error("Failed to publish StockAdjusted event", zap.Error(err))
		}
	}
	return change, nil
}

func validateProduct(p models.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	return nil
}
