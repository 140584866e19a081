package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// Committer turns an active sale into stock decrements plus one ledger
// record, all inside a single store transaction.
type Committer struct {
	store  store.DocumentStore
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

func NewCommitter(st store.DocumentStore, loc *time.Location) *Committer {
	if loc == nil {
		loc = time.Local
	}
	return &Committer{
		store:  st,
		loc:    loc,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// Commit decrements the stock of every line and appends the sale record.
// Either every write applies or none does. The sale itself is not modified.
func (c *Committer) Commit(ctx context.Context, sale *ActiveSale) (*models.SaleRecord, []models.StockChange, error) {
	ctx, span := util.StartSpan(ctx, "Committer.Commit")
	defer span.End()

	lines := sale.Lines()
	if len(lines) == 0 {
		return nil, nil, ErrEmptySale
	}

	record := models.SaleRecord{
		Day:    c.now().In(c.loc).Format(store.DayLayout),
		Totals: ComputeTotals(lines, sale.DiscountPercent()),
		Items:  make([]models.SaleItem, 0, len(lines)),
	}
	for _, l := range lines {
		record.Items = append(record.Items, models.SaleItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	var changes []models.StockChange
	start := time.Now()

	err := c.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		changes = make([]models.StockChange, 0, len(lines))

		for _, l := range lines {
			doc, err := tx.Get(ctx, store.ProductsCollection, l.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				return &ProductVanishedError{ProductID: l.ProductID, Name: l.Name}
			}
			if err != nil {
				return err
			}

			current, err := store.StockFromFields(l.ProductID, doc.Fields)
			if err != nil {
				return err
			}
			remaining := current - l.Quantity
			if remaining < 0 {
				return &InsufficientStockError{ProductID: l.ProductID, Name: l.Name, Available: current, Requested: l.Quantity}
			}
			changes = append(changes, models.StockChange{ProductID: l.ProductID, Previous: current, Stock: remaining})
		}

		for _, ch := range changes {
			tx.Update(store.ProductsCollection, ch.ProductID, map[string]interface{}{store.FieldStock: ch.Stock})
		}
		record.ID = tx.Insert(store.SalesCollection, store.SaleRecordFields(record))
		return nil
	})
	util.CommitLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.RecordError(span, err)
		switch {
		case errors.Is(err, ErrProductVanished):
			util.SalesFailedTotal.WithLabelValues("product_vanished").Inc()
			return nil, nil, err
		case errors.Is(err, ErrInsufficientStock):
			util.SalesFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, nil, err
		case errors.Is(err, store.ErrTxConflict):
			util.SalesFailedTotal.WithLabelValues("conflict").Inc()
		default:
			util.SalesFailedTotal.WithLabelValues("store_error").Inc()
		}
		return nil, nil, &StoreUnavailableError{Op: "commit sale", Err: err}
	}

	c.readBackTimestamp(ctx, &record)

	util.SalesCommittedTotal.Inc()
	util.SaleAmountTotal.Add(record.Totals.FinalTotal.InexactFloat64())
	c.logger.Info("Sale committed",
		zap.String("sale_id", record.ID),
		zap.String("day", record.Day),
		zap.String("final_total", record.Totals.FinalTotal.String()),
		zap.Int("lines", len(record.Items)))

	return &record, changes, nil
}

// readBackTimestamp fills in the store-assigned timestamp, falling back to
// the local clock when the record cannot be read.
func (c *Committer) readBackTimestamp(ctx context.Context, record *models.SaleRecord) {
	doc, err := c.store.Get(ctx, store.SalesCollection, record.ID)
	if err == nil {
		var saved models.SaleRecord
		if saved, err = store.SaleRecordFromDocument(doc); err == nil && !saved.Timestamp.IsZero() {
			record.Timestamp = saved.Timestamp
			return
		}
	}
	record.Timestamp = c.now().UTC()
	c.logger.Warn("Could not read back sale timestamp, using local clock",
		zap.String("sale_id", record.ID),
		zap.Error(err))
}
