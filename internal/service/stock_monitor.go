package service

import (
	"context"

	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/util"
)

// StockMonitor reacts to sale and stock events coming back from the broker
type StockMonitor struct {
	history *History
	logger  *zap.Logger
}

func NewStockMonitor(history *History) *StockMonitor {
	return &StockMonitor{history: history, logger: util.GetLogger()}
}

// HandleSaleCommitted drops cached summaries and reports products that the
// sale sold out.
func (m *StockMonitor) HandleSaleCommitted(ctx context.Context, event *models.SaleCommittedEvent) error {
	ctx, span := util.StartSpan(ctx, "StockMonitor.HandleSaleCommitted")
	defer span.End()

	m.logger.Info("Sale event received",
		zap.String("event_id", event.EventID),
		zap.String("sale_id", event.SaleID),
		zap.String("terminal_id", event.TerminalID),
		zap.String("final_total", event.FinalTotal))

	if m.history != nil {
		if err := m.history.Invalidate(ctx); err != nil {
			return err
		}
	}

	for _, ch := range event.Stock {
		m.checkSoldOut(ch, "sale")
	}
	return nil
}

func (m *StockMonitor) HandleStockAdjusted(ctx context.Context, event *models.StockAdjustedEvent) error {
	_, span := util.StartSpan(ctx, "StockMonitor.HandleStockAdjusted")
	defer span.End()

	m.checkSoldOut(event.Change, event.Reason)
	return nil
}

func (m *StockMonitor) checkSoldOut(ch models.StockChange, source string) {
	if ch.Stock == 0 && ch.Previous > 0 {
		util.SoldOutTotal.WithLabelValues(source).Inc()
		m.logger.Warn("Product sold out",
			zap.String("product_id", ch.ProductID),
			zap.String("source", source))
	}
}
