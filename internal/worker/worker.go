package worker

import (
	"context"

	"go.uber.org/zap"

	"pos-service/internal/broker"
	"pos-service/internal/service"
	"pos-service/internal/util"
)

// SaleEventWorker consumes the sale events topic and feeds the stock monitor
type SaleEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSaleEventWorker creates a new sale event worker
func NewSaleEventWorker(consumer *broker.Consumer, monitor *service.StockMonitor) *SaleEventWorker {
	return &SaleEventWorker{
		consumer:     consumer,
		eventHandler: NewEventHandler(monitor),
		logger:       util.GetLogger(),
	}
}

// NewEventHandler wires the monitor callbacks into a broker handler
func NewEventHandler(monitor *service.StockMonitor) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleCommitted(monitor.HandleSaleCommitted)
	eventHandler.OnStockAdjusted(monitor.HandleStockAdjusted)
	return eventHandler
}

// Start starts the worker
func (w *SaleEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sale event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SaleEventWorker) Stop() error {
	w.logger.Info("Stopping sale event worker")
	return w.consumer.Close()
}
