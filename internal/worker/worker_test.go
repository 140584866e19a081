package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/store/memory"
)

type countingCache struct {
	invalidations int
}

func (c *countingCache) Get(context.Context, string) (*models.SalesSummary, bool, error) {
	return nil, false, nil
}

func (c *countingCache) Generation(context.Context) (int64, error) {
	return int64(c.invalidations), nil
}

func (c *countingCache) Set(context.Context, string, *models.SalesSummary, time.Duration, int64) (bool, error) {
	return true, nil
}

func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return nil
}

func TestSaleCommittedInvalidatesSummaries(t *testing.T) {
	c := &countingCache{}
	history := service.NewHistory(memory.New(), c, service.NewAggregator(time.UTC, 5, 0), time.Minute)
	handler := NewEventHandler(service.NewStockMonitor(history))

	payload, err := json.Marshal(&models.SaleCommittedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeSaleCommitted, Timestamp: time.Now()},
		SaleID:    "sale-1",
		Stock:     []models.StockChange{{ProductID: "prd-cinta", Previous: 1, Stock: 0}},
	})
	require.NoError(t, err)

	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	assert.Equal(t, 1, c.invalidations)
}

func TestUnknownEventIgnored(t *testing.T) {
	handler := NewEventHandler(service.NewStockMonitor(nil))
	payload := []byte(`{"event_id":"x","event_type":"SOMETHING_ELSE"}`)
	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: payload}))
}

func TestMalformedEventRejected(t *testing.T) {
	handler := NewEventHandler(service.NewStockMonitor(nil))
	assert.Error(t, handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
}

func TestStockAdjustedHandled(t *testing.T) {
	handler := NewEventHandler(service.NewStockMonitor(nil))
	payload, err := json.Marshal(&models.StockAdjustedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeStockAdjusted},
		Change:    models.StockChange{ProductID: "prd-cinta", Previous: 2, Stock: 0},
		Reason:    "set",
	})
	require.NoError(t, err)
	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: payload}))
}
