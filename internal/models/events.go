package models

import "time"

// Event types
const (
	EventTypeSaleCommitted = "SALE_COMMITTED"
	EventTypeStockAdjusted = "STOCK_ADJUSTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCommittedEvent published after a sale is written to the ledger
type SaleCommittedEvent struct {
	BaseEvent
	TerminalID string        `json:"terminal_id"`
	SaleID     string        `json:"sale_id"`
	Day        string        `json:"day"`
	FinalTotal string        `json:"final_total"`
	Items      []SaleItem    `json:"items"`
	Stock      []StockChange `json:"stock"`
}

// StockAdjustedEvent published when the back office writes a stock value
type StockAdjustedEvent struct {
	BaseEvent
	Change StockChange `json:"change"`
	Reason string      `json:"reason"`
}
