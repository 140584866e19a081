package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry as stored in the products collection
type Product struct {
	ID          string   `mapstructure:"-" json:"id"`
	Name        string   `mapstructure:"name" json:"name"`
	Brand       string   `mapstructure:"brand" json:"brand"`
	Price       int64    `mapstructure:"price" json:"price"`
	Stock       int      `mapstructure:"stock" json:"stock"`
	Barcodes    []string `mapstructure:"barcode" json:"barcodes"`
	Description string   `mapstructure:"description" json:"description"`
	Category    string   `mapstructure:"category" json:"category"`
	Images      []string `mapstructure:"images" json:"images"`
	Shipping    []string `mapstructure:"shipping" json:"shipping"`
	Details     []string `mapstructure:"details" json:"details"`
}

// SaleLine is one line of an in-progress sale. Name and UnitPrice are
// captured when the line is created and never re-read from the catalog.
type SaleLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns unit price times quantity
func (l SaleLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// SaleTotals holds the computed totals of a sale
type SaleTotals struct {
	TotalBeforeDiscount int64           `json:"total_before_discount"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	FinalTotal          decimal.Decimal `json:"final_total"`
}

// SaleItem is the ledger snapshot of a sold line
type SaleItem struct {
	ProductID string `mapstructure:"productId" json:"product_id"`
	Name      string `mapstructure:"name" json:"name"`
	UnitPrice int64  `mapstructure:"unitPrice" json:"unit_price"`
	Quantity  int    `mapstructure:"quantity" json:"quantity"`
}

// SaleRecord is an immutable ledger entry written once per committed sale
type SaleRecord struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Day       string     `json:"day"`
	Totals    SaleTotals `json:"totals"`
	Items     []SaleItem `json:"items"`
}

// StockChange describes a stock value written by a commit or an admin edit
type StockChange struct {
	ProductID string `json:"product_id"`
	Previous  int    `json:"previous"`
	Stock     int    `json:"stock"`
}

// InventoryStats summarizes the catalog for the back office
type InventoryStats struct {
	Total      int   `json:"total"`
	InStock    int   `json:"in_stock"`
	OutOfStock int   `json:"out_of_stock"`
	StockValue int64 `json:"stock_value"`
}

// DaySummary is one day-bucket of the sales dashboard
type DaySummary struct {
	Day     string          `json:"day"`
	Total   decimal.Decimal `json:"total"`
	Count   int             `json:"count"`
	Records []SaleRecord    `json:"records"`
}

// ProductRank is a top-sold product entry
type ProductRank struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// SalesSummary is the aggregated view over a trailing window of days.
// Days are ordered oldest first.
type SalesSummary struct {
	From         string          `json:"from"`
	To           string          `json:"to"`
	Days         []DaySummary    `json:"days"`
	TopProducts  []ProductRank   `json:"top_products"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	Transactions int             `json:"transactions"`
	Skipped      int             `json:"skipped"`
}

// Day returns the bucket for the given day string
func (s *SalesSummary) Day(day string) (DaySummary, bool) {
	for _, d := range s.Days {
		if d.Day == day {
			return d, true
		}
	}
	return DaySummary{}, false
}

// NewestFirst returns the day buckets in display order
func (s *SalesSummary) NewestFirst() []DaySummary {
	out := make([]DaySummary, len(s.Days))
	for i, d := range s.Days {
		out[len(s.Days)-1-i] = d
	}
	return out
}
