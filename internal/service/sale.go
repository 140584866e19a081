package service

import (
	"math"

	"github.com/shopspring/decimal"

	"pos-service/internal/models"
)

const maxDiscountPercent = 100.0

var hundred = decimal.NewFromInt(100)

// ActiveSale is the in-progress sale of one terminal. Lines keep insertion
// order and hold one entry per product.
type ActiveSale struct {
	lines    []models.SaleLine
	discount decimal.Decimal
}

func NewActiveSale() *ActiveSale {
	return &ActiveSale{}
}

// AddLine adds one unit of the product. The resulting quantity may not
// exceed the product's cached stock.
func (s *ActiveSale) AddLine(p models.Product) error {
	for i := range s.lines {
		if s.lines[i].ProductID != p.ID {
			continue
		}
		requested := s.lines[i].Quantity + 1
		if requested > p.Stock {
			return &InsufficientStockError{ProductID: p.ID, Name: s.lines[i].Name, Available: p.Stock, Requested: requested}
		}
		s.lines[i].Quantity = requested
		return nil
	}

	if p.Stock < 1 {
		return &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: 1}
	}
	s.lines = append(s.lines, models.SaleLine{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
	})
	return nil
}

// RemoveLine drops the whole line for a product
func (s *ActiveSale) RemoveLine(productID string) bool {
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return true
		}
	}
	return false
}

// SetDiscountPercent stores p clamped into [0,100] and returns the applied
// value. An out-of-range p also yields an *InvalidDiscountError.
func (s *ActiveSale) SetDiscountPercent(p float64) (decimal.Decimal, error) {
	applied := p
	switch {
	case math.IsNaN(p):
		applied = 0
	case p < 0:
		applied = 0
	case p > maxDiscountPercent:
		applied = maxDiscountPercent
	}

	s.discount = decimal.NewFromFloat(applied)
	if applied != p {
		return s.discount, &InvalidDiscountError{Requested: p, Applied: applied}
	}
	return s.discount, nil
}

func (s *ActiveSale) DiscountPercent() decimal.Decimal {
	return s.discount
}

// Clear empties the sale and resets the discount
func (s *ActiveSale) Clear() {
	s.lines = nil
	s.discount = decimal.Zero
}

// Lines returns a copy of the lines in insertion order
func (s *ActiveSale) Lines() []models.SaleLine {
	out := make([]models.SaleLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *ActiveSale) IsEmpty() bool {
	return len(s.lines) == 0
}

func (s *ActiveSale) Totals() models.SaleTotals {
	return ComputeTotals(s.lines, s.discount)
}

// ComputeTotals applies a percentage discount to the sum of the lines. The
// discount amount is rounded to two places and the final total never goes
// below zero.
func ComputeTotals(lines []models.SaleLine, percent decimal.Decimal) models.SaleTotals {
	var before int64
	for _, l := range lines {
		before += l.Subtotal()
	}

	gross := decimal.NewFromInt(before)
	discount := gross.Mul(percent).Div(hundred).Round(2)
	final := gross.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return models.SaleTotals{
		TotalBeforeDiscount: before,
		DiscountPercent:     percent,
		DiscountAmount:      discount,
		FinalTotal:          final,
	}
}
