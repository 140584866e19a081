package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"pos-service/internal/models"
)

// Product fields
const (
	FieldName        = "name"
	FieldBrand       = "brand"
	FieldPrice       = "price"
	FieldStock       = "stock"
	FieldBarcode     = "barcode"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldImages      = "images"
	FieldShipping    = "shipping"
	FieldDetails     = "details"
)

// Sale record fields
const (
	FieldTimestamp           = "timestamp"
	FieldDay                 = "dayString"
	FieldTotalBeforeDiscount = "totalBeforeDiscount"
	FieldDiscountAmount      = "discountAmount"
	FieldDiscountPercent     = "discountPercent"
	FieldFinalTotal          = "finalTotal"
	FieldItems               = "items"

	itemFieldProductID = "productId"
	itemFieldName      = "name"
	itemFieldUnitPrice = "unitPrice"
	itemFieldQuantity  = "quantity"
)

// DayLayout is the layout of the day string stored with each sale record
const DayLayout = "2006-01-02"

// FieldError reports a document field that could not be decoded
type FieldError struct {
	ID     string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("document %s: field %q %s", e.ID, e.Field, e.Reason)
}

// ProductFromDocument decodes a products document. Barcodes are stored
// comma-joined and come back as a list.
func ProductFromDocument(doc Document) (models.Product, error) {
	var p models.Product
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return models.Product{}, err
	}
	if err := decoder.Decode(doc.Fields); err != nil {
		return models.Product{}, fmt.Errorf("failed to decode product %s: %w", doc.ID, err)
	}

	p.ID = doc.ID
	p.Barcodes = cleanList(p.Barcodes)
	p.Images = cleanList(p.Images)
	p.Shipping = cleanList(p.Shipping)
	p.Details = cleanList(p.Details)
	return p, nil
}

// ProductFields encodes a product into its stored field map
func ProductFields(p models.Product) map[string]interface{} {
	return map[string]interface{}{
		FieldName:        strings.TrimSpace(p.Name),
		FieldBrand:       strings.TrimSpace(p.Brand),
		FieldPrice:       p.Price,
		FieldStock:       p.Stock,
		FieldBarcode:     strings.Join(cleanList(p.Barcodes), ","),
		FieldDescription: p.Description,
		FieldCategory:    p.Category,
		FieldImages:      cleanList(p.Images),
		FieldShipping:    cleanList(p.Shipping),
		FieldDetails:     cleanList(p.Details),
	}
}

// StockFromFields reads the stock field; a missing value counts as zero
func StockFromFields(id string, fields map[string]interface{}) (int, error) {
	raw, ok := fields[FieldStock]
	if !ok || raw == nil {
		return 0, nil
	}
	stock, err := cast.ToIntE(raw)
	if err != nil {
		return 0, &FieldError{ID: id, Field: FieldStock, Reason: "is not a number"}
	}
	return stock, nil
}

// SaleRecordFields encodes a sale record. Money is written as decimal
// strings; a zero timestamp is written as ServerTimestamp.
func SaleRecordFields(r models.SaleRecord) map[string]interface{} {
	items := make([]interface{}, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, map[string]interface{}{
			itemFieldProductID: item.ProductID,
			itemFieldName:      item.Name,
			itemFieldUnitPrice: item.UnitPrice,
			itemFieldQuantity:  item.Quantity,
		})
	}

	var ts interface{} = ServerTimestamp
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC()
	}

	return map[string]interface{}{
		FieldTimestamp:           ts,
		FieldDay:                 r.Day,
		FieldTotalBeforeDiscount: r.Totals.TotalBeforeDiscount,
		FieldDiscountAmount:      r.Totals.DiscountAmount.String(),
		FieldDiscountPercent:     r.Totals.DiscountPercent.String(),
		FieldFinalTotal:          r.Totals.FinalTotal.String(),
		FieldItems:               items,
	}
}

// SaleRecordFromDocument decodes a sales document. It returns a *FieldError
// when a required field is missing or malformed.
func SaleRecordFromDocument(doc Document) (models.SaleRecord, error) {
	rec := models.SaleRecord{ID: doc.ID}
	f := doc.Fields

	day, err := cast.ToStringE(f[FieldDay])
	if err != nil || strings.TrimSpace(day) == "" {
		return rec, &FieldError{ID: doc.ID, Field: FieldDay, Reason: "is missing"}
	}
	if _, err := time.Parse(DayLayout, day); err != nil {
		return rec, &FieldError{ID: doc.ID, Field: FieldDay, Reason: "is not a YYYY-MM-DD day"}
	}
	rec.Day = day

	rawItems, ok := f[FieldItems]
	if !ok || rawItems == nil {
		return rec, &FieldError{ID: doc.ID, Field: FieldItems, Reason: "is missing"}
	}
	list, err := cast.ToSliceE(rawItems)
	if err != nil {
		return rec, &FieldError{ID: doc.ID, Field: FieldItems, Reason: "is not a list"}
	}
	rec.Items = make([]models.SaleItem, 0, len(list))
	for i, raw := range list {
		item, err := decodeSaleItem(raw)
		if err != nil {
			return rec, &FieldError{ID: doc.ID, Field: fmt.Sprintf("%s[%d]", FieldItems, i), Reason: err.Error()}
		}
		rec.Items = append(rec.Items, item)
	}

	if rec.Totals.TotalBeforeDiscount, err = optionalInt64(f, FieldTotalBeforeDiscount); err != nil {
		return rec, &FieldError{ID: doc.ID, Field: FieldTotalBeforeDiscount, Reason: "is not a number"}
	}
	if rec.Totals.DiscountAmount, err = optionalDecimal(f, FieldDiscountAmount); err != nil {
		return rec, &FieldError{ID: doc.ID, Field: FieldDiscountAmount, Reason: "is not a number"}
	}
	if rec.Totals.DiscountPercent, err = optionalDecimal(f, FieldDiscountPercent); err != nil {
		return rec, &FieldError{ID: doc.ID, Field: FieldDiscountPercent, Reason: "is not a number"}
	}
	if rec.Totals.FinalTotal, err = optionalDecimal(f, FieldFinalTotal); err != nil {
		return rec, &FieldError{ID: doc.ID, Field: FieldFinalTotal, Reason: "is not a number"}
	}

	if raw, ok := f[FieldTimestamp]; ok && raw != nil {
		if ts, err := cast.ToTimeE(raw); err == nil {
			rec.Timestamp = ts.UTC()
		}
	}

	return rec, nil
}

func decodeSaleItem(raw interface{}) (models.SaleItem, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return models.SaleItem{}, fmt.Errorf("is not an object")
	}
	name, err := cast.ToStringE(m[itemFieldName])
	if err != nil || name == "" {
		return models.SaleItem{}, fmt.Errorf("has no name")
	}
	if q, ok := m[itemFieldQuantity]; ok && q != nil {
		if _, err := cast.ToIntE(q); err != nil {
			return models.SaleItem{}, fmt.Errorf("has a non-numeric quantity")
		}
	}

	var item models.SaleItem
	if err := mapstructure.WeakDecode(m, &item); err != nil {
		return models.SaleItem{}, fmt.Errorf("cannot be decoded: %v", err)
	}
	return item, nil
}

func optionalInt64(f map[string]interface{}, field string) (int64, error) {
	raw, ok := f[field]
	if !ok || raw == nil {
		return 0, nil
	}
	return cast.ToInt64E(raw)
}

func optionalDecimal(f map[string]interface{}, field string) (decimal.Decimal, error) {
	raw, ok := f[field]
	if !ok || raw == nil {
		return decimal.Zero, nil
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case float32, float64:
		// older records hold plain numbers
		n, err := cast.ToFloat64E(v)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(n), nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
