package service

import (
	"strings"
	"unicode"

	"pos-service/internal/models"
)

// MatchResult is the outcome of a search. ByBarcode is set when the query
// was an exact code of exactly one product.
type MatchResult struct {
	Products  []models.Product
	ByBarcode bool
}

// Match returns the products for a query: the single product owning the
// query as a barcode, or else every product whose searchable text contains
// all query keywords.
func Match(products []models.Product, query string) []models.Product {
	return Resolve(products, query).Products
}

// Resolve is Match with the matching phase reported
func Resolve(products []models.Product, query string) MatchResult {
	if strings.TrimSpace(query) == "" {
		return MatchResult{}
	}

	if code := normalizeCode(query); code != "" {
		var hit *models.Product
		hits := 0
		for i := range products {
			if hasBarcode(products[i], code) {
				hits++
				hit = &products[i]
			}
		}
		if hits == 1 {
			return MatchResult{Products: []models.Product{*hit}, ByBarcode: true}
		}
	}

	keywords := strings.Fields(strings.ToLower(query))
	var out []models.Product
	for _, p := range products {
		if containsAll(searchableText(p), keywords) {
			out = append(out, p)
		}
	}
	return MatchResult{Products: out}
}

// Filter is the back-office table filter: a product is kept when its text
// contains every punctuation-stripped keyword, or when one of its barcodes
// contains the query code. An empty query keeps everything.
func Filter(products []models.Product, query string) []models.Product {
	if strings.TrimSpace(query) == "" {
		return products
	}

	keywords := strings.Fields(strings.Map(func(r rune) rune {
		if isCodeRune(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, query))
	code := normalizeCode(query)

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if containsAll(searchableText(p), keywords) || barcodeContains(p, code) {
			out = append(out, p)
		}
	}
	return out
}

func searchableText(p models.Product) string {
	return strings.ToLower(p.Name + " " + p.Description + " " + p.Brand)
}

func containsAll(text string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(text, k) {
			return false
		}
	}
	return true
}

func hasBarcode(p models.Product, code string) bool {
	for _, b := range p.Barcodes {
		if normalizeCode(b) == code {
			return true
		}
	}
	return false
}

func barcodeContains(p models.Product, code string) bool {
	if code == "" {
		return false
	}
	for _, b := range p.Barcodes {
		if strings.Contains(normalizeCode(b), code) {
			return true
		}
	}
	return false
}

// normalizeCode keeps only ASCII letters and digits, lower-cased
func normalizeCode(s string) string {
	return strings.Map(func(r rune) rune {
		if isCodeRune(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

func isCodeRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
