package store

import (
	"context"
	"errors"
)

// Collections
const (
	ProductsCollection = "products"
	SalesCollection    = "sales"
)

// DefaultMaxAttempts bounds how many times RunTransaction re-runs a
// transaction function after a conflict.
const DefaultMaxAttempts = 5

var (
	ErrNotFound       = errors.New("document not found")
	ErrTxConflict     = errors.New("transaction conflict: too many attempts")
	ErrReadAfterWrite = errors.New("transaction reads must precede writes")
	ErrInvalidQuery   = errors.New("invalid query")
)

type serverTimestamp struct{}

// ServerTimestamp is a field value the store replaces with its own clock
// when the document is written.
var ServerTimestamp interface{} = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel
func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Document is a stored document: an opaque id plus its field map
type Document struct {
	ID     string
	Fields map[string]interface{}
}

// DocumentStore is the remote source of truth for products and sale records.
type DocumentStore interface {
	List(ctx context.Context, collection string, opts ...QueryOption) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Insert(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction runs fn with snapshot reads and applies its buffered
	// writes atomically. On a conflict with a concurrent writer the whole
	// function is run again; an error returned by fn aborts without writes
	// and is returned unchanged.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}

// Tx is the view of a store inside RunTransaction
type Tx interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Update(collection, id string, fields map[string]interface{})
	Insert(collection string, fields map[string]interface{}) string
}

// Query holds list options
type Query struct {
	OrderBy    string
	Descending bool
	Filters    []Filter
}

// Filter restricts List to documents whose Field is >= Value
type Filter struct {
	Field string
	Value interface{}
}

type QueryOption func(*Query)

// OrderBy sorts ascending by a field
func OrderBy(field string) QueryOption {
	return func(q *Query) {
		q.OrderBy = field
		q.Descending = false
	}
}

// OrderByDesc sorts descending by a field
func OrderByDesc(field string) QueryOption {
	return func(q *Query) {
		q.OrderBy = field
		q.Descending = true
	}
}

// WhereGTE keeps documents with field >= value
func WhereGTE(field string, value interface{}) QueryOption {
	return func(q *Query) {
		q.Filters = append(q.Filters, Filter{Field: field, Value: value})
	}
}

// BuildQuery applies options to an empty query
func BuildQuery(opts ...QueryOption) Query {
	var q Query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// ValidField reports whether a field name is safe to use in a query
func ValidField(field string) bool {
	if field == "" || len(field) > 64 {
		return false
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// Validate checks that every field referenced by the query is safe
func (q Query) Validate() error {
	if q.OrderBy != "" && !ValidField(q.OrderBy) {
		return ErrInvalidQuery
	}
	for _, f := range q.Filters {
		if !ValidField(f.Field) {
			return ErrInvalidQuery
		}
	}
	return nil
}
