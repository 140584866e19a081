package service

import (
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrProductVanished       = errors.New("product no longer exists")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidDiscount       = errors.New("discount out of range")
	ErrMalformedLedgerRecord = errors.New("malformed ledger record")
	ErrEmptySale             = errors.New("sale has no lines")
	ErrProductNotFound       = errors.New("product not found")
	ErrCommitInProgress      = errors.New("commit already in progress")
	ErrInvalidProduct        = errors.New("invalid product")
	ErrSessionNotFound       = errors.New("session not found")
)

// StoreUnavailableError wraps a failed catalog load or ledger query
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// ProductVanishedError reports a sale line whose product was deleted
type ProductVanishedError struct {
	ProductID string
	Name      string
}

func (e *ProductVanishedError) Error() string {
	return fmt.Sprintf("product %q (%s) no longer exists", e.Name, e.ProductID)
}

func (e *ProductVanishedError) Is(target error) bool { return target == ErrProductVanished }

// InsufficientStockError is returned both by the local add-time check and by
// the transactional commit check.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidDiscountError carries the rejected value and the one applied instead
type InvalidDiscountError struct {
	Requested float64
	Applied   float64
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("discount %g%% out of range [0,100], applied %g%%", e.Requested, e.Applied)
}

func (e *InvalidDiscountError) Is(target error) bool { return target == ErrInvalidDiscount }

// MalformedLedgerRecordError identifies a sale record skipped by aggregation
type MalformedLedgerRecordError struct {
	RecordID string
	Err      error
}

func (e *MalformedLedgerRecordError) Error() string {
	return fmt.Sprintf("malformed ledger record %s: %v", e.RecordID, e.Err)
}

func (e *MalformedLedgerRecordError) Is(target error) bool { return target == ErrMalformedLedgerRecord }

func (e *MalformedLedgerRecordError) Unwrap() error { return e.Err }
