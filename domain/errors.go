package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrUnknownMedicine   = errors.New("unknown medicine")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("persistence failure")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UnknownMedicineError is returned when a cart line names a medicine that does not exist.
type UnknownMedicineError struct {
	MedicineID string
}

func (e *UnknownMedicineError) Error() string {
	return fmt.Sprintf("unknown medicine %q", e.MedicineID)
}

func (e *UnknownMedicineError) Is(target error) bool { return target == ErrUnknownMedicine }

// InsufficientStockError names the medicine that could not cover the requested quantity.
type InsufficientStockError struct {
	MedicineID string
	Requested  int
	Available  int
}

// Shortfall is the number of units missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %q: requested %d, available %d, short by %d",
		e.MedicineID, e.Requested, e.Available, e.Shortfall())
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// PersistenceError wraps a storage fault. The failed operation made no persisted changes.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
