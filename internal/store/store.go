package store

import (
	"context"
	"time"

	"pharmapos/m/domain"
)

// Inventory defines storage operations on medicines.
type Inventory interface {
	// Get returns domain.ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*domain.Medicine, error)

	// List returns every medicine ordered by name.
	List(ctx context.Context) ([]domain.Medicine, error)

	Insert(ctx context.Context, m domain.Medicine) (*domain.Medicine, error)

	// Update overwrites all mutable fields of an existing medicine.
	Update(ctx context.Context, m domain.Medicine) (*domain.Medicine, error)

	Delete(ctx context.Context, id string) error

	// DecrementStock subtracts amount only when the stock covers it, as one atomic step.
	// Returns domain.ErrNotFound or domain.ErrInsufficientStock without changing anything.
	DecrementStock(ctx context.Context, id string, amount int) (remaining int, err error)
}

// TransactionFilter narrows a history listing to From <= created_at < To.
// Nil bounds and a zero Limit mean unbounded.
type TransactionFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// Match reports whether a record created at ts falls inside the filter bounds.
func (f TransactionFilter) Match(ts time.Time) bool {
	if f.From != nil && ts.Before(*f.From) {
		return false
	}
	if f.To != nil && !ts.Before(*f.To) {
		return false
	}
	return true
}

// Transactions is the append-only sales history.
type Transactions interface {
	// Append stores the header and its lines together. The record must pass Validate.
	Append(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

	Get(ctx context.Context, id string) (*domain.Transaction, error)

	// List returns matching records newest first with their lines inlined.
	List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
}

// Tx exposes the stores bound to one unit of work.
type Tx interface {
	Inventory() Inventory
	Transactions() Transactions
}

// Store is the root persistence handle.
type Store interface {
	Tx

	// WithinTx runs fn as one atomic unit: every change made through the Tx
	// is committed when fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
