package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/internal/store"
)

// Store implements store.Store on top of sqlx. Queries are written with ?
// placeholders and rebound, so the same code serves sqlite and postgres.
type Store struct {
	db *sqlx.DB
}

// New wraps an open, migrated database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Inventory() store.Inventory {
	return &inventoryRepo{q: s.db}
}

func (s *Store) Transactions() store.Transactions {
	return &transactionRepo{q: s.db}
}

// WithinTx runs fn inside a database transaction, committing only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type txStore struct {
	tx *sqlx.Tx
}

func (t txStore) Inventory() store.Inventory {
	return &inventoryRepo{q: t.tx}
}

func (t txStore) Transactions() store.Transactions {
	return &transactionRepo{q: t.tx}
}
