package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

// state is everything the store holds. WithinTx works on a clone of it.
type state struct {
	medicines    map[string]domain.Medicine
	transactions []domain.Transaction // append order
}

func (s *state) clone() *state {
	c := &state{
		medicines:    make(map[string]domain.Medicine, len(s.medicines)),
		transactions: make([]domain.Transaction, len(s.transactions)),
	}
	for id, m := range s.medicines {
		c.medicines[id] = m
	}
	copy(c.transactions, s.transactions)
	return c
}

// MemoryStore implements store.Store with in-memory storage.
type MemoryStore struct {
	mu    sync.RWMutex
	state *state
}

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		state: &state{medicines: make(map[string]domain.Medicine)},
	}
}

func (s *MemoryStore) Inventory() store.Inventory {
	return &inventory{access: committed{s}}
}

func (s *MemoryStore) Transactions() store.Transactions {
	return &transactions{access: committed{s}}
}

// WithinTx holds the write lock for the whole unit, so every sale is serialised.
// Changes are made on a copy that replaces the committed state only on success.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(txView{staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// access abstracts over the locked committed state and a staged transaction state.
type access interface {
	read(fn func(st *state))
	write(fn func(st *state) error) error
}

type committed struct{ s *MemoryStore }

func (c committed) read(fn func(st *state)) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	fn(c.s.state)
}

func (c committed) write(fn func(st *state) error) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return fn(c.s.state)
}

// staged is used inside WithinTx, which already holds the write lock.
type staged struct{ st *state }

func (t staged) read(fn func(st *state)) { fn(t.st) }
func (t staged) write(fn func(st *state) error) error { return fn(t.st) }

type txView struct{ st *state }

func (v txView) Inventory() store.Inventory {
	return &inventory{access: staged{v.st}}
}

func (v txView) Transactions() store.Transactions {
	return &transactions{access: staged{v.st}}
}

type inventory struct {
	access access
}

func (r *inventory) Get(ctx context.Context, id string) (*domain.Medicine, error) {
	var (
		m  domain.Medicine
		ok bool
	)
	r.access.read(func(st *state) {
		m, ok = st.medicines[id]
	})
	if !ok {
		return nil, domain.ErrNotFound
	}
	m = m.Clone()
	return &m, nil
}

func (r *inventory) List(ctx context.Context) ([]domain.Medicine, error) {
	var result []domain.Medicine
	r.access.read(func(st *state) {
		result = make([]domain.Medicine, 0, len(st.medicines))
		for _, m := range st.medicines {
			result = append(result, m.Clone())
		}
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (r *inventory) Insert(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	m = m.Clone()
	err := r.access.write(func(st *state) error {
		if _, exists := st.medicines[m.ID]; exists {
			return fmt.Errorf("medicine %q already exists", m.ID)
		}
		st.medicines[m.ID] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := m.Clone()
	return &out, nil
}

func (r *inventory) Update(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	m = m.Clone()
	err := r.access.write(func(st *state) error {
		existing, ok := st.medicines[m.ID]
		if !ok {
			return domain.ErrNotFound
		}
		m.CreatedAt = existing.CreatedAt
		st.medicines[m.ID] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := m.Clone()
	return &out, nil
}

func (r *inventory) Delete(ctx context.Context, id string) error {
	return r.access.write(func(st *state) error {
		if _, ok := st.medicines[id]; !ok {
			return domain.ErrNotFound
		}
		delete(st.medicines, id)
		return nil
	})
}

func (r *inventory) DecrementStock(ctx context.Context, id string, amount int) (int, error) {
	var remaining int
	err := r.access.write(func(st *state) error {
		m, ok := st.medicines[id]
		if !ok {
			return domain.ErrNotFound
		}
		if m.Stock < amount {
			return domain.ErrInsufficientStock
		}
		m.Stock -= amount
		st.medicines[id] = m
		remaining = m.Stock
		return nil
	})
	return remaining, err
}

type transactions struct {
	access access
}

func (r *transactions) Append(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	stored := tx.Clone()
	err := r.access.write(func(st *state) error {
		for _, existing := range st.transactions {
			if existing.ID == stored.ID {
				return fmt.Errorf("transaction %q already exists", stored.ID)
			}
		}
		st.transactions = append(st.transactions, stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	result := stored.Clone()
	return &result, nil
}

func (r *transactions) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	var (
		found domain.Transaction
		ok    bool
	)
	r.access.read(func(st *state) {
		for _, t := range st.transactions {
			if t.ID == id {
				found, ok = t.Clone(), true
				return
			}
		}
	})
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &found, nil
}

func (r *transactions) List(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	var result []domain.Transaction
	r.access.read(func(st *state) {
		// walk backwards so equal timestamps keep newest-appended first
		for i := len(st.transactions) - 1; i >= 0; i-- {
			t := st.transactions[i]
			if filter.Match(t.CreatedAt) {
				result = append(result, t.Clone())
			}
		}
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}
