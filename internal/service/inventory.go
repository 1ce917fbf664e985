package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

// MedicineFilter narrows ListMedicines. Query matches name or category, case-insensitively.
type MedicineFilter struct {
	Query        string
	InStockOnly  bool
	LowStockOnly bool
}

func (f MedicineFilter) match(m domain.Medicine) bool {
	if f.InStockOnly && m.Stock <= 0 {
		return false
	}
	if f.LowStockOnly && !m.IsLowStock() {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Category), q)
}

func (s *Service) AddMedicine(ctx context.Context, draft domain.MedicineDraft) (*domain.Medicine, error) {
	m := draft.Build(s.newID(), s.timestamp())
	if err := m.Validate(); err != nil {
		return nil, err
	}

	created, err := s.store.Inventory().Insert(ctx, m)
	if err != nil {
		return nil, storeErr("insert medicine", err)
	}
	s.logger.Info("medicine added", zap.String("medicine_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

// UpdateMedicine merges the patch into the stored medicine inside one store transaction.
func (s *Service) UpdateMedicine(ctx context.Context, id string, patch domain.MedicinePatch) (*domain.Medicine, error) {
	var updated *domain.Medicine
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.Inventory().Get(ctx, id)
		if err != nil {
			return fmt.Errorf("medicine %q: %w", id, err)
		}

		next := patch.Apply(*current, s.timestamp())
		if err := next.Validate(); err != nil {
			return err
		}

		updated, err = tx.Inventory().Update(ctx, next)
		return err
	})
	if err != nil {
		return nil, storeErr("update medicine", err)
	}
	s.logger.Info("medicine updated", zap.String("medicine_id", id))
	return updated, nil
}

// DeleteMedicine removes the medicine. Past transactions keep their snapshots.
func (s *Service) DeleteMedicine(ctx context.Context, id string) error {
	if err := s.store.Inventory().Delete(ctx, id); err != nil {
		return storeErr("delete medicine", fmt.Errorf("medicine %q: %w", id, err))
	}
	s.logger.Info("medicine deleted", zap.String("medicine_id", id))
	return nil
}

func (s *Service) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	m, err := s.store.Inventory().Get(ctx, id)
	if err != nil {
		return nil, storeErr("get medicine", fmt.Errorf("medicine %q: %w", id, err))
	}
	return m, nil
}

// ListMedicines returns the matching medicines ordered by name.
func (s *Service) ListMedicines(ctx context.Context, filter MedicineFilter) ([]domain.Medicine, error) {
	all, err := s.store.Inventory().List(ctx)
	if err != nil {
		return nil, storeErr("list medicines", err)
	}

	out := make([]domain.Medicine, 0, len(all))
	for _, m := range all {
		if filter.match(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Service) LowStockMedicines(ctx context.Context) ([]domain.Medicine, error) {
	return s.ListMedicines(ctx, MedicineFilter{LowStockOnly: true})
}

// ExpiringMedicines returns medicines expiring within the next days days, soonest first.
// Already expired medicines are included.
func (s *Service) ExpiringMedicines(ctx context.Context, days int) ([]domain.Medicine, error) {
	if days < 0 {
		return nil, &domain.ValidationError{Field: "days", Message: "must not be negative"}
	}

	all, err := s.store.Inventory().List(ctx)
	if err != nil {
		return nil, storeErr("list medicines", err)
	}

	cutoff := startOfDay(s.now()).AddDate(0, 0, days)
	out := make([]domain.Medicine, 0)
	for _, m := range all {
		if m.ExpiresBy(cutoff) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiryDate.Before(*out[j].ExpiryDate)
	})
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
