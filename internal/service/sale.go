package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/events"
	"pharmapos/m/internal/store"
)

// ProcessSale validates the cart, decrements stock and records the transaction
// as one atomic unit. On any error nothing is persisted.
func (s *Service) ProcessSale(ctx context.Context, cart []domain.CartLine) (*domain.Transaction, error) {
	lines, err := mergeCart(cart)
	if err != nil {
		return nil, err
	}

	record := domain.Transaction{ID: s.newID(), CreatedAt: s.timestamp()}
	remaining := make(map[string]int, len(lines))

	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		record.Lines = record.Lines[:0]
		inventory := tx.Inventory()

		medicines := make([]domain.Medicine, len(lines))
		for i, line := range lines {
			m, err := inventory.Get(ctx, line.MedicineID)
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.UnknownMedicineError{MedicineID: line.MedicineID}
			}
			if err != nil {
				return storeErr("load medicine", err)
			}
			medicines[i] = *m
		}

		for i, line := range lines {
			if medicines[i].Stock < line.Quantity {
				return &domain.InsufficientStockError{
					MedicineID: line.MedicineID,
					Requested:  line.Quantity,
					Available:  medicines[i].Stock,
				}
			}
		}

		for i, line := range lines {
			left, err := inventory.DecrementStock(ctx, line.MedicineID, line.Quantity)
			switch {
			case errors.Is(err, domain.ErrInsufficientStock):
				return s.shortage(ctx, inventory, line)
			case errors.Is(err, domain.ErrNotFound):
				return &domain.UnknownMedicineError{MedicineID: line.MedicineID}
			case err != nil:
				return storeErr("decrement stock", err)
			}
			remaining[line.MedicineID] = left
			record.Lines = append(record.Lines, domain.TransactionLine{
				MedicineID:   line.MedicineID,
				Quantity:     line.Quantity,
				PriceAtSale:  medicines[i].UnitPrice,
				NameSnapshot: medicines[i].Name,
			})
		}

		record.TotalAmount = record.ComputeTotal()
		if _, err := tx.Transactions().Append(ctx, record); err != nil {
			return &domain.PersistenceError{Op: "append transaction", Err: err}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("sale rejected", zap.String("transaction_id", record.ID), zap.Error(err))
		return nil, storeErr("process sale", err)
	}

	s.logger.Info("sale completed",
		zap.String("transaction_id", record.ID),
		zap.String("total", record.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(record.Lines)))

	event := events.NewSaleCompleted(s.newID(), record, remaining)
	if err := s.publisher.PublishSaleCompleted(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("failed to publish sale event", zap.String("transaction_id", record.ID), zap.Error(err))
	}

	out := record.Clone()
	return &out, nil
}

// shortage re-reads the medicine after a conditional decrement lost a race.
// The reported availability stays below the request even if the competing
// sale has since rolled back.
func (s *Service) shortage(ctx context.Context, inventory store.Inventory, line domain.CartLine) error {
	available := 0
	m, err := inventory.Get(ctx, line.MedicineID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return &domain.UnknownMedicineError{MedicineID: line.MedicineID}
	case err != nil:
		return storeErr("load medicine", err)
	default:
		available = min(m.Stock, line.Quantity-1)
	}
	return &domain.InsufficientStockError{
		MedicineID: line.MedicineID,
		Requested:  line.Quantity,
		Available:  available,
	}
}

// mergeCart validates the cart and folds repeated medicines into one line,
// keeping the position of the first occurrence.
func mergeCart(cart []domain.CartLine) ([]domain.CartLine, error) {
	if len(cart) == 0 {
		return nil, &domain.ValidationError{Field: "cart_lines", Message: "must contain at least one line"}
	}

	merged := make([]domain.CartLine, 0, len(cart))
	index := make(map[string]int, len(cart))
	for _, line := range cart {
		id := strings.TrimSpace(line.MedicineID)
		if id == "" {
			return nil, &domain.ValidationError{Field: "medicine_id", Message: "is required"}
		}
		if line.Quantity <= 0 {
			return nil, &domain.ValidationError{Field: "quantity", Message: "must be greater than zero"}
		}
		if i, ok := index[id]; ok {
			if merged[i].Quantity > math.MaxInt-line.Quantity {
				return nil, &domain.ValidationError{Field: "quantity", Message: "total for " + id + " is too large"}
			}
			merged[i].Quantity += line.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, domain.CartLine{MedicineID: id, Quantity: line.Quantity})
	}
	return merged, nil
}
