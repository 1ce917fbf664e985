package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/domain"
)

const medicineColumns = `id, name, category, unit_price, stock, expiry_date, reorder_threshold, created_at, updated_at`

type inventoryRepo struct {
	q sqlx.ExtContext
}

func (r *inventoryRepo) Get(ctx context.Context, id string) (*domain.Medicine, error) {
	var m domain.Medicine
	err := sqlx.GetContext(ctx, r.q, &m, r.q.Rebind(`SELECT `+medicineColumns+` FROM medicines WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query medicine %s: %w", id, err)
	}
	normalizeMedicine(&m)
	return &m, nil
}

func (r *inventoryRepo) List(ctx context.Context) ([]domain.Medicine, error) {
	var medicines []domain.Medicine
	if err := sqlx.SelectContext(ctx, r.q, &medicines, `SELECT `+medicineColumns+` FROM medicines ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	for i := range medicines {
		normalizeMedicine(&medicines[i])
	}
	return medicines, nil
}

func (r *inventoryRepo) Insert(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO medicines (`+medicineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.Name, m.Category, m.UnitPrice, m.Stock, m.ExpiryDate, m.ReorderThreshold, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert medicine %s: %w", m.ID, err)
	}
	return &m, nil
}

func (r *inventoryRepo) Update(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE medicines
		SET name = ?, category = ?, unit_price = ?, stock = ?, expiry_date = ?, reorder_threshold = ?, updated_at = ?
		WHERE id = ?`),
		m.Name, m.Category, m.UnitPrice, m.Stock, m.ExpiryDate, m.ReorderThreshold, m.UpdatedAt, m.ID)
	if err != nil {
		return nil, fmt.Errorf("update medicine %s: %w", m.ID, err)
	}
	if err := expectRow(res); err != nil {
		return nil, err
	}
	return r.Get(ctx, m.ID)
}

func (r *inventoryRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM medicines WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete medicine %s: %w", id, err)
	}
	return expectRow(res)
}

// DecrementStock is a conditional update: the row only matches while stock covers the amount,
// so concurrent sales cannot both pass the check against the same units.
func (r *inventoryRepo) DecrementStock(ctx context.Context, id string, amount int) (int, error) {
	var remaining int
	err := r.q.QueryRowxContext(ctx, r.q.Rebind(`UPDATE medicines SET stock = stock - ?
		WHERE id = ? AND stock >= ?
		RETURNING stock`), amount, id, amount).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("decrement stock of %s: %w", id, err)
	}

	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, r.q.Rebind(`SELECT EXISTS(SELECT 1 FROM medicines WHERE id = ?)`), id); err != nil {
		return 0, fmt.Errorf("check medicine %s: %w", id, err)
	}
	if !exists {
		return 0, domain.ErrNotFound
	}
	return 0, domain.ErrInsufficientStock
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func normalizeMedicine(m *domain.Medicine) {
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	if m.ExpiryDate != nil {
		day := m.ExpiryDate.UTC()
		m.ExpiryDate = &day
	}
}
