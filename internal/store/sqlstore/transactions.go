package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

type transactionRepo struct {
	q sqlx.ExtContext
}

type lineRow struct {
	TransactionID string `db:"transaction_id"`
	LineNo        int    `db:"line_no"`
	domain.TransactionLine
}

// Append writes the header and every line. Callers wanting atomicity with stock
// changes use the repo obtained from store.Tx.
func (r *transactionRepo) Append(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO transactions (id, total_amount, created_at) VALUES (?, ?, ?)`),
		tx.ID, tx.TotalAmount, tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}

	insertLine := r.q.Rebind(`INSERT INTO transaction_lines (transaction_id, line_no, medicine_id, quantity, price_at_sale, name_snapshot)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i, line := range tx.Lines {
		if _, err := r.q.ExecContext(ctx, insertLine,
			tx.ID, i+1, line.MedicineID, line.Quantity, line.PriceAtSale, line.NameSnapshot); err != nil {
			return nil, fmt.Errorf("insert line %d of transaction %s: %w", i+1, tx.ID, err)
		}
	}

	stored := tx.Clone()
	return &stored, nil
}

func (r *transactionRepo) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	var header domain.Transaction
	err := sqlx.GetContext(ctx, r.q, &header, r.q.Rebind(`SELECT id, total_amount, created_at FROM transactions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction %s: %w", id, err)
	}

	records := []domain.Transaction{header}
	if err := r.attachLines(ctx, records); err != nil {
		return nil, err
	}
	return &records[0], nil
}

func (r *transactionRepo) List(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	var (
		args    []any
		clauses []string
	)
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		clauses = append(clauses, "created_at >= ?")
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		clauses = append(clauses, "created_at < ?")
	}

	query := `SELECT id, total_amount, created_at FROM transactions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	records := []domain.Transaction{}
	if err := sqlx.SelectContext(ctx, r.q, &records, r.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}
	if err := r.attachLines(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// attachLines loads the lines of every record in one query. Headers are only
// visible after their lines committed, so no record comes back half written.
func (r *transactionRepo) attachLines(ctx context.Context, records []domain.Transaction) error {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	query, args, err := sqlx.In(`SELECT transaction_id, line_no, medicine_id, quantity, price_at_sale, name_snapshot
		FROM transaction_lines
		WHERE transaction_id IN (?)
		ORDER BY transaction_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("prepare transaction lines query: %w", err)
	}

	var rows []lineRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return fmt.Errorf("query transaction lines: %w", err)
	}

	linesByTx := make(map[string][]domain.TransactionLine, len(records))
	for _, row := range rows {
		linesByTx[row.TransactionID] = append(linesByTx[row.TransactionID], row.TransactionLine)
	}
	for i := range records {
		records[i].CreatedAt = records[i].CreatedAt.UTC()
		records[i].Lines = linesByTx[records[i].ID]
	}
	return nil
}
