package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

const recentTransactions = 5

// TransactionQuery selects history records created in [From, To). Nil bounds are open.
type TransactionQuery struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// Summary is the dashboard overview.
type Summary struct {
	TotalSales         decimal.Decimal      `json:"total_sales"`
	TransactionCount   int                  `json:"transaction_count"`
	TotalStock         int                  `json:"total_stock"`
	MedicineCount      int                  `json:"medicine_count"`
	LowStockCount      int                  `json:"low_stock_count"`
	RecentTransactions []domain.Transaction `json:"recent_transactions"`
}

// SalesReport aggregates revenue over [From, To).
type SalesReport struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Revenue    decimal.Decimal `json:"revenue"`
	SalesCount int             `json:"sales_count"`
	ItemsSold  int             `json:"items_sold"`
}

// ListTransactions returns matching records newest first, each with its lines.
func (s *Service) ListTransactions(ctx context.Context, q TransactionQuery) ([]domain.Transaction, error) {
	if q.Limit < 0 {
		return nil, &domain.ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, &domain.ValidationError{Field: "to", Message: "must not be before from"}
	}

	records, err := s.store.Transactions().List(ctx, store.TransactionFilter{From: q.From, To: q.To, Limit: q.Limit})
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	return records, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := s.store.Transactions().Get(ctx, id)
	if err != nil {
		return nil, storeErr("get transaction", fmt.Errorf("transaction %q: %w", id, err))
	}
	return tx, nil
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	medicines, err := s.store.Inventory().List(ctx)
	if err != nil {
		return nil, storeErr("list medicines", err)
	}
	records, err := s.store.Transactions().List(ctx, store.TransactionFilter{})
	if err != nil {
		return nil, storeErr("list transactions", err)
	}

	sum := &Summary{
		TotalSales:       decimal.Zero,
		TransactionCount: len(records),
		MedicineCount:    len(medicines),
	}
	for _, m := range medicines {
		sum.TotalStock += m.Stock
		if m.IsLowStock() {
			sum.LowStockCount++
		}
	}
	for _, rec := range records {
		sum.TotalSales = sum.TotalSales.Add(rec.TotalAmount)
	}
	recent := min(recentTransactions, len(records))
	sum.RecentTransactions = records[:recent]
	return sum, nil
}

// SalesBetween aggregates every transaction created in [from, to).
func (s *Service) SalesBetween(ctx context.Context, from, to time.Time) (*SalesReport, error) {
	if to.Before(from) {
		return nil, &domain.ValidationError{Field: "to", Message: "must not be before from"}
	}

	records, err := s.store.Transactions().List(ctx, store.TransactionFilter{From: &from, To: &to})
	if err != nil {
		return nil, storeErr("list transactions", err)
	}

	report := &SalesReport{From: from, To: to, Revenue: decimal.Zero, SalesCount: len(records)}
	for _, rec := range records {
		report.Revenue = report.Revenue.Add(rec.TotalAmount)
		for _, line := range rec.Lines {
			report.ItemsSold += line.Quantity
		}
	}
	return report, nil
}

// DailySales reports the current UTC day.
func (s *Service) DailySales(ctx context.Context) (*SalesReport, error) {
	from := startOfDay(s.now())
	return s.SalesBetween(ctx, from, from.AddDate(0, 0, 1))
}

// MonthlySales reports the current UTC calendar month.
func (s *Service) MonthlySales(ctx context.Context) (*SalesReport, error) {
	day := startOfDay(s.now())
	from := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.SalesBetween(ctx, from, from.AddDate(0, 1, 0))
}
