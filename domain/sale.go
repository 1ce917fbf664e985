package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one entry of a cart submitted for checkout.
type CartLine struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
}

// Transaction is the immutable record of a completed sale.
type Transaction struct {
	ID          string            `db:"id" json:"id"`
	CreatedAt   time.Time         `db:"created_at" json:"timestamp"`
	TotalAmount decimal.Decimal   `db:"total_amount" json:"total_amount"`
	Lines       []TransactionLine `json:"lines"`
}

// TransactionLine snapshots a medicine's name and price at the moment of sale.
type TransactionLine struct {
	MedicineID   string          `db:"medicine_id" json:"medicine_id"`
	Quantity     int             `db:"quantity" json:"quantity"`
	PriceAtSale  decimal.Decimal `db:"price_at_sale" json:"price_at_sale"`
	NameSnapshot string          `db:"name_snapshot" json:"name_snapshot"`
}

// Subtotal returns quantity times price at sale.
func (l TransactionLine) Subtotal() decimal.Decimal {
	return l.PriceAtSale.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ComputeTotal sums the line subtotals.
func (t Transaction) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range t.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Validate checks that the record is internally consistent before it is stored.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}
	if len(t.Lines) == 0 {
		return &ValidationError{Field: "lines", Message: "must contain at least one line"}
	}
	for _, line := range t.Lines {
		if strings.TrimSpace(line.MedicineID) == "" {
			return &ValidationError{Field: "lines.medicine_id", Message: "is required"}
		}
		if line.Quantity <= 0 {
			return &ValidationError{Field: "lines.quantity", Message: "must be greater than zero"}
		}
		if line.PriceAtSale.IsNegative() {
			return &ValidationError{Field: "lines.price_at_sale", Message: "must not be negative"}
		}
	}
	if !t.TotalAmount.Equal(t.ComputeTotal()) {
		return &ValidationError{Field: "total_amount", Message: "does not match the sum of its lines"}
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias stored lines.
func (t Transaction) Clone() Transaction {
	lines := make([]TransactionLine, len(t.Lines))
	copy(lines, t.Lines)
	t.Lines = lines
	return t
}
