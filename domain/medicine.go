package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultReorderThreshold is applied when a new medicine is added without one.
const DefaultReorderThreshold = 10

type Medicine struct {
	ID               string          `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	Category         string          `db:"category" json:"category"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	Stock            int             `db:"stock" json:"stock"`
	ExpiryDate       *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	ReorderThreshold int             `db:"reorder_threshold" json:"reorder_threshold"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// IsLowStock reports whether the stock on hand is below the reorder threshold.
func (m Medicine) IsLowStock() bool {
	return m.Stock < m.ReorderThreshold
}

// Clone returns a copy that shares no memory with m.
func (m Medicine) Clone() Medicine {
	if m.ExpiryDate != nil {
		expiry := *m.ExpiryDate
		m.ExpiryDate = &expiry
	}
	return m
}

// ExpiresBy reports whether the medicine has an expiry date on or before day.
func (m Medicine) ExpiresBy(day time.Time) bool {
	if m.ExpiryDate == nil {
		return false
	}
	return !m.ExpiryDate.After(day)
}

// Validate checks the field constraints shared by add and update.
func (m Medicine) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(m.Category) == "" {
		return &ValidationError{Field: "category", Message: "is required"}
	}
	if m.UnitPrice.IsNegative() {
		return &ValidationError{Field: "unit_price", Message: "must not be negative"}
	}
	if !m.UnitPrice.Equal(m.UnitPrice.Round(2)) {
		return &ValidationError{Field: "unit_price", Message: "must have at most two decimal places"}
	}
	if m.Stock < 0 {
		return &ValidationError{Field: "stock", Message: "must not be negative"}
	}
	if m.ReorderThreshold < 0 {
		return &ValidationError{Field: "reorder_threshold", Message: "must not be negative"}
	}
	return nil
}

// MedicineDraft carries the caller supplied fields of a new medicine.
type MedicineDraft struct {
	Name             string
	Category         string
	UnitPrice        decimal.Decimal
	Stock            int
	ExpiryDate       *time.Time
	ReorderThreshold *int
}

// Build turns the draft into a medicine with the given id, applying defaults.
func (d MedicineDraft) Build(id string, now time.Time) Medicine {
	threshold := DefaultReorderThreshold
	if d.ReorderThreshold != nil {
		threshold = *d.ReorderThreshold
	}
	return Medicine{
		ID:               id,
		Name:             strings.TrimSpace(d.Name),
		Category:         strings.TrimSpace(d.Category),
		UnitPrice:        d.UnitPrice,
		Stock:            d.Stock,
		ExpiryDate:       d.ExpiryDate,
		ReorderThreshold: threshold,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// MedicinePatch lists the fields to change; nil fields are left untouched.
// ClearExpiry removes the expiry date and wins over ExpiryDate.
type MedicinePatch struct {
	Name             *string
	Category         *string
	UnitPrice        *decimal.Decimal
	Stock            *int
	ExpiryDate       *time.Time
	ClearExpiry      bool
	ReorderThreshold *int
}

// Apply merges the patch into m and returns the result.
func (p MedicinePatch) Apply(m Medicine, now time.Time) Medicine {
	if p.Name != nil {
		m.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		m.Category = strings.TrimSpace(*p.Category)
	}
	if p.UnitPrice != nil {
		m.UnitPrice = *p.UnitPrice
	}
	if p.Stock != nil {
		m.Stock = *p.Stock
	}
	switch {
	case p.ClearExpiry:
		m.ExpiryDate = nil
	case p.ExpiryDate != nil:
		m.ExpiryDate = p.ExpiryDate
	}
	if p.ReorderThreshold != nil {
		m.ReorderThreshold = *p.ReorderThreshold
	}
	m.UpdatedAt = now
	return m
}
