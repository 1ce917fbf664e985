package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/m/domain"
)

// SaleCompletedType is the event_type header of sale notifications.
const SaleCompletedType = "sale.completed"

// SaleCompletedEvent notifies downstream consumers about a committed sale.
type SaleCompletedEvent struct {
	EventID       string          `json:"event_id"`
	TransactionID string          `json:"transaction_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ItemCount     int             `json:"item_count"`
	Lines         []SaleLine      `json:"lines"`
	CompletedAt   time.Time       `json:"completed_at"`
}

type SaleLine struct {
	MedicineID  string          `json:"medicine_id"`
	Quantity    int             `json:"quantity"`
	PriceAtSale decimal.Decimal `json:"price_at_sale"`
	// Remaining is the stock left right after the sale.
	Remaining int `json:"remaining"`
}

// NewSaleCompleted builds the event for a stored transaction. remaining maps
// medicine ids to the stock left after the decrement.
func NewSaleCompleted(eventID string, tx domain.Transaction, remaining map[string]int) SaleCompletedEvent {
	lines := make([]SaleLine, len(tx.Lines))
	items := 0
	for i, line := range tx.Lines {
		lines[i] = SaleLine{
			MedicineID:  line.MedicineID,
			Quantity:    line.Quantity,
			PriceAtSale: line.PriceAtSale,
			Remaining:   remaining[line.MedicineID],
		}
		items += line.Quantity
	}
	return SaleCompletedEvent{
		EventID:       eventID,
		TransactionID: tx.ID,
		TotalAmount:   tx.TotalAmount,
		ItemCount:     items,
		Lines:         lines,
		CompletedAt:   tx.CreatedAt,
	}
}

// Publisher delivers sale notifications. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishSaleCompleted(ctx context.Context, event SaleCompletedEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishSaleCompleted(context.Context, SaleCompletedEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
