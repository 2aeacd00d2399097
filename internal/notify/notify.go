package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Message is an outbound chat message to a customer.
type Message struct {
	TenantID    uuid.UUID `json:"tenantId"`
	CustomerRef string    `json:"customerRef"`
	Template    string    `json:"template"`
	Text        string    `json:"text"`
	// Reference makes the send idempotent on the gateway side.
	Reference string `json:"reference"`
}

// Messenger delivers messages through the conversational channel.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// Ledger entry kinds.
const (
	EntrySale     = "sale"
	EntryReversal = "reversal"
)

// LedgerEntry mirrors a committed or cancelled order into the accounting system.
type LedgerEntry struct {
	TenantID    uuid.UUID       `json:"tenantId"`
	OrderID     uuid.UUID       `json:"orderId"`
	Number      string          `json:"number"`
	CustomerRef string          `json:"customerRef"`
	Kind        string          `json:"kind"`
	Net         decimal.Decimal `json:"net"`
	Shipping    decimal.Decimal `json:"shipping"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Ledger records entries in the external accounting system.
type Ledger interface {
	Record(ctx context.Context, entry LedgerEntry) error
}
