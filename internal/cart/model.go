package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// ErrIllegalTransition is returned for a status change the lifecycle forbids.
var ErrIllegalTransition = errors.New("cart: illegal status transition")

// Status is the lifecycle position of a cart generation.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusPriced    Status = "PRICED"
	StatusCommitted Status = "COMMITTED"
	StatusAborted   Status = "ABORTED"
)

var transitions = map[Status][]Status{
	StatusOpen:   {StatusPriced, StatusAborted},
	StatusPriced: {StatusCommitted, StatusAborted},
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusAborted
}

// Transition validates a move from s to next.
func (s Status) Transition(next Status) (Status, error) {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, next)
}

// Cart is one conversation's cart with its items and joined products.
type Cart struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenantId"`
	CustomerRef string    `json:"customerRef"`
	Status      Status    `json:"status"`
	// Version increments every time the cart is cleared, so each checkout
	// targets one generation of the cart.
	Version        int64              `json:"version"`
	Discount       *discount.Approved `json:"discount,omitempty"`
	LegacyDiscount decimal.Decimal    `json:"legacyDiscount"`
	CustomerState  string             `json:"customerState,omitempty"`
	Items          []Item             `json:"items"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Item is a cart line. PriceOverride only counts when OverrideApproved is set
// by the approval step.
type Item struct {
	ID               uuid.UUID        `json:"id"`
	Product          pricing.Product  `json:"product"`
	Quantity         int              `json:"quantity"`
	PriceOverride    *decimal.Decimal `json:"priceOverride,omitempty"`
	OverrideApproved bool             `json:"overrideApproved"`
}

// Lines converts items into engine input.
func (c Cart) Lines() []pricing.LineInput {
	lines := make([]pricing.LineInput, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.LineInput{
			ItemID:           it.ID,
			Product:          it.Product,
			Quantity:         it.Quantity,
			Override:         it.PriceOverride,
			OverrideApproved: it.OverrideApproved,
		})
	}
	return lines
}

// FindItem returns the item by id.
func (c Cart) FindItem(id uuid.UUID) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// FindProduct returns the line holding productID.
func (c Cart) FindProduct(productID uuid.UUID) (Item, bool) {
	for _, it := range c.Items {
		if it.Product.ID == productID {
			return it, true
		}
	}
	return Item{}, false
}

func (c Cart) hasApprovedOverrides() bool {
	for _, it := range c.Items {
		if it.PriceOverride != nil && it.OverrideApproved {
			return true
		}
	}
	return false
}
