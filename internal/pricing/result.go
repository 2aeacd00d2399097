package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/tax"
)

// Exclusion reasons reported on ExcludedLine.
const (
	ReasonNonPositivePrice    = "non_positive_price"
	ReasonNonPositiveQuantity = "non_positive_quantity"
)

// LineResult is the priced view of one cart line.
type LineResult struct {
	ItemID       uuid.UUID       `json:"itemId"`
	ProductID    uuid.UUID       `json:"productId"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	CatalogPrice decimal.Decimal `json:"catalogPrice"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Source       Source          `json:"source"`
	LineTotal    decimal.Decimal `json:"lineTotal"`
}

// ExcludedLine is a line dropped from totals.
type ExcludedLine struct {
	ItemID    uuid.UUID `json:"itemId"`
	ProductID uuid.UUID `json:"productId"`
	Reason    string    `json:"reason"`
}

// DiscountBreakdown reports the single order-level discount source plus any
// flat caller amount.
type DiscountBreakdown struct {
	Source     discount.Source `json:"source"`
	Percent    decimal.Decimal `json:"percent"`
	Amount     decimal.Decimal `json:"amount"`
	FlatAmount decimal.Decimal `json:"flatAmount"`
	Total      decimal.Decimal `json:"total"`
	Slab       string          `json:"slab,omitempty"`
	Clamped    bool            `json:"clamped"`
}

// Rounding reports the grand-total adjustment so it is never hidden.
type Rounding struct {
	Applied    bool            `json:"applied"`
	Adjustment decimal.Decimal `json:"adjustment"`
}

// Result is the itemized pricing shared by the preview and checkout paths.
type Result struct {
	TenantID           uuid.UUID         `json:"tenantId"`
	Empty              bool              `json:"empty"`
	Items              []LineResult      `json:"items"`
	Excluded           []ExcludedLine    `json:"excluded"`
	TotalUnits         int               `json:"totalUnits"`
	Subtotal           decimal.Decimal   `json:"subtotal"`
	Discount           DiscountBreakdown `json:"discount"`
	DiscountedSubtotal decimal.Decimal   `json:"discountedSubtotal"`
	Shipping           shipping.Quote    `json:"shipping"`
	TaxableBase        decimal.Decimal   `json:"taxableBase"`
	Tax                tax.Breakdown     `json:"tax"`
	GrandTotalRaw      decimal.Decimal   `json:"grandTotalRaw"`
	GrandTotal         decimal.Decimal   `json:"grandTotal"`
	Rounding           Rounding          `json:"rounding"`
	StaleOverrides     []uuid.UUID       `json:"staleOverrides"`
}

func newResult(tenantID uuid.UUID) Result {
	return Result{
		TenantID:       tenantID,
		Items:          make([]LineResult, 0),
		Excluded:       make([]ExcludedLine, 0),
		StaleOverrides: make([]uuid.UUID, 0),
		Discount:       DiscountBreakdown{Source: discount.SourceNone},
	}
}
