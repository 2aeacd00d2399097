package order

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/shipping"
)

var (
	// ErrNotFound indicates the order does not exist for the tenant.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate is returned when an order already exists for the cart generation.
	ErrDuplicate = errors.New("order already exists for cart version")
	// ErrInvalidState indicates the order cannot move to the requested status.
	ErrInvalidState = errors.New("order is not in a cancellable state")
)

// Status of a placed order.
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusCancelled Status = "CANCELLED"
)

// Order is the immutable snapshot written once per checkout.
type Order struct {
	ID                 uuid.UUID       `json:"id"`
	TenantID           uuid.UUID       `json:"tenantId"`
	CustomerRef        string          `json:"customerRef"`
	CartID             uuid.UUID       `json:"cartId"`
	CartVersion        int64           `json:"cartVersion"`
	Number             string          `json:"number"`
	Status             Status          `json:"status"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountSource     discount.Source `json:"discountSource"`
	DiscountPercent    decimal.Decimal `json:"discountPercent"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	DiscountedSubtotal decimal.Decimal `json:"discountedSubtotal"`
	ShippingCharge     decimal.Decimal `json:"shippingCharge"`
	ShippingTier       shipping.Tier   `json:"shippingTier"`
	TaxRate            decimal.Decimal `json:"taxRate"`
	TaxAmount          decimal.Decimal `json:"taxAmount"`
	CGST               decimal.Decimal `json:"cgst"`
	SGST               decimal.Decimal `json:"sgst"`
	IGST               decimal.Decimal `json:"igst"`
	GrandTotalRaw      decimal.Decimal `json:"grandTotalRaw"`
	GrandTotal         decimal.Decimal `json:"grandTotal"`
	RoundingAdjustment decimal.Decimal `json:"roundingAdjustment"`
	Items              []Item          `json:"items"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Item stores what the customer actually paid per unit, not the catalog price.
type Item struct {
	ProductID         uuid.UUID       `json:"productId"`
	Name              string          `json:"name"`
	Quantity          int             `json:"quantity"`
	OriginalUnitPrice decimal.Decimal `json:"originalUnitPrice"`
	PaidUnitPrice     decimal.Decimal `json:"paidUnitPrice"`
	LineTotal         decimal.Decimal `json:"lineTotal"`
	PriceSource       pricing.Source  `json:"priceSource"`
}

// Cancellable reports whether the order may still be cancelled.
func (o Order) Cancellable() bool {
	return o.Status == StatusPlaced
}

// Source identifies the cart generation an order is created from.
type Source struct {
	TenantID    uuid.UUID
	CustomerRef string
	CartID      uuid.UUID
	CartVersion int64
}

// FromResult builds the order snapshot from a priced cart.
func FromResult(src Source, res pricing.Result, now time.Time) Order {
	id := uuid.New()
	return Order{
		ID:                 id,
		TenantID:           src.TenantID,
		CustomerRef:        src.CustomerRef,
		CartID:             src.CartID,
		CartVersion:        src.CartVersion,
		Number:             Number(id, now),
		Status:             StatusPlaced,
		Subtotal:           res.Subtotal,
		DiscountSource:     res.Discount.Source,
		DiscountPercent:    res.Discount.Percent,
		DiscountAmount:     res.Discount.Total,
		DiscountedSubtotal: res.DiscountedSubtotal,
		ShippingCharge:     res.Shipping.Charge,
		ShippingTier:       res.Shipping.Tier,
		TaxRate:            res.Tax.Rate,
		TaxAmount:          res.Tax.Amount,
		CGST:               res.Tax.CGST,
		SGST:               res.Tax.SGST,
		IGST:               res.Tax.IGST,
		GrandTotalRaw:      res.GrandTotalRaw,
		GrandTotal:         res.GrandTotal,
		RoundingAdjustment: res.Rounding.Adjustment,
		Items:              Redistribute(res.Items, res.Subtotal, res.DiscountedSubtotal),
		CreatedAt:          now.UTC(),
	}
}

// Number renders a human-friendly order number such as ORD-20260301-1A2B3C4D.
func Number(id uuid.UUID, now time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), short)
}

// Redistribute spreads the order-level discount over the lines by scaling
// every line with discountedSubtotal/subtotal. Scaled line totals are cut to
// whole cents and the cents left over go to the lines with the largest
// remainders, so totals sum to discountedSubtotal exactly and no line moves
// more than one cent from its scaled value.
func Redistribute(lines []pricing.LineResult, subtotal, discountedSubtotal decimal.Decimal) []Item {
	items := make([]Item, 0, len(lines))
	if len(lines) == 0 {
		return items
	}
	ratio := decimal.NewFromInt(1)
	if subtotal.Sign() > 0 {
		ratio = discountedSubtotal.Div(subtotal)
	}

	hundred := decimal.NewFromInt(100)
	cents := make([]int64, len(lines))
	remainders := make([]decimal.Decimal, len(lines))
	var allocated int64
	for i, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		scaled := line.UnitPrice.Mul(qty).Mul(ratio).Mul(hundred)
		floor := scaled.Floor()
		if floor.Sign() < 0 {
			floor = decimal.Zero
		}
		cents[i] = floor.IntPart()
		remainders[i] = scaled.Sub(floor)
		allocated += cents[i]
	}

	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	left := discountedSubtotal.Mul(hundred).Round(0).IntPart() - allocated
	for left > 0 {
		for _, i := range order {
			if left == 0 {
				break
			}
			cents[i]++
			left--
		}
	}
	for left < 0 {
		taken := false
		for k := len(order) - 1; k >= 0 && left < 0; k-- {
			if i := order[k]; cents[i] > 0 {
				cents[i]--
				left++
				taken = true
			}
		}
		if !taken {
			break
		}
	}

	for i, line := range lines {
		total := decimal.New(cents[i], -2)
		items = append(items, Item{
			ProductID:         line.ProductID,
			Name:              line.Name,
			Quantity:          line.Quantity,
			OriginalUnitPrice: line.UnitPrice,
			PaidUnitPrice:     money.Round(total.Div(decimal.NewFromInt(int64(line.Quantity)))),
			LineTotal:         total,
			PriceSource:       line.Source,
		})
	}
	return items
}
