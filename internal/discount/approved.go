package discount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/money"
)

// Source identifies where an order-level discount came from.
type Source string

const (
	SourceNone       Source = "none"
	SourceNegotiated Source = "negotiated"
	SourceVolume     Source = "volume"
)

// Approved is a discount already agreed with the customer and persisted on
// the cart. When present it is the only discount source for the order.
type Approved struct {
	Source     Source          `json:"source"`
	Percent    decimal.Decimal `json:"percent"`
	Slab       string          `json:"slab,omitempty"`
	ApprovedAt time.Time       `json:"approvedAt"`
}

// Amount applies the approved percent to subtotal at currency precision.
func (a Approved) Amount(subtotal decimal.Decimal) decimal.Decimal {
	return money.Round(money.Percent(subtotal, money.ClampPercent(a.Percent)))
}

// Valid reports whether the approval carries a usable source and percent.
func (a *Approved) Valid() bool {
	if a == nil {
		return false
	}
	if a.Source != SourceNegotiated && a.Source != SourceVolume {
		return false
	}
	return a.Percent.Sign() > 0
}

// Matches reports whether the approval still fits a cart of units. A volume
// approval only holds while the slab it was granted for is the active slab
// and its percent lies in that slab's band; an empty table means the default
// slabs. Negotiated approvals do not depend on volume.
func (a Approved) Matches(table SlabTable, units int) bool {
	if a.Source != SourceVolume {
		return true
	}
	if len(table) == 0 {
		table = DefaultSlabs()
	}
	slab, ok := table.Find(units)
	if !ok {
		return false
	}
	return slab.Label() == a.Slab && slab.InBand(a.Percent)
}
