package discount

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/money"
)

// Mode selects which point of a slab band is used.
type Mode string

const (
	ModeMin    Mode = "min"
	ModeMax    Mode = "max"
	ModeCustom Mode = "custom"
)

// ParseMode maps free-form input to a Mode, defaulting to ModeMin.
func ParseMode(v string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(v))) {
	case ModeMax:
		return ModeMax
	case ModeCustom:
		return ModeCustom
	default:
		return ModeMin
	}
}

// Decision is the outcome of a volume discount calculation.
type Decision struct {
	Slab    *Slab           `json:"slab,omitempty"`
	Mode    Mode            `json:"mode"`
	Percent decimal.Decimal `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
	Clamped bool            `json:"clamped"`
}

// Calculate picks a percentage from the slab active for totalUnits and applies
// it to subtotal. A custom percent outside the band falls back to the slab
// minimum; that is reported through Clamped, never as an error.
func Calculate(table SlabTable, subtotal decimal.Decimal, totalUnits int, mode Mode, custom *decimal.Decimal) Decision {
	if len(table) == 0 {
		table = DefaultSlabs()
	}
	d := Decision{Mode: mode, Percent: decimal.Zero, Amount: decimal.Zero}
	if mode == "" {
		d.Mode = ModeMin
	}
	slab, ok := table.Find(totalUnits)
	if !ok || subtotal.Sign() <= 0 {
		return d
	}
	d.Slab = &slab
	switch d.Mode {
	case ModeMax:
		d.Percent = slab.MaxPercent
	case ModeCustom:
		if custom != nil && slab.InBand(*custom) {
			d.Percent = *custom
		} else {
			d.Percent = slab.MinPercent
			d.Clamped = true
		}
	default:
		d.Percent = slab.MinPercent
	}
	d.Amount = money.Round(money.Percent(subtotal, d.Percent))
	return d
}
