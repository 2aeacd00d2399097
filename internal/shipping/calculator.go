package shipping

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/money"
)

// Tier names the rate band selected for an order.
type Tier string

const (
	TierFree       Tier = "free"
	TierStandard   Tier = "standard"
	TierHighVolume Tier = "high_volume"
)

// Quote is the shipping breakdown rendered with a pricing result.
type Quote struct {
	Charge      decimal.Decimal `json:"charge"`
	Tier        Tier            `json:"tier"`
	Rate        decimal.Decimal `json:"rate"`
	Units       int             `json:"units"`
	FreeApplied bool            `json:"freeApplied"`
}

// Calculate returns the shipping charge for totalUnits at the given
// (already discounted) subtotal. A nil config falls back to DefaultConfig.
func Calculate(cfg *Config, totalUnits int, subtotal decimal.Decimal) Quote {
	c := OrDefault(cfg)
	if totalUnits < 0 {
		totalUnits = 0
	}
	q := Quote{Units: totalUnits, Charge: decimal.Zero, Rate: decimal.Zero}
	if c.FreeShippingEnabled && subtotal.GreaterThanOrEqual(c.FreeShippingThreshold) {
		q.Tier = TierFree
		q.FreeApplied = true
		return q
	}
	q.Tier = TierStandard
	q.Rate = money.NonNegative(c.StandardRate)
	if c.HighVolumeThreshold > 0 && totalUnits >= c.HighVolumeThreshold {
		q.Tier = TierHighVolume
		q.Rate = money.NonNegative(c.HighVolumeRate)
	}
	q.Charge = q.Rate.Mul(decimal.NewFromInt(int64(totalUnits)))
	return q
}
