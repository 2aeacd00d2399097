// Package tax computes goods-and-services tax split by jurisdiction.
package tax

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/money"
)

// DefaultRate is applied when a tenant has no tax rate configured.
var DefaultRate = decimal.NewFromInt(18)

// RatePlaces is the precision rates are applied and stored at.
const RatePlaces int32 = 4

var two = decimal.NewFromInt(2)

// Config is a tenant's tax regime.
type Config struct {
	Rate              *decimal.Decimal `json:"rate,omitempty"`
	HomeState         string           `json:"homeState"`
	DefaultInterstate bool             `json:"defaultInterstate"`
}

// Breakdown carries the tax amount and its components. CGST+SGST+IGST always
// equals Amount exactly.
type Breakdown struct {
	Rate       decimal.Decimal `json:"rate"`
	Amount     decimal.Decimal `json:"amount"`
	CGST       decimal.Decimal `json:"cgst"`
	SGST       decimal.Decimal `json:"sgst"`
	IGST       decimal.Decimal `json:"igst"`
	Interstate bool            `json:"interstate"`
}

// EffectiveRate returns the configured rate at RatePlaces, or DefaultRate
// when cfg or its rate is unset or negative. An explicit zero rate is honoured.
func EffectiveRate(cfg *Config) decimal.Decimal {
	if cfg == nil || cfg.Rate == nil || cfg.Rate.Sign() < 0 {
		return DefaultRate
	}
	return cfg.Rate.Round(RatePlaces)
}

// IsInterstate decides the jurisdiction flag. When both the tenant home state
// and the customer state are known they are compared; otherwise the tenant
// default applies.
func IsInterstate(cfg *Config, customerState string) bool {
	if cfg == nil {
		return false
	}
	home := strings.TrimSpace(cfg.HomeState)
	cust := strings.TrimSpace(customerState)
	if home != "" && cust != "" {
		return !strings.EqualFold(home, cust)
	}
	return cfg.DefaultInterstate
}

// Calculate computes tax on base at rate; a zero rate yields zero tax and a
// negative one falls back to DefaultRate. The amount is not rounded here,
// rounding happens once on the grand total.
func Calculate(base decimal.Decimal, interstate bool, rate decimal.Decimal) Breakdown {
	if rate.Sign() < 0 {
		rate = DefaultRate
	}
	amount := money.Percent(money.NonNegative(base), rate)
	b := Breakdown{
		Rate:       rate,
		Amount:     amount,
		CGST:       decimal.Zero,
		SGST:       decimal.Zero,
		IGST:       decimal.Zero,
		Interstate: interstate,
	}
	if interstate {
		b.IGST = amount
		return b
	}
	half := amount.Div(two)
	b.CGST = half
	b.SGST = amount.Sub(half)
	return b
}

// DeriveBaseFromGrandTotal reverses a tax-inclusive figure:
// base = total / (1 + rate/100), at currency precision.
func DeriveBaseFromGrandTotal(total, rate decimal.Decimal) decimal.Decimal {
	if rate.Sign() < 0 {
		rate = DefaultRate
	}
	divisor := decimal.NewFromInt(1).Add(rate.Div(decimal.NewFromInt(100)))
	return money.Round(total.Div(divisor))
}
