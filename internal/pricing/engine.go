package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/tax"
)

// Options tune a single computation. Automatic volume discounting only runs
// when AutoVolumeDiscount is set explicitly.
type Options struct {
	Customer           CustomerContext
	ApprovedDiscount   *discount.Approved
	AutoVolumeDiscount bool
	VolumeMode         discount.Mode
	CustomPercent      *decimal.Decimal
	// DiscountAmount is a flat amount added on top of whichever percentage
	// source applies.
	DiscountAmount decimal.Decimal
	RoundTotals    bool
	Slabs          discount.SlabTable
	Shipping       *shipping.Config
	Tax            *tax.Config
	CustomerState  string
}

// Compute prices lines for a tenant. It never fails: invalid lines are
// excluded and reported, missing configuration falls back to defaults.
func Compute(tenantID uuid.UUID, lines []LineInput, opts Options) Result {
	res := newResult(tenantID)

	customer := opts.Customer
	approved := opts.ApprovedDiscount
	if !approved.Valid() {
		approved = nil
	}
	if approved != nil && approved.Source == discount.SourceNegotiated {
		customer.SuppressOverrides = true
	}

	subtotal := decimal.Zero
	units := 0
	negotiatedLines := false
	for _, line := range lines {
		if line.Quantity <= 0 {
			res.Excluded = append(res.Excluded, ExcludedLine{ItemID: line.ItemID, ProductID: line.Product.ID, Reason: ReasonNonPositiveQuantity})
			continue
		}
		resolved, err := Resolve(line, customer)
		if err != nil {
			res.Excluded = append(res.Excluded, ExcludedLine{ItemID: line.ItemID, ProductID: line.Product.ID, Reason: ReasonNonPositivePrice})
			continue
		}
		if resolved.ClearOverride {
			res.StaleOverrides = append(res.StaleOverrides, line.ItemID)
		}
		if resolved.Source == SourceNegotiated {
			negotiatedLines = true
		}
		lineTotal := resolved.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if opts.RoundTotals {
			lineTotal = money.Round(lineTotal)
		}
		res.Items = append(res.Items, LineResult{
			ItemID:       line.ItemID,
			ProductID:    line.Product.ID,
			Name:         line.Product.Name,
			Quantity:     line.Quantity,
			CatalogPrice: line.Product.CatalogPrice,
			UnitPrice:    resolved.UnitPrice,
			Source:       resolved.Source,
			LineTotal:    lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
		units += line.Quantity
	}
	if len(res.Items) == 0 {
		res.Empty = true
		return res
	}
	res.Subtotal = subtotal
	res.TotalUnits = units

	res.Discount = decideDiscount(subtotal, units, approved, negotiatedLines, opts)
	res.DiscountedSubtotal = money.NonNegative(subtotal.Sub(res.Discount.Total))

	res.Shipping = shipping.Calculate(opts.Shipping, units, res.DiscountedSubtotal)
	res.TaxableBase = res.DiscountedSubtotal.Add(res.Shipping.Charge)

	interstate := tax.IsInterstate(opts.Tax, opts.CustomerState)
	res.Tax = tax.Calculate(res.TaxableBase, interstate, tax.EffectiveRate(opts.Tax))

	res.GrandTotalRaw = res.TaxableBase.Add(res.Tax.Amount)
	res.GrandTotal = res.GrandTotalRaw
	if opts.RoundTotals {
		res.GrandTotal = money.Ceil(res.GrandTotalRaw)
		res.Rounding = Rounding{Applied: true, Adjustment: res.GrandTotal.Sub(res.GrandTotalRaw)}
	}
	return res
}

// decideDiscount applies at most one percentage source. Volume discounts,
// approved or automatic, never combine with negotiated line prices.
func decideDiscount(subtotal decimal.Decimal, units int, approved *discount.Approved, negotiatedLines bool, opts Options) DiscountBreakdown {
	out := DiscountBreakdown{Source: discount.SourceNone}
	if approved != nil && !approved.Matches(opts.Slabs, units) {
		// the cart moved out of the slab the offer was accepted for
		approved = nil
	}
	switch {
	case approved != nil && !(approved.Source == discount.SourceVolume && negotiatedLines):
		out.Source = approved.Source
		out.Percent = money.ClampPercent(approved.Percent)
		out.Amount = approved.Amount(subtotal)
		out.Slab = approved.Slab
	case approved == nil && opts.AutoVolumeDiscount && !negotiatedLines:
		d := discount.Calculate(opts.Slabs, subtotal, units, opts.VolumeMode, opts.CustomPercent)
		if d.Slab != nil {
			out.Source = discount.SourceVolume
			out.Slab = d.Slab.Label()
		}
		out.Percent = d.Percent
		out.Amount = d.Amount
		out.Clamped = d.Clamped
	}
	out.FlatAmount = money.NonNegative(money.Round(opts.DiscountAmount))
	out.Total = out.Amount.Add(out.FlatAmount)
	if out.Total.GreaterThan(subtotal) {
		out.Total = subtotal
	}
	return out
}
