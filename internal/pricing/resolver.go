package pricing

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNonPositivePrice disqualifies a product from pricing.
var ErrNonPositivePrice = errors.New("pricing: product price must be positive")

// Source records which price won for a line.
type Source string

const (
	SourceCatalog    Source = "catalog"
	SourceHistory    Source = "history"
	SourceNegotiated Source = "negotiated"
)

// Product is the catalog view used during a computation.
type Product struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	CatalogPrice    decimal.Decimal `json:"catalogPrice"`
	UnitsPerPackage int             `json:"unitsPerPackage"`
}

// LineInput is a cart line as seen by the engine.
type LineInput struct {
	ItemID           uuid.UUID        `json:"itemId"`
	Product          Product          `json:"product"`
	Quantity         int              `json:"quantity"`
	Override         *decimal.Decimal `json:"override,omitempty"`
	OverrideApproved bool             `json:"overrideApproved"`
}

// CustomerContext carries what is known about the buyer.
type CustomerContext struct {
	Returning  bool                           `json:"returning"`
	LastPrices map[uuid.UUID]decimal.Decimal `json:"lastPrices,omitempty"`
	// CatalogOnly applies the new-customer policy: stored overrides and
	// history are ignored.
	CatalogOnly bool `json:"catalogOnly"`
	// SuppressOverrides disables item-level negotiated prices, used when an
	// order-level negotiated discount is already in force.
	SuppressOverrides bool `json:"suppressOverrides"`
}

// Resolution is the single effective unit price for a line.
type Resolution struct {
	UnitPrice decimal.Decimal
	Source    Source
	// ClearOverride asks the caller to drop a stored override that is not
	// backed by an approval.
	ClearOverride bool
}

// Resolve walks the price priority chain; the first match wins.
func Resolve(line LineInput, customer CustomerContext) (Resolution, error) {
	catalog := line.Product.CatalogPrice
	if catalog.Sign() <= 0 {
		return Resolution{}, ErrNonPositivePrice
	}
	res := Resolution{UnitPrice: catalog, Source: SourceCatalog}
	if line.Override != nil && (!line.OverrideApproved || line.Override.Sign() <= 0) {
		res.ClearOverride = true
	}
	if customer.CatalogOnly {
		return res, nil
	}
	if line.Override != nil && line.OverrideApproved && line.Override.Sign() > 0 && !customer.SuppressOverrides {
		res.UnitPrice = *line.Override
		res.Source = SourceNegotiated
		return res, nil
	}
	if customer.Returning {
		if last, ok := customer.LastPrices[line.Product.ID]; ok && last.Sign() > 0 {
			res.UnitPrice = last
			res.Source = SourceHistory
			return res, nil
		}
	}
	return res, nil
}
