package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

// Store is the persistence contract for carts. Implementations return
// ErrNotFound for missing carts, items or products.
type Store interface {
	GetCart(ctx context.Context, tenantID uuid.UUID, customerRef string) (Cart, error)
	EnsureCart(ctx context.Context, tenantID uuid.UUID, customerRef string) (Cart, error)
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (pricing.Product, error)
	InsertItem(ctx context.Context, cartID, productID uuid.UUID, qty int) (uuid.UUID, error)
	SetItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	SetItemOverride(ctx context.Context, cartID, itemID uuid.UUID, price *decimal.Decimal, approved bool) error
	ClearOverrides(ctx context.Context, cartID uuid.UUID, itemIDs []uuid.UUID) error
	SetDiscount(ctx context.Context, cartID uuid.UUID, approved *discount.Approved) error
	SetCustomerState(ctx context.Context, cartID uuid.UUID, state string) error
	// ClearCart deletes items, resets discount metadata, bumps the version and
	// records status.
	ClearCart(ctx context.Context, cartID uuid.UUID, status Status) error
}

// History is what earlier orders say about a customer.
type History struct {
	Returning  bool
	BestPrices map[uuid.UUID]decimal.Decimal
}

// HistoryLookup answers returning-customer questions.
type HistoryLookup interface {
	CustomerHistory(ctx context.Context, tenantID uuid.UUID, customerRef string) (History, error)
}

// SettingsProvider resolves tenant pricing configuration.
type SettingsProvider interface {
	Settings(ctx context.Context, tenantID uuid.UUID) (tenant.Settings, error)
}
