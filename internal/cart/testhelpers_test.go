package cart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/tax"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

var testTenant = uuid.MustParse("0b8d6c1e-3f52-4b6f-8f0c-5b2b7f0b3a01")

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type memStore struct {
	mu       sync.Mutex
	carts    map[string]*Cart
	products map[uuid.UUID]pricing.Product
	cleared  []uuid.UUID
}

func newMemStore(products ...pricing.Product) *memStore {
	s := &memStore{carts: map[string]*Cart{}, products: map[uuid.UUID]pricing.Product{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func cartKey(tenantID uuid.UUID, customer string) string { return tenantID.String() + "/" + customer }

func (s *memStore) find(cartID uuid.UUID) *Cart {
	for _, c := range s.carts {
		if c.ID == cartID {
			return c
		}
	}
	return nil
}

func (s *memStore) GetCart(_ context.Context, tenantID uuid.UUID, customer string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartKey(tenantID, customer)]
	if !ok {
		return Cart{}, ErrNotFound
	}
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	return out, nil
}

func (s *memStore) EnsureCart(ctx context.Context, tenantID uuid.UUID, customer string) (Cart, error) {
	s.mu.Lock()
	key := cartKey(tenantID, customer)
	c, ok := s.carts[key]
	if !ok {
		c = &Cart{ID: uuid.New(), TenantID: tenantID, CustomerRef: customer, Status: StatusOpen, CreatedAt: time.Now()}
		s.carts[key] = c
	}
	if c.Status == StatusCommitted {
		c.Status = StatusOpen
	}
	s.mu.Unlock()
	return s.GetCart(ctx, tenantID, customer)
}

func (s *memStore) GetProduct(_ context.Context, _ uuid.UUID, productID uuid.UUID) (pricing.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return pricing.Product{}, ErrNotFound
	}
	return p, nil
}

func (s *memStore) InsertItem(_ context.Context, cartID, productID uuid.UUID, qty int) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(cartID)
	if c == nil {
		return uuid.Nil, ErrNotFound
	}
	id := uuid.New()
	c.Items = append(c.Items, Item{ID: id, Product: s.products[productID], Quantity: qty})
	return id, nil
}

func (s *memStore) mutateItem(cartID, itemID uuid.UUID, fn func(*Item)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(cartID)
	if c == nil {
		return ErrNotFound
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			fn(&c.Items[i])
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) SetItemQuantity(_ context.Context, cartID, itemID uuid.UUID, qty int) error {
	return s.mutateItem(cartID, itemID, func(it *Item) { it.Quantity = qty })
}

func (s *memStore) DeleteItem(_ context.Context, cartID, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(cartID)
	if c == nil {
		return ErrNotFound
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) SetItemOverride(_ context.Context, cartID, itemID uuid.UUID, price *decimal.Decimal, approved bool) error {
	return s.mutateItem(cartID, itemID, func(it *Item) {
		it.PriceOverride = price
		it.OverrideApproved = approved
	})
}

func (s *memStore) ClearOverrides(_ context.Context, cartID uuid.UUID, itemIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(cartID)
	if c == nil {
		return ErrNotFound
	}
	for _, id := range itemIDs {
		for i := range c.Items {
			if c.Items[i].ID == id {
				c.Items[i].PriceOverride = nil
				c.Items[i].OverrideApproved = false
			}
		}
	}
	s.cleared = append(s.cleared, itemIDs...)
	return nil
}

func (s *memStore) SetDiscount(_ context.Context, cartID uuid.UUID, approved *discount.Approved) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(cartID)
	if c == nil {
		return ErrNotFound
	}
	c.Discount = approved
	return nil
}

func (s *memStore) SetCustomerState(_ context.Context, cartID uuid.UUID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(cartID)
	if c == nil {
		return ErrNotFound
	}
	c.CustomerState = state
	return nil
}

func (s *memStore) ClearCart(_ context.Context, cartID uuid.UUID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(cartID)
	if c == nil {
		return ErrNotFound
	}
	c.Items = nil
	c.Discount = nil
	c.LegacyDiscount = decimal.Zero
	c.Version++
	c.Status = status
	return nil
}

type stubHistory struct {
	history History
	err     error
}

func (s stubHistory) CustomerHistory(context.Context, uuid.UUID, string) (History, error) {
	return s.history, s.err
}

type stubSettings struct {
	settings tenant.Settings
	err      error
}

func (s stubSettings) Settings(context.Context, uuid.UUID) (tenant.Settings, error) {
	return s.settings, s.err
}

func exampleSettings() stubSettings {
	return stubSettings{settings: tenant.Settings{
		Shipping: &shipping.Config{
			FreeShippingEnabled:   true,
			FreeShippingThreshold: dec("10000"),
			HighVolumeThreshold:   15,
			StandardRate:          dec("20"),
			HighVolumeRate:        dec("25"),
		},
		Tax: &tax.Config{Rate: money.Ptr(dec("18")), HomeState: "KA"},
	}}
}

func newProduct(price string) pricing.Product {
	return pricing.Product{ID: uuid.New(), Name: "item-" + price, CatalogPrice: dec(price), UnitsPerPackage: 1}
}

func newService(store *memStore) *Service {
	return &Service{
		Store:       store,
		History:     stubHistory{},
		Settings:    exampleSettings(),
		RoundTotals: true,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
}
