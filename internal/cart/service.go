package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var (
	// ErrNotFound indicates the requested cart, item or product could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDiscountConflict is returned when a second discount source would be combined with an approved one.
	ErrDiscountConflict = errors.New("cart already carries an approved discount")
)

const defaultMaxItemQty = 1000

// Service encapsulates cart domain operations and the quote shared by the
// preview and checkout paths.
type Service struct {
	Store       Store
	History     HistoryLookup
	Settings    SettingsProvider
	MaxItemQty  int
	RoundTotals bool
	Events      *events.Bus
	Logger      *zerolog.Logger
	Now         func() time.Time
}

func (s *Service) maxQty() int {
	if s.MaxItemQty <= 0 {
		return defaultMaxItemQty
	}
	return s.MaxItemQty
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zerolog.Logger {
	if s.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return s.Logger
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Quote prices a loaded cart using only what is stored on it: the approved
// discount, item overrides and the tenant configuration. Automatic volume
// discounting is never authorised here, so preview and checkout agree.
func (s *Service) Quote(ctx context.Context, c Cart) (pricing.Result, error) {
	ctx, span := otel.Tracer("cart").Start(ctx, "cart.quote")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", c.TenantID.String()), attribute.Int("cart.items", len(c.Items)))

	opts, err := s.options(ctx, c)
	if err != nil {
		span.RecordError(err)
		return pricing.Result{}, err
	}
	res := pricing.Compute(c.TenantID, c.Lines(), opts)
	obs.ObserveQuote(res.Empty)
	return res, nil
}

func (s *Service) options(ctx context.Context, c Cart) (pricing.Options, error) {
	var opts pricing.Options
	if s.Settings != nil {
		settings, err := s.Settings.Settings(ctx, c.TenantID)
		if err != nil {
			return opts, err
		}
		opts.Slabs = settings.Slabs
		opts.Shipping = settings.Shipping
		opts.Tax = settings.Tax
		opts.Customer.CatalogOnly = settings.CatalogOnlyForNewCustomers
	}
	if s.History != nil {
		hist, err := s.History.CustomerHistory(ctx, c.TenantID, c.CustomerRef)
		if err != nil {
			return opts, fmt.Errorf("customer history: %w", err)
		}
		opts.Customer.Returning = hist.Returning
		opts.Customer.LastPrices = hist.BestPrices
	}
	if opts.Customer.Returning {
		opts.Customer.CatalogOnly = false
	}
	opts.ApprovedDiscount = c.Discount
	// the legacy cart-level amount is superseded by any approved discount or override
	if !c.Discount.Valid() && !c.hasApprovedOverrides() {
		opts.DiscountAmount = c.LegacyDiscount
	}
	opts.RoundTotals = s.RoundTotals
	opts.CustomerState = c.CustomerState
	return opts, nil
}

// Load returns the customer's cart, or ErrNotFound.
func (s *Service) Load(ctx context.Context, tenantID uuid.UUID, customerRef string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	if strings.TrimSpace(customerRef) == "" {
		return Cart{}, fmt.Errorf("customer is required: %w", ErrInvalidInput)
	}
	return s.Store.GetCart(ctx, tenantID, customerRef)
}

// Preview prices the persisted cart without side effects. A missing cart
// yields an empty result.
func (s *Service) Preview(ctx context.Context, tenantID uuid.UUID, customerRef string) (pricing.Result, error) {
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return pricing.Compute(tenantID, nil, pricing.Options{}), nil
		}
		return pricing.Result{}, err
	}
	return s.Quote(ctx, c)
}

// View is the conversational "show my cart": a preview followed by removal
// of stale overrides so later computations are not polluted.
func (s *Service) View(ctx context.Context, tenantID uuid.UUID, customerRef string) (pricing.Result, error) {
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return pricing.Compute(tenantID, nil, pricing.Options{}), nil
		}
		return pricing.Result{}, err
	}
	res, err := s.Quote(ctx, c)
	if err != nil {
		return pricing.Result{}, err
	}
	if len(res.StaleOverrides) > 0 {
		if err := s.Store.ClearOverrides(ctx, c.ID, res.StaleOverrides); err != nil {
			s.log().Warn().Err(err).Str("cart_id", c.ID.String()).Msg("clear stale overrides")
		}
	}
	return res, nil
}

// AddItem creates the cart lazily and inserts or increments a line.
func (s *Service) AddItem(ctx context.Context, tenantID uuid.UUID, customerRef string, productID uuid.UUID, qty int) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	if strings.TrimSpace(customerRef) == "" {
		return Cart{}, fmt.Errorf("customer is required: %w", ErrInvalidInput)
	}
	if qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	product, err := s.Store.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return Cart{}, err
	}
	if product.CatalogPrice.Sign() <= 0 {
		return Cart{}, fmt.Errorf("product is not priced: %w", ErrInvalidInput)
	}
	c, err := s.Store.EnsureCart(ctx, tenantID, customerRef)
	if err != nil {
		return Cart{}, err
	}
	if existing, ok := c.FindProduct(productID); ok {
		next := existing.Quantity + qty
		if next > s.maxQty() {
			return Cart{}, fmt.Errorf("qty exceeds maximum of %d: %w", s.maxQty(), ErrInvalidInput)
		}
		if err := s.Store.SetItemQuantity(ctx, c.ID, existing.ID, next); err != nil {
			return Cart{}, err
		}
	} else {
		if qty > s.maxQty() {
			return Cart{}, fmt.Errorf("qty exceeds maximum of %d: %w", s.maxQty(), ErrInvalidInput)
		}
		if _, err := s.Store.InsertItem(ctx, c.ID, productID, qty); err != nil {
			return Cart{}, err
		}
	}
	return s.revalidateDiscount(ctx, tenantID, customerRef)
}

// revalidateDiscount reloads the cart after a line change and drops an
// accepted volume offer whose slab no longer covers the cart's units.
func (s *Service) revalidateDiscount(ctx context.Context, tenantID uuid.UUID, customerRef string) (Cart, error) {
	c, err := s.Store.GetCart(ctx, tenantID, customerRef)
	if err != nil {
		return Cart{}, err
	}
	if c.Discount == nil || c.Discount.Source != discount.SourceVolume {
		return c, nil
	}
	opts, err := s.options(ctx, c)
	if err != nil {
		return Cart{}, err
	}
	units := pricing.Compute(c.TenantID, c.Lines(), opts).TotalUnits
	if c.Discount.Matches(opts.Slabs, units) {
		return c, nil
	}
	if err := s.Store.SetDiscount(ctx, c.ID, nil); err != nil {
		return Cart{}, err
	}
	s.log().Info().Str("cart_id", c.ID.String()).Str("slab", c.Discount.Slab).Int("units", units).Msg("volume offer withdrawn after cart change")
	c.Discount = nil
	return c, nil
}

// UpdateQty sets the quantity of a line.
func (s *Service) UpdateQty(ctx context.Context, tenantID uuid.UUID, customerRef string, itemID uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	if qty > s.maxQty() {
		return fmt.Errorf("qty exceeds maximum of %d: %w", s.maxQty(), ErrInvalidInput)
	}
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		return err
	}
	if _, ok := c.FindItem(itemID); !ok {
		return ErrNotFound
	}
	if err := s.Store.SetItemQuantity(ctx, c.ID, itemID, qty); err != nil {
		return err
	}
	_, err = s.revalidateDiscount(ctx, tenantID, customerRef)
	return err
}

// RemoveItem deletes a cart line.
func (s *Service) RemoveItem(ctx context.Context, tenantID uuid.UUID, customerRef string, itemID uuid.UUID) error {
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		return err
	}
	if _, ok := c.FindItem(itemID); !ok {
		return ErrNotFound
	}
	if err := s.Store.DeleteItem(ctx, c.ID, itemID); err != nil {
		return err
	}
	_, err = s.revalidateDiscount(ctx, tenantID, customerRef)
	return err
}

// ApproveItemPrice records a negotiated unit price for one line and marks it
// approved.
func (s *Service) ApproveItemPrice(ctx context.Context, tenantID uuid.UUID, customerRef string, itemID uuid.UUID, price decimal.Decimal) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("negotiated price must be positive: %w", ErrInvalidInput)
	}
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		return err
	}
	item, ok := c.FindItem(itemID)
	if !ok {
		return ErrNotFound
	}
	if price.GreaterThan(item.Product.CatalogPrice) {
		return fmt.Errorf("negotiated price above catalog: %w", ErrInvalidInput)
	}
	if c.Discount.Valid() && c.Discount.Source == discount.SourceVolume {
		return ErrDiscountConflict
	}
	return s.Store.SetItemOverride(ctx, c.ID, itemID, money.Ptr(money.Round(price)), true)
}

// ApproveDiscount stores an order-level negotiated percentage. It replaces
// any previous approval, including an accepted volume offer.
func (s *Service) ApproveDiscount(ctx context.Context, tenantID uuid.UUID, customerRef string, percent decimal.Decimal) (discount.Approved, error) {
	if percent.Sign() <= 0 || percent.GreaterThan(decimal.NewFromInt(100)) {
		return discount.Approved{}, fmt.Errorf("percent must be within (0,100]: %w", ErrInvalidInput)
	}
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		return discount.Approved{}, err
	}
	approved := discount.Approved{Source: discount.SourceNegotiated, Percent: percent, ApprovedAt: s.now().UTC()}
	if err := s.Store.SetDiscount(ctx, c.ID, &approved); err != nil {
		return discount.Approved{}, err
	}
	return approved, nil
}

// OfferVolumeDiscount runs the volume calculator against the cart so the
// conversation can propose it. Nothing is stored.
func (s *Service) OfferVolumeDiscount(ctx context.Context, tenantID uuid.UUID, customerRef string, mode discount.Mode, custom *decimal.Decimal) (discount.Decision, error) {
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		return discount.Decision{}, err
	}
	if (c.Discount.Valid() && c.Discount.Source == discount.SourceNegotiated) || c.hasApprovedOverrides() {
		return discount.Decision{}, ErrDiscountConflict
	}
	undiscounted := c
	undiscounted.Discount = nil
	undiscounted.LegacyDiscount = decimal.Zero
	res, err := s.Quote(ctx, undiscounted)
	if err != nil {
		return discount.Decision{}, err
	}
	if res.Empty {
		return discount.Decision{}, fmt.Errorf("cart is empty: %w", ErrInvalidInput)
	}
	var slabs discount.SlabTable
	if s.Settings != nil {
		settings, err := s.Settings.Settings(ctx, tenantID)
		if err != nil {
			return discount.Decision{}, err
		}
		slabs = settings.Slabs
	}
	return discount.Calculate(slabs, res.Subtotal, res.TotalUnits, mode, custom), nil
}

// AcceptVolumeOffer stores the volume decision as the cart's approved
// discount, so checkout reuses it instead of recalculating.
func (s *Service) AcceptVolumeOffer(ctx context.Context, tenantID uuid.UUID, customerRef string, mode discount.Mode, custom *decimal.Decimal) (discount.Approved, error) {
	decision, err := s.OfferVolumeDiscount(ctx, tenantID, customerRef, mode, custom)
	if err != nil {
		return discount.Approved{}, err
	}
	if decision.Slab == nil || decision.Percent.Sign() <= 0 {
		return discount.Approved{}, fmt.Errorf("no volume discount available: %w", ErrInvalidInput)
	}
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		return discount.Approved{}, err
	}
	approved := discount.Approved{
		Source:     discount.SourceVolume,
		Percent:    decision.Percent,
		Slab:       decision.Slab.Label(),
		ApprovedAt: s.now().UTC(),
	}
	if err := s.Store.SetDiscount(ctx, c.ID, &approved); err != nil {
		return discount.Approved{}, err
	}
	return approved, nil
}

// RemoveDiscount drops any approved order-level discount.
func (s *Service) RemoveDiscount(ctx context.Context, tenantID uuid.UUID, customerRef string) error {
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		return err
	}
	return s.Store.SetDiscount(ctx, c.ID, nil)
}

// SetShippingState records the buyer's state used for the tax jurisdiction.
func (s *Service) SetShippingState(ctx context.Context, tenantID uuid.UUID, customerRef, state string) error {
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		return err
	}
	return s.Store.SetCustomerState(ctx, c.ID, strings.ToUpper(strings.TrimSpace(state)))
}

// Clear empties the cart and resets discount metadata. Clearing a missing
// cart is a no-op.
func (s *Service) Clear(ctx context.Context, tenantID uuid.UUID, customerRef string) error {
	c, err := s.Load(ctx, tenantID, customerRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.Store.ClearCart(ctx, c.ID, StatusOpen); err != nil {
		return err
	}
	if s.Events != nil {
		payload := ClearedPayload{CartID: c.ID, CustomerRef: c.CustomerRef, Version: c.Version}
		if _, err := s.Events.Emit(ctx, tenantID, events.TopicCartCleared, c.ID, payload); err != nil {
			s.log().Warn().Err(err).Str("cart_id", c.ID.String()).Msg("cart cleared event")
		}
	}
	return nil
}

// ClearedPayload is the body of a cart.cleared event. Version is the
// generation that was discarded.
type ClearedPayload struct {
	CartID      uuid.UUID `json:"cartId"`
	CustomerRef string    `json:"customerRef"`
	Version     int64     `json:"version"`
}

// MarkCommitted clears a cart whose contents became an order.
func (s *Service) MarkCommitted(ctx context.Context, c Cart) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Store.ClearCart(ctx, c.ID, StatusCommitted)
}
