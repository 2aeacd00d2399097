package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var (
	// ErrEmptyCart is returned when nothing in the cart can be ordered.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrDuplicate is returned when a checkout for the customer is running or just completed.
	ErrDuplicate = errors.New("checkout already in progress")
)

const (
	defaultDuplicateWindow = 10 * time.Minute
	defaultLockTTL         = 30 * time.Second
)

// Carts is the subset of cart.Service checkout depends on.
type Carts interface {
	Load(ctx context.Context, tenantID uuid.UUID, customerRef string) (cart.Cart, error)
	Quote(ctx context.Context, c cart.Cart) (pricing.Result, error)
	MarkCommitted(ctx context.Context, c cart.Cart) error
}

// OrderStore persists orders. CreateOrder returns order.ErrDuplicate when an
// order already exists for the cart generation.
type OrderStore interface {
	LatestOrder(ctx context.Context, tenantID uuid.UUID, customerRef string) (order.Order, error)
	CreateOrder(ctx context.Context, o order.Order) error
}

// Locker acquires a non-blocking lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (lock.Release, error)
}

// Confirmation is returned for a committed checkout.
type Confirmation struct {
	OrderID    uuid.UUID      `json:"orderId"`
	Number     string         `json:"number"`
	Status     order.Status   `json:"status"`
	GrandTotal string         `json:"grandTotal"`
	Order      order.Order    `json:"order"`
	Pricing    pricing.Result `json:"pricing"`
}

// Service coordinates checkout: duplicate guard, pricing of the stored cart,
// order persistence, cart reset and post-commit notifications.
type Service struct {
	Carts           Carts
	Orders          OrderStore
	Locker          Locker
	Events          *events.Bus
	LockTTL         time.Duration
	DuplicateWindow time.Duration
	Logger          *zerolog.Logger
	Now             func() time.Time
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

func (s *Service) window() time.Duration {
	if s.DuplicateWindow <= 0 {
		return defaultDuplicateWindow
	}
	return s.DuplicateWindow
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return defaultLockTTL
	}
	return s.LockTTL
}

func emptyCart() error {
	return common.NewAppError(common.CodeEmptyCart, "cart has no orderable items", http.StatusUnprocessableEntity, ErrEmptyCart)
}

func duplicate() error {
	return common.NewAppError(common.CodeDuplicateInProgress, "an order for this cart is already being placed", http.StatusConflict, ErrDuplicate)
}

func internalError(err error) error {
	return common.Internal("checkout failed", err)
}

// Checkout turns the customer's persisted cart into an order exactly once.
func (s *Service) Checkout(ctx context.Context, tenantID uuid.UUID, customerRef string) (conf Confirmation, err error) {
	if s == nil || s.Carts == nil || s.Orders == nil {
		return Confirmation{}, internalError(errors.New("checkout service not configured"))
	}
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.commit")
	span.SetAttributes(attribute.String("tenant.id", tenantID.String()))
	start := s.now()
	logger := s.log().With().Str("tenant_id", tenantID.String()).Str("customer", customerRef).Logger()
	defer func() {
		obs.ObserveCheckout(resultOf(err), s.now().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, resultOf(err))
		}
		span.End()
	}()

	att := newAttempt(&logger)

	if s.Locker != nil {
		release, lockErr := s.Locker.TryLock(ctx, lockKey(tenantID, customerRef), s.lockTTL())
		switch {
		case errors.Is(lockErr, lock.ErrLocked):
			return Confirmation{}, duplicate()
		case lockErr != nil:
			// the unique (cart, version) index still guards the race
			logger.Warn().Err(lockErr).Msg("checkout lock unavailable")
		default:
			defer release()
		}
	}

	latest, err := s.Orders.LatestOrder(ctx, tenantID, customerRef)
	switch {
	case err == nil:
		if s.now().Sub(latest.CreatedAt) < s.window() {
			return Confirmation{}, duplicate()
		}
	case errors.Is(err, order.ErrNotFound):
	default:
		return Confirmation{}, internalError(fmt.Errorf("latest order: %w", err))
	}

	c, err := s.Carts.Load(ctx, tenantID, customerRef)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return Confirmation{}, emptyCart()
		}
		return Confirmation{}, internalError(fmt.Errorf("load cart: %w", err))
	}
	res, err := s.Carts.Quote(ctx, c)
	if err != nil {
		att.abort()
		return Confirmation{}, internalError(fmt.Errorf("price cart: %w", err))
	}
	if res.Empty {
		att.abort()
		return Confirmation{}, emptyCart()
	}
	if err := att.advance(cart.StatusPriced); err != nil {
		return Confirmation{}, internalError(err)
	}

	o := order.FromResult(order.Source{
		TenantID:    tenantID,
		CustomerRef: customerRef,
		CartID:      c.ID,
		CartVersion: c.Version,
	}, res, s.now())
	if err := s.Orders.CreateOrder(ctx, o); err != nil {
		att.abort()
		if errors.Is(err, order.ErrDuplicate) {
			return Confirmation{}, duplicate()
		}
		logger.Error().Err(err).Msg("persist order")
		return Confirmation{}, internalError(fmt.Errorf("persist order: %w", err))
	}
	if err := att.advance(cart.StatusCommitted); err != nil {
		return Confirmation{}, internalError(err)
	}
	logger.Info().Str("order_id", o.ID.String()).Str("number", o.Number).Msg("order placed")

	if err := s.Carts.MarkCommitted(ctx, c); err != nil {
		obs.ObserveSideEffect("cart_clear", err)
		logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("clear committed cart")
	}
	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, tenantID, events.TopicOrderCreated, o.ID, order.NewCreatedPayload(o)); err != nil {
			logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("order created side effects")
		}
	}

	return Confirmation{
		OrderID:    o.ID,
		Number:     o.Number,
		Status:     o.Status,
		GrandTotal: o.GrandTotal.StringFixed(2),
		Order:      o,
		Pricing:    res,
	}, nil
}

func lockKey(tenantID uuid.UUID, customerRef string) string {
	return fmt.Sprintf("checkout:%s:%s", tenantID, customerRef)
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrEmptyCart):
		return "empty"
	default:
		return "error"
	}
}
