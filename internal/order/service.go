package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/events"
)

// Store is the persistence contract for orders.
type Store interface {
	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (Order, error)
	ListOrders(ctx context.Context, tenantID uuid.UUID, customerRef string, limit, offset int) ([]Order, int, error)
	CancelOrder(ctx context.Context, tenantID, orderID uuid.UUID) error
}

// CreatedPayload is the body of order.created events.
type CreatedPayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	Number      string    `json:"number"`
	CustomerRef string    `json:"customerRef"`
	GrandTotal  string    `json:"grandTotal"`
	ItemCount   int       `json:"itemCount"`
}

// NewCreatedPayload summarises an order for downstream notifiers.
func NewCreatedPayload(o Order) CreatedPayload {
	return CreatedPayload{
		OrderID:     o.ID,
		Number:      o.Number,
		CustomerRef: o.CustomerRef,
		GrandTotal:  o.GrandTotal.StringFixed(2),
		ItemCount:   len(o.Items),
	}
}

// Service exposes order lookups and cancellation.
type Service struct {
	Store  Store
	Events *events.Bus
	Logger *zerolog.Logger
}

// Get returns an order owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID, orderID uuid.UUID) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	return s.Store.GetOrder(ctx, tenantID, orderID)
}

// List returns a page of the customer's orders, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, customerRef string, limit, offset int) ([]Order, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("order service not configured")
	}
	return s.Store.ListOrders(ctx, tenantID, customerRef, limit, offset)
}

// Cancel moves a placed order to CANCELLED. Cancelled orders no longer count
// toward the duplicate-checkout window or returning-customer status.
func (s *Service) Cancel(ctx context.Context, tenantID, orderID uuid.UUID) (Order, error) {
	o, err := s.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if !o.Cancellable() {
		return Order{}, ErrInvalidState
	}
	if err := s.Store.CancelOrder(ctx, tenantID, orderID); err != nil {
		return Order{}, err
	}
	o.Status = StatusCancelled
	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, tenantID, events.TopicOrderCancelled, o.ID, NewCreatedPayload(o)); err != nil && s.Logger != nil {
			s.Logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("order cancelled side effects")
		}
	}
	return o, nil
}
