package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/order"
)

// ErrNotFound is returned by stores when no state has been saved yet.
var ErrNotFound = errors.New("conversation: state not found")

// Record is a persisted conversation state.
type Record struct {
	TenantID    uuid.UUID
	CustomerRef string
	Name        StateName
	Payload     json.RawMessage
	UpdatedAt   time.Time
}

// Store persists one state per tenant and customer.
type Store interface {
	LoadState(ctx context.Context, tenantID uuid.UUID, customerRef string) (Record, error)
	SaveState(ctx context.Context, rec Record) error
}

// Machine validates and persists conversation transitions.
type Machine struct {
	Store  Store
	Logger *zerolog.Logger
	Now    func() time.Time
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Current returns the customer's state, Idle when nothing is stored.
func (m *Machine) Current(ctx context.Context, tenantID uuid.UUID, customerRef string) (State, error) {
	if m == nil || m.Store == nil {
		return nil, errors.New("conversation machine not configured")
	}
	rec, err := m.Store.LoadState(ctx, tenantID, customerRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Idle{}, nil
		}
		return nil, err
	}
	return Decode(rec.Name, rec.Payload)
}

// Transition moves the customer to next when the table allows it.
func (m *Machine) Transition(ctx context.Context, tenantID uuid.UUID, customerRef string, next State) (State, error) {
	current, err := m.Current(ctx, tenantID, customerRef)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Name(), next.Name()) {
		return current, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Name(), next.Name())
	}
	name, payload, err := Encode(next)
	if err != nil {
		return current, err
	}
	if err := m.Store.SaveState(ctx, Record{
		TenantID:    tenantID,
		CustomerRef: customerRef,
		Name:        name,
		Payload:     payload,
		UpdatedAt:   m.now().UTC(),
	}); err != nil {
		return current, fmt.Errorf("conversation: save state: %w", err)
	}
	return next, nil
}

// ProvideShippingInfo completes the flow for the order awaiting an address.
func (m *Machine) ProvideShippingInfo(ctx context.Context, tenantID uuid.UUID, customerRef string, info ShippingInfo) (State, error) {
	current, err := m.Current(ctx, tenantID, customerRef)
	if err != nil {
		return nil, err
	}
	awaiting, ok := current.(AwaitingShippingInfo)
	if !ok {
		return current, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Name(), NameCompleted)
	}
	return m.Transition(ctx, tenantID, customerRef, Completed{OrderID: awaiting.OrderID, Address: &info})
}

// Name identifies the machine as an event notifier.
func (m *Machine) Name() string { return "conversation_state" }

// Notify moves the buyer to awaiting_shipping_info after an order commit and
// back to idle when the order is cancelled.
func (m *Machine) Notify(ctx context.Context, ev events.Event) error {
	var payload order.CreatedPayload
	switch ev.Topic {
	case events.TopicOrderCreated, events.TopicOrderCancelled:
		if err := ev.Decode(&payload); err != nil {
			return fmt.Errorf("conversation: decode event: %w", err)
		}
	default:
		return nil
	}
	var next State = AwaitingShippingInfo{OrderID: payload.OrderID}
	if ev.Topic == events.TopicOrderCancelled {
		next = Idle{}
	}
	_, err := m.Transition(ctx, ev.TenantID, payload.CustomerRef, next)
	if errors.Is(err, ErrIllegalTransition) {
		if m.Logger != nil {
			m.Logger.Warn().Err(err).Str("order_id", payload.OrderID.String()).Msg("conversation state unchanged")
		}
		return nil
	}
	return err
}
