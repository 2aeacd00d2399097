package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/events"
)

type captureStore struct {
	events []events.Event
	err    error
}

func (s *captureStore) InsertDomainEvent(_ context.Context, ev events.Event) error {
	s.events = append(s.events, ev)
	return s.err
}

type captureNotifier struct {
	name   string
	events []events.Event
	err    error
}

func (c *captureNotifier) Name() string { return c.name }

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &captureStore{}
	notifier := &captureNotifier{name: "conversation"}
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return fixed }}

	tenantID := uuid.New()
	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), tenantID, events.TopicOrderCreated, aggregate, map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)
	require.Equal(t, tenantID, event.TenantID)
	require.Equal(t, fixed, event.OccurredAt)
	require.JSONEq(t, `{"orderId":"123"}`, string(event.Payload))

	var decoded struct {
		OrderID string `json:"orderId"`
	}
	require.NoError(t, event.Decode(&decoded))
	require.Equal(t, "123", decoded.OrderID)
}

func TestEmitRunsEveryNotifierAndJoinsErrors(t *testing.T) {
	failing := &captureNotifier{name: "queue", err: errors.New("redis down")}
	ok := &captureNotifier{name: "conversation"}
	bus := events.Bus{Notifiers: []events.Notifier{failing, nil, ok}}

	_, err := bus.Emit(context.Background(), uuid.New(), events.TopicOrderCreated, uuid.New(), nil)
	require.Error(t, err)
	require.ErrorContains(t, err, "queue")
	require.Len(t, failing.events, 1)
	require.Len(t, ok.events, 1)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), uuid.New(), " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), uuid.New(), "order.shipped", uuid.New(), nil)
	require.ErrorContains(t, err, "unknown topic")
	_, err = bus.Emit(context.Background(), uuid.New(), events.TopicOrderCreated, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), uuid.New(), events.TopicOrderCreated, uuid.New(), []byte("{bad"))
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), uuid.New(), events.TopicOrderCreated, uuid.New(), nil)
	require.Error(t, err)
}
