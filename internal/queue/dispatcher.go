package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/order"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns committed order events into background tasks.
type Dispatcher struct {
	Client  Enqueuer
	Options Options
	Logger  *zerolog.Logger
}

func (d *Dispatcher) Name() string { return "queue" }

// Notify enqueues the ledger sync, confirmation message and shipping prompt
// for order.created, and a ledger reversal for order.cancelled.
func (d *Dispatcher) Notify(ctx context.Context, ev events.Event) error {
	var kinds []string
	switch ev.Topic {
	case events.TopicOrderCreated:
		kinds = []string{TypeLedgerSync, TypeOrderConfirmation, TypeShippingPrompt}
	case events.TopicOrderCancelled:
		kinds = []string{TypeLedgerSync}
	default:
		return nil
	}
	if d.Client == nil {
		return errors.New("queue: client not configured")
	}
	var payload order.CreatedPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("queue: decode %s: %w", ev.Topic, err)
	}
	p := OrderTask{
		TenantID:    ev.TenantID,
		OrderID:     payload.OrderID,
		CustomerRef: payload.CustomerRef,
		Number:      payload.Number,
		GrandTotal:  payload.GrandTotal,
		ItemCount:   payload.ItemCount,
		Topic:       ev.Topic,
	}
	var errs []error
	for _, kind := range kinds {
		if err := d.enqueue(ctx, kind, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) enqueue(ctx context.Context, kind string, p OrderTask) error {
	task, err := NewOrderTask(kind, p, d.Options)
	if err != nil {
		return err
	}
	info, err := d.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		EnqueuedTotal.WithLabelValues(kind, "duplicate").Inc()
		return nil
	}
	if err != nil {
		EnqueuedTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("queue: enqueue %s: %w", kind, err)
	}
	EnqueuedTotal.WithLabelValues(kind, "ok").Inc()
	if d.Logger != nil && info != nil {
		d.Logger.Debug().Str("task_id", info.ID).Str("kind", kind).Str("queue", info.Queue).Msg("task enqueued")
	}
	return nil
}
