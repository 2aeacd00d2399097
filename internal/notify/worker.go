package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/queue"
)

// Message templates.
const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateShippingPrompt    = "shipping_prompt"
)

// OrderReader loads committed orders.
type OrderReader interface {
	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (order.Order, error)
}

// Worker executes order follow-up tasks. Ledger syncs for one order are
// serialised with a distributed lock.
type Worker struct {
	Orders    OrderReader
	Messenger Messenger
	Ledger    Ledger
	Locker    lock.Locker
	LockTTL   time.Duration
	Logger    *zerolog.Logger
}

var _ queue.Handlers = (*Worker)(nil)

func (w *Worker) log() *zerolog.Logger {
	if w.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return w.Logger
}

// HandleLedgerSync records a sale for order.created and a reversal for
// order.cancelled.
func (w *Worker) HandleLedgerSync(ctx context.Context, t *asynq.Task) error {
	if w.Ledger == nil {
		return errors.New("ledger worker: ledger not configured")
	}
	p, o, err := w.load(ctx, t)
	if err != nil {
		return err
	}
	entry := LedgerEntry{
		TenantID:    o.TenantID,
		OrderID:     o.ID,
		Number:      o.Number,
		CustomerRef: o.CustomerRef,
		Kind:        EntrySale,
		Net:         o.DiscountedSubtotal,
		Shipping:    o.ShippingCharge,
		Tax:         o.TaxAmount,
		Total:       o.GrandTotal,
		OccurredAt:  o.CreatedAt,
	}
	if p.Topic == events.TopicOrderCancelled {
		entry.Kind = EntryReversal
		entry.Net = entry.Net.Neg()
		entry.Shipping = entry.Shipping.Neg()
		entry.Tax = entry.Tax.Neg()
		entry.Total = entry.Total.Neg()
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key := queue.TaskID(o.TenantID, "lock:ledger", o.ID.String())
	return w.Locker.WithLock(ctx, key, ttl, func(ctx context.Context) error {
		if err := w.Ledger.Record(ctx, entry); err != nil {
			return fmt.Errorf("ledger sync %s: %w", o.Number, err)
		}
		w.log().Info().Str("order_id", o.ID.String()).Str("kind", entry.Kind).Msg("ledger synced")
		return nil
	})
}

// HandleOrderConfirmation messages the buyer the committed totals.
func (w *Worker) HandleOrderConfirmation(ctx context.Context, t *asynq.Task) error {
	_, o, err := w.load(ctx, t)
	if err != nil {
		return err
	}
	return w.send(ctx, Message{
		TenantID:    o.TenantID,
		CustomerRef: o.CustomerRef,
		Template:    TemplateOrderConfirmation,
		Text:        ConfirmationText(o),
		Reference:   TemplateOrderConfirmation + ":" + o.ID.String(),
	})
}

// HandleShippingPrompt asks the buyer for a delivery address. Cancelled
// orders are skipped.
func (w *Worker) HandleShippingPrompt(ctx context.Context, t *asynq.Task) error {
	_, o, err := w.load(ctx, t)
	if err != nil {
		return err
	}
	if !o.Cancellable() {
		w.log().Info().Str("order_id", o.ID.String()).Msg("skip shipping prompt for cancelled order")
		return nil
	}
	return w.send(ctx, Message{
		TenantID:    o.TenantID,
		CustomerRef: o.CustomerRef,
		Template:    TemplateShippingPrompt,
		Text:        ShippingPromptText(o),
		Reference:   TemplateShippingPrompt + ":" + o.ID.String(),
	})
}

func (w *Worker) send(ctx context.Context, msg Message) error {
	if w.Messenger == nil {
		return errors.New("message worker: messenger not configured")
	}
	if err := w.Messenger.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Template, err)
	}
	return nil
}

func (w *Worker) load(ctx context.Context, t *asynq.Task) (queue.OrderTask, order.Order, error) {
	p, err := queue.DecodeOrderTask(t)
	if err != nil {
		return queue.OrderTask{}, order.Order{}, err
	}
	if w.Orders == nil {
		return p, order.Order{}, errors.New("order worker: order store not configured")
	}
	o, err := w.Orders.GetOrder(ctx, p.TenantID, p.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return p, order.Order{}, fmt.Errorf("order %s: %w", p.OrderID, asynq.SkipRetry)
	}
	if err != nil {
		return p, order.Order{}, err
	}
	return p, o, nil
}
