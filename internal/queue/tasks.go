package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task types handled by the worker.
const (
	TypeLedgerSync        = "ledger:sync"
	TypeOrderConfirmation = "message:order_confirmation"
	TypeShippingPrompt    = "message:shipping_prompt"
)

// Queue names and their weights on the worker.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// OrderTask is the payload of every order follow-up task.
type OrderTask struct {
	TenantID    uuid.UUID `json:"tenantId"`
	OrderID     uuid.UUID `json:"orderId"`
	CustomerRef string    `json:"customerRef"`
	Number      string    `json:"number"`
	GrandTotal  string    `json:"grandTotal"`
	ItemCount   int       `json:"itemCount"`
	// Topic is the event that produced the task, e.g. order.cancelled for a
	// ledger reversal.
	Topic string `json:"topic"`
}

// Options tunes how follow-up tasks are enqueued.
type Options struct {
	MaxRetry     int
	Timeout      time.Duration
	PromptDelay  time.Duration
	UniqueWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetry <= 0 {
		o.MaxRetry = 8
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.UniqueWindow <= 0 {
		o.UniqueWindow = 24 * time.Hour
	}
	return o
}

// NewOrderTask builds a task of kind for p. The task id is derived from the
// tenant, kind, topic and order so a replayed event cannot enqueue it twice.
func NewOrderTask(kind string, p OrderTask, opts Options) (*asynq.Task, error) {
	if p.TenantID == uuid.Nil || p.OrderID == uuid.Nil {
		return nil, fmt.Errorf("queue: %s task needs tenant and order", kind)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: encode %s payload: %w", kind, err)
	}
	opts = opts.withDefaults()
	taskOpts := []asynq.Option{
		asynq.TaskID(TaskID(p.TenantID, kind, p.Topic+":"+p.OrderID.String())),
		asynq.MaxRetry(opts.MaxRetry),
		asynq.Timeout(opts.Timeout),
		asynq.Retention(opts.UniqueWindow),
	}
	switch kind {
	case TypeLedgerSync:
		taskOpts = append(taskOpts, asynq.Queue(QueueCritical))
	case TypeShippingPrompt:
		taskOpts = append(taskOpts, asynq.Queue(QueueDefault), asynq.ProcessIn(opts.PromptDelay))
	default:
		taskOpts = append(taskOpts, asynq.Queue(QueueDefault))
	}
	return asynq.NewTask(kind, payload, taskOpts...), nil
}

// DecodeOrderTask reads the payload of an order follow-up task.
func DecodeOrderTask(t *asynq.Task) (OrderTask, error) {
	var p OrderTask
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return OrderTask{}, fmt.Errorf("queue: decode %s payload: %w", t.Type(), asynq.SkipRetry)
	}
	if p.TenantID == uuid.Nil || p.OrderID == uuid.Nil {
		return OrderTask{}, fmt.Errorf("queue: %s payload missing ids: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}
