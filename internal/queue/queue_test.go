package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/queue"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	seen  map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := task.Type() + string(task.Payload())
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[key] = true
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Queue: "default", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.Type())
	}
	return out
}

func orderEvent(t *testing.T, topic string) events.Event {
	t.Helper()
	bus := events.Bus{}
	ev, err := bus.Emit(context.Background(), uuid.New(), topic, uuid.New(), order.CreatedPayload{
		OrderID: uuid.New(), Number: "ORD-20260301-ABCDEF12", CustomerRef: "cust-1", GrandTotal: "1671.00", ItemCount: 1,
	})
	require.NoError(t, err)
	return ev
}

func TestDispatcherEnqueuesOrderFollowUps(t *testing.T) {
	client := &fakeEnqueuer{}
	d := &queue.Dispatcher{Client: client}

	ev := orderEvent(t, events.TopicOrderCreated)
	require.NoError(t, d.Notify(context.Background(), ev))
	require.ElementsMatch(t, []string{queue.TypeLedgerSync, queue.TypeOrderConfirmation, queue.TypeShippingPrompt}, client.types())

	// a replayed event collides on task id and is not an error
	require.NoError(t, d.Notify(context.Background(), ev))
	require.Len(t, client.types(), 3)
}

func TestDispatcherCancelledOrderSyncsLedgerOnly(t *testing.T) {
	client := &fakeEnqueuer{}
	d := &queue.Dispatcher{Client: client}
	require.NoError(t, d.Notify(context.Background(), orderEvent(t, events.TopicOrderCancelled)))
	require.Equal(t, []string{queue.TypeLedgerSync}, client.types())

	p, err := queue.DecodeOrderTask(client.tasks[0])
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCancelled, p.Topic)
	require.Equal(t, "cust-1", p.CustomerRef)
}

func TestDispatcherIgnoresOtherTopicsAndSurfacesErrors(t *testing.T) {
	client := &fakeEnqueuer{err: errors.New("redis down")}
	d := &queue.Dispatcher{Client: client}
	require.NoError(t, d.Notify(context.Background(), orderEvent(t, events.TopicCartCleared)))
	require.Error(t, d.Notify(context.Background(), orderEvent(t, events.TopicOrderCreated)))
}

func TestNewOrderTaskValidatesIDs(t *testing.T) {
	_, err := queue.NewOrderTask(queue.TypeLedgerSync, queue.OrderTask{}, queue.Options{})
	require.Error(t, err)

	task, err := queue.NewOrderTask(queue.TypeLedgerSync, queue.OrderTask{TenantID: uuid.New(), OrderID: uuid.New()}, queue.Options{})
	require.NoError(t, err)
	require.Equal(t, queue.TypeLedgerSync, task.Type())
}

func TestDecodeOrderTaskSkipsRetryOnBadPayload(t *testing.T) {
	_, err := queue.DecodeOrderTask(asynq.NewTask(queue.TypeLedgerSync, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	_, err = queue.DecodeOrderTask(asynq.NewTask(queue.TypeLedgerSync, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTaskIDIsTenantScoped(t *testing.T) {
	tenantID := uuid.New()
	require.Equal(t, tenantID.String()+":ledger:sync:x", queue.TaskID(tenantID, queue.TypeLedgerSync, "x"))
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	delay := queue.RetryDelay(time.Second, 0)
	require.Equal(t, time.Second, delay(0, nil, nil))
	require.Equal(t, 4*time.Second, delay(2, nil, nil))
	require.Equal(t, time.Hour, delay(40, nil, nil))
}

type recordingHandlers struct{ handled []string }

func (h *recordingHandlers) HandleLedgerSync(_ context.Context, t *asynq.Task) error {
	h.handled = append(h.handled, t.Type())
	return nil
}

func (h *recordingHandlers) HandleOrderConfirmation(_ context.Context, t *asynq.Task) error {
	h.handled = append(h.handled, t.Type())
	return errors.New("gateway down")
}

func (h *recordingHandlers) HandleShippingPrompt(_ context.Context, t *asynq.Task) error {
	h.handled = append(h.handled, t.Type())
	return nil
}

func TestServeMuxRoutesAndInstruments(t *testing.T) {
	queue.ProcessedTotal.Reset()
	h := &recordingHandlers{}
	mux := queue.NewServeMux(h)

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(queue.TypeLedgerSync, nil)))
	require.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask(queue.TypeOrderConfirmation, nil)))
	require.Equal(t, []string{queue.TypeLedgerSync, queue.TypeOrderConfirmation}, h.handled)

	require.Equal(t, 1.0, testutil.ToFloat64(queue.ProcessedTotal.WithLabelValues(queue.TypeLedgerSync, "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(queue.ProcessedTotal.WithLabelValues(queue.TypeOrderConfirmation, "failed")))
}
