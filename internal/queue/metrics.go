package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueued_total",
			Help: "Tasks enqueued grouped by kind and outcome",
		},
		[]string{"kind", "result"},
	)
	ProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Tasks processed grouped by kind and status",
		},
		[]string{"kind", "status"},
	)
	ProcessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_process_duration_seconds",
			Help:    "Task handler latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(EnqueuedTotal, ProcessedTotal, ProcessDuration)
}

// Instrument records the outcome and latency of every handled task.
func Instrument(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		ProcessDuration.WithLabelValues(t.Type()).Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "failed"
			if retried, ok := asynq.GetRetryCount(ctx); ok {
				if maxRetry, ok := asynq.GetMaxRetry(ctx); ok && retried >= maxRetry {
					status = "archived"
				}
			}
		}
		ProcessedTotal.WithLabelValues(t.Type(), status).Inc()
		return err
	})
}
