package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// Handlers processes the order follow-up tasks.
type Handlers interface {
	HandleLedgerSync(ctx context.Context, t *asynq.Task) error
	HandleOrderConfirmation(ctx context.Context, t *asynq.Task) error
	HandleShippingPrompt(ctx context.Context, t *asynq.Task) error
}

// NewServeMux routes task types to h.
func NewServeMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(Instrument)
	mux.HandleFunc(TypeLedgerSync, h.HandleLedgerSync)
	mux.HandleFunc(TypeOrderConfirmation, h.HandleOrderConfirmation)
	mux.HandleFunc(TypeShippingPrompt, h.HandleShippingPrompt)
	return mux
}

// ServerConfig holds worker tuning.
type ServerConfig struct {
	Concurrency     int
	RetryBase       time.Duration
	RetryJitter     float64
	ShutdownTimeout time.Duration
}

// NewServer returns an asynq server with exponential retry backoff and
// zerolog output.
func NewServer(redis asynq.RedisConnOpt, cfg ServerConfig, logger zerolog.Logger) *asynq.Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
		},
		RetryDelayFunc:  RetryDelay(cfg.RetryBase, cfg.RetryJitter),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          Logger{L: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			taskID, _ := asynq.GetTaskID(ctx)
			logger.Error().Err(err).Str("kind", t.Type()).Str("task_id", taskID).Int("retried", retried).Msg("task failed")
		}),
	})
}

// RetryDelay applies the outbound backoff policy to task retries.
func RetryDelay(base time.Duration, jitter float64) asynq.RetryDelayFunc {
	if base <= 0 {
		base = 2 * time.Second
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n > 16 {
			return time.Hour
		}
		d := resilience.Backoff(base, n+1, jitter)
		if d > time.Hour {
			return time.Hour
		}
		return d
	}
}

// Logger adapts zerolog to asynq.Logger.
type Logger struct {
	L zerolog.Logger
}

func (l Logger) Debug(args ...any) { l.L.Debug().Msg(fmt.Sprint(args...)) }
func (l Logger) Info(args ...any)  { l.L.Info().Msg(fmt.Sprint(args...)) }
func (l Logger) Warn(args ...any)  { l.L.Warn().Msg(fmt.Sprint(args...)) }
func (l Logger) Error(args ...any) { l.L.Error().Msg(fmt.Sprint(args...)) }
func (l Logger) Fatal(args ...any) { l.L.Fatal().Msg(fmt.Sprint(args...)) }
