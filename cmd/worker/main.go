package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/notify"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/queue"
	"github.com/noah-isme/toko-checkout/internal/repo"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics("toko", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName: "toko-checkout-worker",
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			SampleRatio: cfg.TraceSampleRatio,
			Environment: cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := repo.OpenPool(initCtx, cfg.DatabaseURL, "toko-checkout-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient := mustInitRedis(initCtx, cfg, logger)
	cancel()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	replay := notify.RedisReplayProtector{Client: redisClient, Prefix: "toko:notify", ClaimTTL: 2 * cfg.OutboundTimeout * time.Duration(cfg.OutboundRetries+1)}
	httpClient := notify.HttpClient(cfg.OutboundTimeout, false)

	messenger := &notify.Gateway{
		BaseURL:   cfg.MessagingGatewayURL,
		Path:      "/messages",
		Secret:    cfg.OutboundSecret,
		HTTP:      outbound(cfg, httpClient, "messaging", logger),
		Replay:    replay,
		ReplayTTL: 24 * time.Hour,
	}
	ledger := &notify.Gateway{
		BaseURL:   cfg.LedgerSyncURL,
		Path:      "/entries",
		Secret:    cfg.OutboundSecret,
		HTTP:      outbound(cfg, httpClient, "ledger", logger),
		Replay:    replay,
		ReplayTTL: 24 * time.Hour,
	}

	worker := &notify.Worker{
		Orders:    repo.New(pool),
		Messenger: messenger,
		Ledger:    ledger,
		Locker:    lock.Locker{R: redisClient},
		LockTTL:   cfg.LedgerLockTTL,
		Logger:    &logger,
	}

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse queue redis url")
	}
	srv := queue.NewServer(asynqOpt, queue.ServerConfig{
		Concurrency:     cfg.QueueConcurrency,
		RetryBase:       cfg.QueueRetryBase,
		RetryJitter:     0.2,
		ShutdownTimeout: 20 * time.Second,
	}, logger)

	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	if err := srv.Start(queue.NewServeMux(worker)); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func outbound(cfg *config.Config, client *http.Client, target string, logger zerolog.Logger) resilience.HTTPClient {
	l := logger.With().Str("target", target).Logger()
	return resilience.HTTPClient{
		Client: client,
		Breaker: resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerCooldown).
			WithTarget(target).
			WithLogger(l),
		BaseBackoff: cfg.OutboundBackoff,
		MaxAttempts: cfg.OutboundRetries + 1,
		Jitter:      0.2,
		Timeout:     cfg.OutboundTimeout,
		Target:      target,
		Logger:      &l,
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
