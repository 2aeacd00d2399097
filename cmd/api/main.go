package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/conversation"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/health"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/queue"
	"github.com/noah-isme/toko-checkout/internal/ratelimit"
	"github.com/noah-isme/toko-checkout/internal/repo"
	"github.com/noah-isme/toko-checkout/internal/security"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "toko-checkout-api").Logger()

	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics("toko", nil)
	}

	tracingEnabled := cfg.OTLPEndpoint != ""
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName: "toko-checkout-api",
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			SampleRatio: cfg.TraceSampleRatio,
			Environment: cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := repo.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := repo.OpenPool(ctx, cfg.DatabaseURL, "toko-checkout-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	store := repo.New(pool)

	redisClient, err := openRedis(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse queue redis url")
	}
	taskClient := asynq.NewClient(asynqOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	settings := &tenant.ConfigProvider{
		Source: store,
		Cache:  tenant.NewCache(redisClient, cfg.TenantConfigCacheTTL),
		Logger: loggerFor(logger, "tenant"),
	}

	machine := &conversation.Machine{Store: store, Logger: loggerFor(logger, "conversation")}
	bus := &events.Bus{
		Store: store,
		Notifiers: []events.Notifier{
			machine,
			&queue.Dispatcher{
				Client:  taskClient,
				Options: queue.Options{PromptDelay: cfg.ShippingPromptDelay},
				Logger:  loggerFor(logger, "queue"),
			},
		},
	}

	cartSvc := &cart.Service{
		Store:       store,
		History:     store,
		Settings:    settings,
		MaxItemQty:  cfg.CartMaxItemQty,
		RoundTotals: cfg.PricingRoundTotals,
		Events:      bus,
		Logger:      loggerFor(logger, "cart"),
	}
	checkoutSvc := &checkout.Service{
		Carts:           cartSvc,
		Orders:          store,
		Locker:          lock.Locker{R: redisClient},
		Events:          bus,
		LockTTL:         cfg.CheckoutLockTTL,
		DuplicateWindow: cfg.CheckoutDuplicateWindow,
		Logger:          loggerFor(logger, "checkout"),
	}
	orderSvc := &order.Service{Store: store, Events: bus, Logger: loggerFor(logger, "order")}

	cartHandler := &cart.Handler{Svc: cartSvc}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}
	orderHandler := &order.Handler{Svc: orderSvc}
	conversationHandler := &conversation.Handler{Machine: machine}

	limiterStore, err := ratelimit.NewRedisStore(redisClient, "toko:ratelimit:checkout")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	checkoutLimiter, err := ratelimit.NewFixed(limiterStore, cfg.RateLimitCheckout)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout rate limit")
	}
	rateLimit := ratelimit.Handler{
		Limiter: checkoutLimiter,
		Key:     ratelimit.TenantCustomerKey,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limit store unavailable") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, TenantHeader: cfg.TenantHeader}
	dedup := conversation.NewDeduper(cfg.MessageDedupSize, cfg.MessageDedupTTL)
	resolver := tenant.NewResolver(cfg.TenantHeader, cfg.TenantRootDomain, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.Tracing("toko-checkout-api", cfg.TenantHeader))
	}
	if cfg.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.MetricsBucketsMS)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics("toko", buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, TenantHeader: cfg.TenantHeader}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.Production()}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", cfg.TenantHeader, "Idempotency-Key", "X-Message-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if !cfg.Production() {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), os.Getenv("PPROF_BASIC_AUTH_USER"), os.Getenv("PPROF_BASIC_AUTH_PASS")))
	}

	healthHandler := health.Handler{Checker: health.Deps{DB: pool, Redis: redisClient}}
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/v1", func(v chi.Router) {
		v.Use(resolver.Middleware)
		v.Use(dedup.Middleware)

		v.Post("/pricing/preview", cartHandler.Preview)
		v.Get("/pricing/tax-inclusive", cartHandler.TaxInclusive)

		v.Route("/carts/{customer}", cartHandler.Routes)

		v.With(rateLimit.Middleware, idem.Middleware).Post("/checkout/{customer}", checkoutHandler.Checkout)

		v.Get("/orders", orderHandler.List)
		v.Get("/orders/{id}", orderHandler.Get)
		v.With(idem.Middleware).Post("/orders/{id}/cancel", orderHandler.Cancel)

		v.Get("/conversations/{customer}", conversationHandler.Get)
		v.Post("/conversations/{customer}/shipping-info", conversationHandler.ShippingInfo)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		health.SetReady(false)
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	health.SetReady(true)
	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func loggerFor(base zerolog.Logger, component string) *zerolog.Logger {
	l := base.With().Str("component", component).Logger()
	return &l
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
