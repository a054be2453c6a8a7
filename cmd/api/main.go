package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/anjiru/duka-pos/internal/app"
	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/config"
	"github.com/anjiru/duka-pos/internal/customer"
	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/events"
	"github.com/anjiru/duka-pos/internal/gateway"
	"github.com/anjiru/duka-pos/internal/health"
	"github.com/anjiru/duka-pos/internal/inventory"
	"github.com/anjiru/duka-pos/internal/lock"
	"github.com/anjiru/duka-pos/internal/notify"
	"github.com/anjiru/duka-pos/internal/obs"
	"github.com/anjiru/duka-pos/internal/order"
	"github.com/anjiru/duka-pos/internal/pos"
	"github.com/anjiru/duka-pos/internal/queue"
	"github.com/anjiru/duka-pos/internal/ratelimit"
	"github.com/anjiru/duka-pos/internal/receipt"
	"github.com/anjiru/duka-pos/internal/resilience"
	"github.com/anjiru/duka-pos/internal/security"
	"github.com/anjiru/duka-pos/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "duka")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "duka-pos-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.RunMigrations {
		m, err := migrate.New(cfg.MigrationsPath, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "duka-pos-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	store := db.New(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()
	mailer := newMailer(cfg)

	enqueuer := queue.Enqueuer{R: redisClient, Prefix: cfg.QueueRedisPrefix, DedupTTL: cfg.IdempotencyTTL}
	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}

	alertNotifier := notify.AlertNotifier{
		Mail:      mailer,
		Enabled:   cfg.NotifyEmailEnabled,
		Recipient: cfg.NotifyAlertRecipient,
	}
	bus := &events.Bus{
		Store:     store,
		Scheduler: notify.Scheduler{Queue: enqueuer, MaxAttempts: cfg.QueueMaxAttempts},
		Notifiers: []events.Notifier{alertNotifier},
	}

	custSvc := &customer.Service{Store: store}
	custHandler := &customer.Handler{Svc: custSvc, Validate: validate}

	invSvc := &inventory.Service{
		Store: store,
		Cache: inventory.NewCache(redisClient, cfg.InventoryCacheTTL),
	}
	invHandler := &inventory.Handler{Svc: invSvc, Validate: validate}

	orderSvc := &order.Service{Pool: pool, Store: store, Events: bus}
	orderHandler := &order.Handler{Svc: orderSvc, Validate: validate}

	gatewayHTTP := resilience.HTTPClient{
		Client: &http.Client{
			Timeout:   cfg.OutboundTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker: resilience.NewBreaker(cfg.CircuitGatewayMinReq, cfg.CircuitGatewayFailureRate, cfg.CircuitGatewayOpenFor).
			WithTarget(cfg.PaymentProvider).
			WithLogger(logger),
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitterPercent,
		Timeout:     cfg.OutboundTimeout,
	}
	var provider gateway.Provider
	switch cfg.PaymentProvider {
	case "mpesa":
		provider = &gateway.Mpesa{
			HTTP:           gatewayHTTP,
			BaseURL:        cfg.MpesaBaseURL,
			ConsumerKey:    cfg.MpesaConsumerKey,
			ConsumerSecret: cfg.MpesaConsumerSecret,
			ShortCode:      cfg.MpesaShortCode,
			Passkey:        cfg.MpesaPasskey,
		}
	case "pesapal":
		provider = &gateway.PesaPal{
			HTTP:         gatewayHTTP,
			BaseURL:      cfg.PesaPalBaseURL,
			ClientID:     cfg.PesaPalClientID,
			ClientSecret: cfg.PesaPalClientSecret,
			TerminalSN:   cfg.PesaPalTerminalSN,
		}
	default:
		provider = gateway.Nop{}
	}

	posSvc := &pos.Service{
		Pool:      pool,
		Store:     store,
		Inventory: invSvc,
		Events:    bus,
		Locker:    locker,
		Gateway:   provider,
		LockTTL:   cfg.LockTTL,
	}
	posHandler := &pos.Handler{Svc: posSvc, Validate: validate}

	statsSvc := &stats.Service{Q: store, R: redisClient, TTL: cfg.StatsCacheTTL, DefaultRange: 30}
	statsHandler := &stats.Handler{Svc: statsSvc}

	renderer, err := receipt.NewRenderer()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise receipt renderer")
	}
	receiptHandler := &receipt.Handler{
		Sales:     store,
		Renderer:  renderer,
		StoreName: cfg.StoreName,
		LogoURL:   cfg.ReceiptLogoURL,
	}

	queueAdmin := &queue.AdminHandler{
		Store:             queue.NewStore(pool),
		Queue:             enqueuer,
		Logger:            logger,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
	}
	adminLimit, err := app.AdminRateLimit(redisClient, "60-M")
	if err != nil {
		logger.Fatal().Err(err).Msg("admin rate limit")
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiterMW := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: time.Minute,
			Max:    cfg.RateLimitPerMinute,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limit store")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(common.CashierMiddleware)
	r.Use(limiterMW.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.HeaderCashierID, "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/categories", func(c chi.Router) {
			c.Get("/", invHandler.ListCategories)
			c.Post("/", invHandler.CreateCategory)
			c.Delete("/{categoryID}", invHandler.DeleteCategory)
		})
		v.Route("/products", func(p chi.Router) {
			p.Get("/", invHandler.ListProducts)
			p.Post("/", invHandler.CreateProduct)
		})
		v.Route("/items", func(i chi.Router) {
			i.Get("/", invHandler.ListItems)
			i.Post("/", invHandler.CreateItem)
			i.Get("/low-stock", invHandler.LowStock)
			i.Get("/{itemID}", invHandler.GetItem)
			i.Patch("/{itemID}", invHandler.UpdateItem)
			i.Post("/{itemID}/restock", invHandler.Restock)
		})

		v.Route("/customers", func(c chi.Router) {
			c.Get("/", custHandler.List)
			c.Post("/", custHandler.Create)
			c.Get("/{customerID}", custHandler.Get)
		})

		v.Route("/orders", func(o chi.Router) {
			o.Get("/", orderHandler.List)
			o.With(idem.Middleware).Post("/", orderHandler.Create)
			o.Get("/{orderID}", orderHandler.Get)
			o.Put("/{orderID}", orderHandler.Update)
			o.Post("/{orderID}/cancel", orderHandler.Cancel)
			o.With(idem.Middleware).Post("/{orderID}/payments", orderHandler.RecordDeposit)
		})

		v.With(idem.Middleware).Post("/pos/checkout", posHandler.Checkout)

		v.Get("/sales/{saleID}/receipt", receiptHandler.Get)

		v.Route("/stats", func(st chi.Router) {
			st.Get("/overview", statsHandler.Overview)
			st.Get("/top-items", statsHandler.TopItems)
			st.Get("/daily", statsHandler.Daily)
		})

		v.Route("/admin/queue", func(q chi.Router) {
			q.Use(adminLimit)
			q.Get("/dlq", queueAdmin.ListDLQ)
			q.Post("/dlq/replay", queueAdmin.ReplayDLQ)
			q.Get("/stats", queueAdmin.Stats)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	health.SetReady(true)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

func newMailer(cfg *config.Config) common.EmailSender {
	if !cfg.NotifyEmailEnabled || cfg.SMTPHost == "" {
		return common.NopEmailSender{}
	}
	return common.SMTPEmail{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.NotifyEmailFrom,
		FromName: cfg.NotifyEmailFromName,
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
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
