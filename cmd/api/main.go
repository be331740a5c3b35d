package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/invoice-assistant/internal/assistant"
	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/cart"
	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/common"
	"github.com/noah-isme/invoice-assistant/internal/config"
	"github.com/noah-isme/invoice-assistant/internal/db"
	"github.com/noah-isme/invoice-assistant/internal/events"
	"github.com/noah-isme/invoice-assistant/internal/health"
	"github.com/noah-isme/invoice-assistant/internal/invoice"
	"github.com/noah-isme/invoice-assistant/internal/lock"
	"github.com/noah-isme/invoice-assistant/internal/notify"
	"github.com/noah-isme/invoice-assistant/internal/obs"
	"github.com/noah-isme/invoice-assistant/internal/ratelimit"
	"github.com/noah-isme/invoice-assistant/internal/resilience"
	"github.com/noah-isme/invoice-assistant/internal/security"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNS, nil)

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   cfg.Obs.ServiceName,
			Endpoint:      cfg.Obs.TracingEndpoint,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.DBAutoMigrate {
			if err := db.Up(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("run migrations")
			}
		}
		pool, err = db.Connect(ctx, cfg.DatabaseURL, cfg.Obs.ServiceName)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if cfg.Obs.MetricsEnabled {
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
	}

	var sessions session.Store
	var locker lock.Locker
	if redisClient != nil {
		sessions = session.NewRedisStore(redisClient, cfg.SessionTTL)
		locker = lock.RedisLocker{R: redisClient}
	} else {
		mem := session.NewMemoryStore(cfg.SessionTTL, time.Minute)
		defer mem.Close()
		sessions = mem
		locker = lock.NewLocal()
		logger.Warn().Msg("REDIS_URL not set; sessions are kept in process memory")
	}

	var source catalog.Source = catalog.FileSource{Path: cfg.CatalogFile}
	if cfg.CatalogSource == config.CatalogSourcePostgres {
		source = catalog.PGSource{Pool: pool}
	}
	var catalogCache *catalog.Cache
	if redisClient != nil {
		catalogCache = catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Source:   source,
		Cache:    catalogCache,
		Defaults: catalog.WithTaxRate(cfg.DefaultTaxRate),
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	if records, err := catalogSvc.Records(ctx); err != nil {
		logger.Warn().Err(err).Msg("default catalog not loaded; chat will run without products")
	} else {
		logger.Info().Int("products", len(records)).Str("source", cfg.CatalogSource).Msg("catalog loaded")
	}

	var eventStore events.EventStore = events.NewMemoryStore(1000)
	if pool != nil {
		eventStore = events.PGStore{Pool: pool}
	}
	notifiers := []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}}
	if cfg.WebhookURL != "" {
		if err := notify.ValidateURL(cfg.WebhookURL); err != nil {
			logger.Fatal().Err(err).Msg("invalid WEBHOOK_URL")
		}
		hook := notify.Webhook{
			URL:    cfg.WebhookURL,
			Secret: cfg.WebhookSecret,
			Topics: cfg.WebhookTopics,
			Client: resilience.NewHTTPClient(5*time.Second, 3),
		}
		if redisClient != nil {
			hook.Replay = notify.RedisReplayProtector{Client: redisClient}
			hook.ReplayTTL = 24 * time.Hour
		}
		notifiers = append(notifiers, hook)
	}
	bus := &events.Bus{Store: eventStore, Notifiers: notifiers}

	billingLogger := logger.With().Str("component", "billing").Logger()
	cartSvc := &cart.Service{
		Store:      sessions,
		Locker:     locker,
		Catalog:    catalogSvc,
		Calculator: billing.Calculator{Logger: &billingLogger, Defaults: catalog.WithTaxRate(cfg.DefaultTaxRate)},
		LockTTL:    cfg.LockTTL,
	}

	renderer, err := invoice.NewHTMLRenderer()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise invoice renderer")
	}
	var invoiceRepo invoice.Repository = invoice.NewMemoryRepository()
	if pool != nil {
		invoiceRepo = invoice.PGRepository{Pool: pool}
	}
	invoiceLogger := logger.With().Str("component", "invoice").Logger()
	invoiceSvc := &invoice.Service{
		Cart:     cartSvc,
		Repo:     invoiceRepo,
		Renderer: renderer,
		Events:   bus,
		Seller:   sellerFromConfig(cfg.Seller),
		Logger:   &invoiceLogger,
	}

	assistantLogger := logger.With().Str("component", "assistant").Logger()
	assistantSvc := &assistant.Service{
		Cart:         cartSvc,
		Events:       bus,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       &assistantLogger,
	}
	if cfg.LLMEnabled() {
		breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("llm").WithLogger(assistantLogger)
		interpreter, err := assistant.NewOpenAIInterpreter(assistant.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			Timeout:    cfg.LLMTimeout,
			HTTPClient: resilience.NewHTTPClient(0, 2),
			Breaker:    breaker,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise llm interpreter")
		}
		assistantSvc.Interpreter = interpreter
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set; using keyword interpreter only")
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	chatLimiter, err := newChatLimiter(redisClient, cfg.ChatRateAlgorithm)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise chat rate limiter")
	}
	chatLimit := ratelimit.Handler{
		Limiter: chatLimiter,
		Config:  ratelimit.Config{Key: ratelimit.SessionKey("rl:chat:"), Window: cfg.ChatRateWindow, Max: cfg.ChatRateLimit},
		OnError: func(err error) { logger.Warn().Err(err).Msg("chat rate limiter unavailable") },
	}

	cartHandler := &cart.Handler{Svc: cartSvc}
	invoiceHandler := &invoice.Handler{Svc: invoiceSvc, Idem: idem.Middleware}
	assistantHandler := &assistant.Handler{Svc: assistantSvc}
	if cfg.ChatRateLimit > 0 {
		assistantHandler.ChatLimit = chatLimit.Middleware
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc, Events: bus})

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNS, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(security.CORS(cfg.CORSAllowedOrigins))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	healthHandler := health.Handler{Checks: readinessChecks(pool, redisClient, catalogSvc)}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(common.SessionMiddleware)
		v.Use(obs.RequestLogger{Logger: logger}.Middleware)
		v.Get("/catalog", catalogHandler.List)
		v.Get("/catalog/lookup", catalogHandler.Lookup)
		v.Post("/catalog/reload", catalogHandler.Reload)
		assistantHandler.Routes(v)
		cartHandler.Routes(v)
		invoiceHandler.Routes(v)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serve(srv, logger)
}

// serve runs srv until SIGINT or SIGTERM, then flips readiness and drains.
func serve(srv *http.Server, logger zerolog.Logger) {
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
		return
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	health.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

// newChatLimiter picks the chat limiter backend. Without Redis the ulule
// memory store keeps counts per process.
func newChatLimiter(client *redis.Client, algorithm string) (ratelimit.Limiter, error) {
	switch {
	case client == nil:
		return ratelimit.NewMemoryFixedWindow(), nil
	case algorithm == "fixed":
		return ratelimit.NewRedisFixedWindow(client)
	default:
		return ratelimit.SlidingRedis{Client: client, Prefix: "rl:"}, nil
	}
}

func sellerFromConfig(s config.Seller) invoice.Seller {
	seller := invoice.DefaultSeller
	if s.Name != "" {
		seller.Name = s.Name
	}
	if s.Address != "" {
		seller.Address = s.Address
	}
	if s.Phone != "" {
		seller.Phone = s.Phone
	}
	if s.GSTIN != "" {
		seller.GSTIN = s.GSTIN
	}
	return seller
}

func readinessChecks(pool *pgxpool.Pool, client *redis.Client, catalogSvc *catalog.Service) []health.Check {
	checks := []health.Check{{
		Name: "catalog",
		Probe: func(ctx context.Context) error {
			_, err := catalogSvc.Records(ctx)
			return err
		},
		Timeout: time.Second,
	}}
	if pool != nil {
		checks = append(checks, health.Check{Name: "postgres", Probe: pool.Ping, Timeout: 500 * time.Millisecond})
	}
	if client != nil {
		checks = append(checks, health.Check{
			Name:    "redis",
			Probe:   func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Timeout: 300 * time.Millisecond,
		})
	}
	return checks
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
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
