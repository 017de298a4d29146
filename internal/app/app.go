package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/engine"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/internal/config"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/order"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/health"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/httpclient"
	pkglogger "github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/logger"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/middleware"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/tracing"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/remote"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/remote/rest"
)

// App wires together all dependencies and runs the cart sync daemon: the
// sync engine, the order tracker, and an operational HTTP endpoint exposing
// health and metrics.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	store           remote.Store
	engine          *engine.Engine
	tracker         *order.Tracker
	opsServer       *http.Server
	unsubscribe     func()
	tracingShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize tracing.
	traceCfg := tracing.DefaultConfig("cartsyncd")
	traceCfg.Enabled = cfg.TracingEnabled
	traceCfg.Environment = cfg.Environment
	traceCfg.OTLPEndpoint = cfg.OTLPEndpoint
	traceCfg.SampleRate = cfg.TraceSampling
	tracingShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}

	// Outbound HTTP client, optionally wrapped in a circuit breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.HTTPTimeout
	httpCfg.MaxRetries = cfg.HTTPMaxRetries
	baseClient := httpclient.New(httpCfg)

	var doer rest.HTTPDoer = baseClient
	if cfg.CircuitBreaker {
		doer = httpclient.NewCircuitBreakerClient(
			baseClient,
			httpclient.DefaultCircuitBreakerConfig("storefront"),
			logger,
		)
	}

	var tokens rest.TokenSource
	if cfg.SessionToken != "" {
		tokens = rest.NewSessionTokenSource(cfg.SessionToken)
	}

	store, err := rest.New(rest.Config{
		BaseURL:           cfg.APIBaseURL,
		Doer:              doer,
		Tokens:            tokens,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.RequestBurst,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize rest store: %w", err)
	}
	logger.Info("storefront client initialized", slog.String("base_url", cfg.APIBaseURL))

	// Build the dependency graph.
	eng, err := engine.New(engine.Config{
		Store:   store,
		Pricing: cfg.Pricing(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}

	tracker, err := order.NewTracker(store, eng, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize order tracker: %w", err)
	}

	// Mirror every cart state change and rejected mutation into the log so
	// operators can follow the sync loop without scraping metrics.
	unsubscribe := eng.Subscribe(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventMutationFailed:
			logger.Warn("cart mutation failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("op", string(ev.Failure.Op)),
				slog.String("line_key", ev.Failure.LineKey),
				slog.String("reason", ev.Failure.Reason),
			)
		default:
			logger.Info("cart snapshot changed",
				slog.Uint64("seq", ev.Seq),
				slog.Int("version", ev.Snapshot.Version),
				slog.Int("lines", len(ev.Snapshot.Lines)),
				slog.Int("pending", len(ev.Snapshot.Pending)),
				slog.Int64("total", ev.Snapshot.Totals.Total),
			)
		}
	})

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("storefront", func(ctx context.Context) error {
		if _, err := store.FetchCart(ctx); err != nil {
			// The request-scoped logger carries the check's correlation ID.
			pkglogger.FromContext(ctx).Warn("storefront readiness check failed",
				slog.String("error", err.Error()))
			return err
		}
		return nil
	})

	// Operational HTTP router.
	router := chi.NewRouter()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogging(logger))
	router.Use(middleware.PrometheusMetrics())
	router.Get("/health/live", healthHandler.LivenessHandler())
	router.Get("/health/ready", healthHandler.ReadinessHandler())
	router.Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(router, cfg.PprofCIDRs, logger)
	}

	opsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.OpsHTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		store:           store,
		engine:          eng,
		tracker:         tracker,
		opsServer:       opsServer,
		unsubscribe:     unsubscribe,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Engine exposes the sync engine to embedders.
func (a *App) Engine() *engine.Engine { return a.engine }

// Tracker exposes the order tracker to embedders.
func (a *App) Tracker() *order.Tracker { return a.tracker }

// Run loads the initial cart, starts the operational HTTP server, and blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.engine.Load(loadCtx); err != nil {
		return fmt.Errorf("load initial cart: %w", err)
	}
	a.logger.Info("initial cart loaded",
		slog.Int("lines", len(a.engine.Snapshot().Lines)))

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting operational HTTP server",
			slog.String("addr", a.opsServer.Addr),
		)
		if err := a.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ops http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. Pending mutations are given a
// chance to settle before the engine closes.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	quiesceCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.engine.Quiesce(quiesceCtx); err != nil {
		a.logger.Warn("shutdown with unsettled mutations",
			slog.Int("pending", a.engine.PendingCount()))
	}
	// Close drains the event outbox first, so the subscriber sees every
	// event published up to the quiesce before it is detached.
	if err := a.engine.Close(); err != nil {
		a.logger.Error("engine close error", slog.String("error", err.Error()))
	}
	a.unsubscribe()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.opsServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("ops http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application stopped")
	return nil
}
