package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/discount"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
	"github.com/xenking/marketplace-checkout/internal/handler"
	"github.com/xenking/marketplace-checkout/internal/marketplace"
	"github.com/xenking/marketplace-checkout/internal/storage/memory"
	"github.com/xenking/marketplace-checkout/internal/storage/postgres"
	redisstore "github.com/xenking/marketplace-checkout/internal/storage/redis"
	"github.com/xenking/marketplace-checkout/pkg/health"
	"github.com/xenking/marketplace-checkout/pkg/httpmiddleware"
)

const sessionCleanupInterval = time.Minute

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("marketplace", cfg.Marketplace.BaseURL),
		zap.Bool("redis_sessions", cfg.RedisURL != ""),
	)

	healthSvc := health.New()

	// PostgreSQL pool + migrations for the order ledger.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	healthSvc.Register(health.Readiness, "postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))

	sessions, closeSessions, err := newSessionStore(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeSessions()

	healthSvc.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))
	healthSvc.Register(health.Liveness, "gc_pause", health.GCPauseCheck(500*time.Millisecond))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Marketplace client, also the payment gateway and promo code backend.
	market, err := marketplace.New(cfg.Marketplace.BaseURL,
		marketplace.WithTimeout(cfg.Marketplace.Timeout),
		marketplace.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create marketplace client")
	}

	promos, err := newPromoValidator(ctx, lg, cfg.Prefilter, market)
	if err != nil {
		return err
	}

	metrics, err := checkout.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	svc := checkout.NewService(checkout.Params{
		Marketplace: market,
		Gateway:     market,
		Promos:      promos,
		Sessions:    sessions,
		Ledger:      postgres.NewOrderLedger(pool),
		Locales:     discount.NewLocales(cfg.DefaultLocale),
	},
		checkout.WithSessionTTL(cfg.SessionTTL),
		checkout.WithHoldTimeout(cfg.HoldTimeout),
		checkout.WithShippingTiers(cfg.Shipping.Tiers()),
		checkout.WithMetrics(metrics),
	)
	h := handler.NewHandler(svc, checkout.NewOwnerHasher([]byte(cfg.OwnerPepper)))

	// Router: health endpoints + checkout API on one server. Route-aware
	// middlewares sit on the router so the matched pattern is known.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(httpmiddleware.ChiRoute),
		httpmiddleware.Labeler(httpmiddleware.ChiRoute),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api/v1", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Submissions wait on the marketplace and the payment gateway.
		WriteTimeout:   2*cfg.Marketplace.Timeout + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("checkout-api", m),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "Accept-Language", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{"Location", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.BearerOrIP,
			}),
			httpmiddleware.BodyLimit(cfg.MaxBodyBytes),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newSessionStore returns the Redis store when a Redis URL is configured and
// the in-process store otherwise.
func newSessionStore(ctx context.Context, cfg *Config, hs *health.Health) (checkout.SessionStore, func(), error) {
	if cfg.RedisURL == "" {
		store := memory.NewSessionStore()
		store.StartCleanup(ctx, sessionCleanupInterval)
		return store, func() {}, nil
	}

	client, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect redis")
	}
	store := redisstore.NewSessionStore(client)
	hs.Register(health.Readiness, "redis", health.PingCheck(store), health.WithTimeout(2*time.Second))
	return store, func() { _ = client.Close() }, nil
}

// newPromoValidator validates codes against the marketplace, behind the
// Bloom prefilter when code files are configured.
func newPromoValidator(ctx context.Context, lg *zap.Logger, cfg PrefilterConfig, remote promo.Remote) (*promo.RemoteValidator, error) {
	if len(cfg.Files) == 0 {
		return promo.NewRemoteValidator(remote), nil
	}

	start := time.Now()
	filter, err := promo.LoadPrefilter(ctx, promo.PrefilterConfig{
		Capacity:          cfg.Capacity,
		FalsePositiveRate: cfg.FalsePositiveRate,
	}, cfg.Files...)
	if err != nil {
		return nil, errors.Wrap(err, "load promo prefilter")
	}
	lg.Info("Promo prefilter loaded",
		zap.Strings("files", cfg.Files),
		zap.Uint64("codes", filter.Codes()),
		zap.Duration("took", time.Since(start)),
	)
	return promo.NewRemoteValidator(remote, promo.WithPrefilter(filter)), nil
}
