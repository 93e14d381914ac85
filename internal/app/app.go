package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/session"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.Register(health.Check{
		Name:    "postgres",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	healthSvc.Register(health.Check{
		Name: "goroutines",
		Func: health.GoroutineCountCheck(10000),
	})

	store, products, err := loadCatalog(ctx, lg, cfg.Catalog, pool)
	if err != nil {
		return err
	}
	healthSvc.Register(health.Check{
		Name: "catalog",
		Kind: health.Readiness,
		Func: health.MinCountCheck("product", 1, store.Len),
	})

	snapshots, closeStore, err := openSessionStore(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeStore()

	pricing, err := cfg.Checkout.Pricing()
	if err != nil {
		return errors.Wrap(err, "checkout pricing")
	}
	orderService := order.NewService(products, postgres.NewOrderRepository(pool), pricing)

	sessions := session.NewManager(snapshots, resolver(store), session.Config{
		IdleTimeout:       cfg.Session.IdleTimeout,
		PersistDelay:      cfg.Session.PersistDelay,
		ConfirmationDwell: cfg.Checkout.ConfirmationDwell,
		LiteralInsert:     cfg.Session.LiteralInsert,
	}, lg.Named("session"))

	h, err := handler.NewHandler(handler.HandlerConfig{
		ImageBaseURL:  cfg.ImageBaseURL,
		Pricing:       &pricing,
		MeterProvider: m.MeterProvider(),
	}, store, sessions, session.Placer{Orders: orderService})
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(corsConfig(cfg.CORS)),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.ClientIP(cfg.RateLimit.TrustProxy),
				Skip:    httpmiddleware.ExemptPaths("/livez", "/readyz"),
				MaxKeys: cfg.RateLimit.MaxClients,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gCtx, 10*time.Second)
	})
	g.Go(func() error {
		return sessions.Run(gCtx)
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// loadCatalog builds the in-memory catalog and returns the product source
// the order service re-checks stock against.
func loadCatalog(
	ctx context.Context,
	lg *zap.Logger,
	cfg CatalogConfig,
	pool *pgxpool.Pool,
) (*catalog.Store, product.Repository, error) {
	if cfg.File != "" {
		store, err := catalog.Load(ctx, catalog.FileSource{Path: cfg.File})
		if err != nil {
			return nil, nil, errors.Wrap(err, "load catalog file")
		}
		lg.Info("Catalog loaded", zap.String("file", cfg.File), zap.Int("products", store.Len()))
		return store, store, nil
	}

	repo := postgres.NewProductRepository(pool)
	store, err := catalog.Load(ctx, repo)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load catalog")
	}
	lg.Info("Catalog loaded", zap.String("source", "postgres"), zap.Int("products", store.Len()))
	return store, repo, nil
}

// openSessionStore connects Redis when configured and falls back to an
// in-process store otherwise.
func openSessionStore(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	healthSvc *health.Health,
) (session.Store, func(), error) {
	if cfg.RedisURL == "" {
		lg.Warn("REDIS_URL not set, session snapshots are kept in memory")
		st := memory.New(cfg.Session.TTL)
		runCtx, cancel := context.WithCancel(ctx)
		go func() { _ = st.Run(runCtx, time.Minute) }()
		return st, cancel, nil
	}

	client, err := redis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect redis")
	}
	st := redis.New(client, redis.DefaultPrefix, cfg.Session.TTL)
	healthSvc.Register(health.Check{
		Name:    "redis",
		Kind:    health.Readiness,
		Timeout: 2 * time.Second,
		Func:    health.PingCheck(st),
	})
	return st, func() {
		if err := client.Close(); err != nil {
			lg.Warn("Close redis client", zap.Error(err))
		}
	}, nil
}

func corsConfig(cfg CORSConfig) httpmiddleware.CORSConfig {
	c := httpmiddleware.DefaultCORSConfig()
	c.AllowOrigins = cfg.Origins
	c.AllowCredentials = cfg.AllowCredentials
	return c
}

func resolver(store *catalog.Store) cart.Resolver {
	return func(id string) (product.Product, bool) {
		p, err := store.GetByID(context.Background(), id)
		if err != nil {
			return product.Product{}, false
		}
		return *p, true
	}
}
