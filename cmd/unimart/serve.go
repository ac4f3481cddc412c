package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adeilh/unimart/api"
	"github.com/adeilh/unimart/auth"
	"github.com/adeilh/unimart/cache"
	"github.com/adeilh/unimart/cache/breaker"
	"github.com/adeilh/unimart/cache/memory"
	"github.com/adeilh/unimart/cache/redis"
	"github.com/adeilh/unimart/config"
	"github.com/adeilh/unimart/db/sql/postgres"
	"github.com/adeilh/unimart/httpx"
	"github.com/adeilh/unimart/internal/logging"
	"github.com/adeilh/unimart/internal/metrics"
	"github.com/adeilh/unimart/internal/tracing"
	"github.com/adeilh/unimart/market"
	"github.com/adeilh/unimart/marketcache"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.address)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	db, err := postgres.Open(ctx,
		postgres.WithDSN(cfg.Postgres.DSN),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Postgres.Migrate {
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("database migrated", zap.Int("applied", applied))
	}

	store, closeStore := buildStore(cfg.Cache, logger)
	defer closeStore()

	reg := metrics.NewRegistry()
	mc := marketcache.New(store,
		marketcache.WithTTLs(ttls(cfg.Cache.TTL)),
		marketcache.WithLogger(logger),
		marketcache.WithMetrics(metrics.NewCache(reg)),
	)
	if !mc.Healthy(ctx) {
		logger.Warn("cache store unreachable at startup; serving from the database", zap.String("backend", cfg.Cache.Backend))
	}

	svc := market.NewService(
		postgres.NewProductRepository(db),
		postgres.NewUserRepository(db),
		mc,
		market.WithLogger(logger),
		market.WithTracer(tp.Tracer()),
	)

	opts := []api.Option{
		api.WithDatabase(postgres.NewPinger(db)),
		api.WithMetricsHandler(metrics.Handler(reg)),
		api.WithResponseTTL(cfg.Cache.TTL.Response),
		api.WithLogger(logger),
	}
	mw, err := authMiddleware(cfg.Auth)
	if err != nil {
		return err
	}
	if mw == nil {
		logger.Warn("auth.secret not set; write routes will reject every request")
	}
	opts = append(opts, api.WithAuth(mw))
	handler := api.NewHandler(svc, opts...)

	serverOpts := []httpx.ServerOption{
		httpx.WithAddress(cfg.Server.Address),
		httpx.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		httpx.WithLogger(logger),
		httpx.WithErrorHandler(handler.ErrorHandler()),
		httpx.AppendMiddlewares(httpx.TimeoutMiddleware(cfg.Server.RequestTimeout)),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig
		cors.AllowOrigins = cfg.Server.CORSOrigins
		serverOpts = append(serverOpts, httpx.WithCORS(&cors))
	}
	server := httpx.NewServer(serverOpts...)
	server.RegisterRoutes(handler.RegisterRoutes)

	err = server.Start(ctx, httpx.WithShutdownTimeout(cfg.Server.ShutdownTimeout))
	if errors.Is(err, context.Canceled) {
		logger.Info("server stopped")
		return nil
	}
	return err
}

// buildStore returns the configured cache backend and its release func.
func buildStore(cfg config.CacheConfig, logger *zap.Logger) (cache.Store, func()) {
	if cfg.Backend == config.BackendMemory {
		s := memory.NewStore(memory.Options{})
		return s, func() { _ = s.Close() }
	}

	var store cache.Store = redis.NewStore(redis.Options{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		PoolSize:  cfg.Redis.PoolSize,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	closer, _ := store.(io.Closer)
	if cfg.Breaker.Enabled {
		store = breaker.Wrap(store, breaker.Options{
			Name:                "redis",
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			Timeout:             cfg.Breaker.OpenTimeout,
			Logger:              logger,
		})
	}
	return store, func() {
		if closer != nil {
			_ = closer.Close()
		}
	}
}

func ttls(cfg config.TTLConfig) marketcache.TTLs {
	return marketcache.TTLs{
		Product:  cfg.Product,
		User:     cfg.User,
		Category: cfg.Category,
		Search:   cfg.Search,
		Products: cfg.Products,
		Response: cfg.Response,
	}
}

func authMiddleware(cfg config.AuthConfig) (*auth.Middleware, error) {
	if cfg.Secret == "" {
		return nil, nil
	}
	verifier, err := auth.NewHMACVerifier([]byte(cfg.Secret), auth.HMACOptions{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Leeway:   cfg.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return auth.NewMiddleware(verifier)
}
