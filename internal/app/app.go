package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/urldammit/internal/cache"
	"github.com/MrSnakeDoc/urldammit/internal/config"
	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/manager"
	"github.com/MrSnakeDoc/urldammit/internal/metrics"
	"github.com/MrSnakeDoc/urldammit/internal/redis"
	"github.com/MrSnakeDoc/urldammit/internal/scheduler"
	"github.com/MrSnakeDoc/urldammit/internal/store"
	"github.com/MrSnakeDoc/urldammit/internal/store/memory"
	"github.com/MrSnakeDoc/urldammit/internal/store/relational"
	redisstore "github.com/MrSnakeDoc/urldammit/internal/store/redis"
	"github.com/MrSnakeDoc/urldammit/internal/telemetry"
	"github.com/MrSnakeDoc/urldammit/internal/version"
)

type App struct {
	cfg             *config.Config
	logger          logger.Logger
	server          *httpserver.Server
	redisClient     *goredis.Client
	store           store.Store
	seeder          *scheduler.SeedReloader
	purger          *scheduler.Purger
	shutdownTracing telemetry.ShutdownFunc
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, version.Name, version.Version, cfg.OTELEndpoint)
	if err != nil {
		loggerClient.Errorf("Failed to set up tracing: %v", err)
		os.Exit(1)
	}

	// Initialize Redis early - fail fast if unavailable
	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err = redis.New(redis.OptionsFromConfig(cfg), loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		loggerClient.Info("Redis initialized successfully")
	}

	st, err := openStore(ctx, cfg, redisClient)
	if err != nil {
		loggerClient.Errorf("Failed to open %s store: %v", cfg.Store, err)
		os.Exit(1)
	}
	loggerClient.Info("store opened", logger.String("store", cfg.Store))

	known, unknown, err := buildCaches(cfg, redisClient, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to build caches: %v", err)
		os.Exit(1)
	}
	if cfg.Store == config.StoreMemory {
		if err := flushCaches(ctx, known, unknown); err != nil {
			loggerClient.Errorf("Failed to flush caches: %v", err)
			os.Exit(1)
		}
	}
	loggerClient.Info("caches ready", logger.String("cache", cfg.Cache))

	resources := manager.New(st, known, unknown,
		manager.WithLimits(cfg.Limits()),
		manager.WithLogger(loggerClient.With(logger.String("component", "manager"))),
	)

	collectors := metrics.New()

	purgeTrigger := make(chan struct{}, 1)
	purger := scheduler.NewPurger(
		resources,
		loggerClient,
		cfg.PurgeInterval,
		cfg.PurgeAfter,
		purgeTrigger,
	).WithMetrics(collectors)

	// Seed reloader (if a seed file is configured)
	var seeder *scheduler.SeedReloader
	var seedTrigger chan struct{}
	if cfg.SeedFile != "" {
		loggerClient.Info("seed file configured, initializing seed reloader",
			logger.String("file", cfg.SeedFile))
		seedTrigger = make(chan struct{}, 1)
		seeder = scheduler.NewSeedReloader(
			cfg.SeedFile,
			resources,
			loggerClient,
			cfg.SeedInterval,
			seedTrigger,
		).WithMetrics(collectors)
	} else {
		loggerClient.Info("seed file not configured, seeding disabled")
	}

	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		BaseURL:         cfg.BaseURL,
		AllowedHosts:    cfg.AllowedHosts,
		TrustedCIDRS:    cfg.TrustedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Resources:       resources,
		Pingers:         pingers(resources, known),
		PurgeTrigger:    purgeTrigger,
		SeedTrigger:     seedTrigger,
		Metrics:         collectors,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:             cfg,
		logger:          loggerClient,
		server:          server,
		redisClient:     redisClient,
		store:           st,
		seeder:          seeder,
		purger:          purger,
		shutdownTracing: shutdownTracing,
	}
}

// openStore opens the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config, redisClient *goredis.Client) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreSQLite:
		return relational.OpenSQLite(ctx, cfg.SQLitePath)
	case config.StorePostgres:
		return relational.OpenPostgres(ctx, cfg.PostgresDSN)
	case config.StoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis store needs a redis client")
		}
		return redisstore.NewStore(redisClient), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// buildCaches returns the known and unknown tiers.
func buildCaches(cfg *config.Config, redisClient *goredis.Client, log logger.Logger) (cache.Cache[*domain.Resource], cache.Cache[cache.Absent], error) {
	switch cfg.Cache {
	case config.CacheLRU:
		known, err := cache.NewLRU[*domain.Resource](cfg.KnownCacheSize)
		if err != nil {
			return nil, nil, err
		}
		unknown, err := cache.NewLRU[cache.Absent](cfg.UnknownCacheSize)
		if err != nil {
			return nil, nil, err
		}
		return known, unknown, nil
	case config.CacheRedis:
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis cache needs a redis client")
		}
		known := cache.NewRedis[*domain.Resource](redisClient, cfg.CacheNamespace, "known", cfg.CacheTTL, log)
		unknown := cache.NewRedis[cache.Absent](redisClient, cfg.CacheNamespace, "unknown", cfg.CacheTTL, log)
		return known, unknown, nil
	case config.CacheNull:
		return cache.Null[*domain.Resource]{}, cache.Null[cache.Absent]{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache %q", cfg.Cache)
	}
}

type flusher interface {
	Flush(ctx context.Context) error
}

// flushCaches empties the tiers that outlive the process. A memory store
// starts empty, so entries left by a previous run would answer for records
// that no longer exist.
func flushCaches(ctx context.Context, tiers ...any) error {
	for _, tier := range tiers {
		if f, ok := tier.(flusher); ok {
			if err := f.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// pingers lists the backends /readyz checks.
func pingers(resources *manager.Manager, known cache.Cache[*domain.Resource]) map[string]deps.Pinger {
	p := map[string]deps.Pinger{"store": resources}
	if c, ok := known.(deps.Pinger); ok {
		p["cache"] = c
	}
	return p
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting %s %s on %s", version.Name, version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start seed reloader (if enabled)
	if a.seeder != nil {
		if err := a.seeder.Start(ctx); err != nil {
			return fmt.Errorf("failed to start seed reloader: %w", err)
		}
		a.logger.Info("seed reloader started",
			logger.Duration("interval", a.cfg.SeedInterval))
	}

	if err := a.purger.Start(ctx); err != nil {
		return fmt.Errorf("failed to start purger: %w", err)
	}
	a.logger.Info("purger started",
		logger.Duration("interval", a.cfg.PurgeInterval),
		logger.Duration("after", a.cfg.PurgeAfter))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.seeder != nil {
		a.seeder.Stop()
	}
	a.purger.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if err := a.store.Close(); err != nil {
		a.logger.Warnf("failed to close store: %v", err)
	} else {
		a.logger.Info("✅ Store closed cleanly")
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	if err := a.shutdownTracing(shutdownCtx); err != nil {
		a.logger.Warnf("failed to flush traces: %v", err)
	}

	a.logger.Info("✅ urldammit stopped cleanly")
	_ = a.logger.Sync()
	return nil
}
