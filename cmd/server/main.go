package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/auth"
	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/config"
	"github.com/diewo77/go-catalog/internal/db"
	"github.com/diewo77/go-catalog/internal/events"
	"github.com/diewo77/go-catalog/internal/logging"
	"github.com/diewo77/go-catalog/internal/metrics"
	"github.com/diewo77/go-catalog/internal/policy"
	"github.com/diewo77/go-catalog/internal/services"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.Init(logging.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Log.Environment,
		ServiceName: cfg.Log.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *zap.Logger) error {
	dbConn, err := db.Open(cfg.Database, cfg.App.Dev && cfg.Log.Level == "debug", log)
	if err != nil {
		return err
	}

	if *migrateOnlyFlag {
		if err := migrate(cfg, dbConn, true); err != nil {
			return err
		}
		log.Info("migrations completed")
		return nil
	}
	if err := migrate(cfg, dbConn, false); err != nil {
		return err
	}

	seedOpts := db.SeedOptions{AdminEmail: cfg.App.AdminEmail, AdminPassword: cfg.App.AdminPassword}
	if err := db.Seed(dbConn, seedOpts); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if *seedOnlyFlag {
		log.Info("seeding completed")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(cfg.Log.ServiceName)

	store, closeStore, err := openCache(ctx, cfg.Cache, log)
	if err != nil {
		return err
	}
	defer closeStore()
	catalogCache := cache.New(store, cache.Options{
		ListTTL:  cfg.Cache.ListTTL,
		StatsTTL: cfg.Cache.StatsTTL,
		Logger:   log,
		Observer: m,
	})

	publisher, closePublisher, err := openEvents(cfg.Events, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	authGate := policy.NewAuthGate(dbConn, cfg.Auth.GrantsTTL)
	policy.Register(authGate)

	opts := services.Options{
		Logger:  log,
		Cache:   catalogCache,
		Events:  publisher,
		Metrics: m,
		Grants:  authGate.Resolver,
	}
	users := services.NewUserService(dbConn, opts)

	// Sessions of deleted or deactivated users stop working immediately.
	authn := auth.New(auth.Config{
		SessionSecret: cfg.Auth.SessionSecret,
		TokenSecret:   cfg.Auth.JWTSecret,
		TokenTTL:      cfg.Auth.JWTExpiry,
		SecureCookie:  cfg.Auth.SecureCookie,
	}, func(ctx context.Context, uid uint) bool {
		u, err := users.GetUser(ctx, uid)
		return err == nil && u.IsActive()
	})

	app := NewApp(Deps{
		DB:      dbConn,
		Log:     log,
		Auth:    authn,
		Gate:    authGate,
		Metrics: m,
		Catalog: services.NewCatalogService(dbConn, opts),
		Users:   users,
		Roles:   services.NewRoleService(dbConn, opts),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("port", cfg.Server.Port), zap.Bool("dev", cfg.App.Dev))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// migrate applies the schema according to MIGRATIONS. force runs AutoMigrate
// even when migrations are off.
func migrate(cfg *config.Config, dbConn *gorm.DB, force bool) error {
	switch cfg.App.Migrations {
	case config.MigrationsSQL:
		if cfg.Database.Driver == "sqlite" {
			return db.Migrate(dbConn)
		}
		return db.RunSQLMigrations(cfg.Database.URL())
	case config.MigrationsOff:
		if force {
			return db.Migrate(dbConn)
		}
		return nil
	default:
		return db.Migrate(dbConn)
	}
}

func openCache(ctx context.Context, cfg config.CacheConfig, log *zap.Logger) (cache.Store, func(), error) {
	if cfg.Driver != "redis" {
		log.Info("using in-memory cache", zap.Int("capacity", cfg.MemoryCapacity))
		m := cache.NewMemory(uint64(max(cfg.MemoryCapacity, 0)))
		return m, closer(m, log), nil
	}
	r, err := cache.ConnectRedis(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return nil, nil, err
	}
	log.Info("using redis cache", zap.String("addr", cfg.RedisAddr))
	return r, closer(r, log), nil
}

func openEvents(cfg config.EventsConfig, log *zap.Logger) (events.Publisher, func(), error) {
	if !cfg.Enabled {
		return events.Nop{}, func() {}, nil
	}
	k, err := events.DialKafka(cfg.Brokers, cfg.TopicPrefix, 5, 2*time.Second, log)
	if err != nil {
		return nil, nil, err
	}
	return k, closer(k, log), nil
}

func closer(c io.Closer, log *zap.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}
}
