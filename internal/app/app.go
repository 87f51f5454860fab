// Package app wires configuration, storage and the routing pipeline into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/router-for-me/CreditRouter/internal/analyzer"
	"github.com/router-for-me/CreditRouter/internal/cache"
	"github.com/router-for-me/CreditRouter/internal/catalog"
	"github.com/router-for-me/CreditRouter/internal/config"
	"github.com/router-for-me/CreditRouter/internal/db"
	internalhttp "github.com/router-for-me/CreditRouter/internal/http"
	"github.com/router-for-me/CreditRouter/internal/ledger"
	"github.com/router-for-me/CreditRouter/internal/logging"
	"github.com/router-for-me/CreditRouter/internal/provider"
	"github.com/router-for-me/CreditRouter/internal/ratelimit"
	"github.com/router-for-me/CreditRouter/internal/router"
	"github.com/router-for-me/CreditRouter/internal/usage"
	"github.com/router-for-me/CreditRouter/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(_ context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the broker and blocks until ctx is cancelled.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	cat := catalog.New()
	limits := ratelimit.NewRegistry()
	if errApply := applyCatalog(cfg, cat, limits); errApply != nil {
		return errApply
	}

	registry := provider.NewRegistry()
	for _, p := range cfg.Providers {
		registry.Register(p.Name, provider.NewHTTPClient(p.Name, p.BaseURL, p.APIKey))
	}

	store, errCache := buildCache(ctx, cfg)
	if errCache != nil {
		return errCache
	}
	defer func() { _ = store.Close() }()

	led := ledger.New(conn, cfg.Router.ReservationTTL.Std())
	if released, errExpired := led.ReleaseExpired(ctx); errExpired != nil {
		log.Warnf("app: startup reservation sweep: %v", errExpired)
	} else if released > 0 {
		log.Infof("app: released %d orphaned reservations at startup", released)
	}
	ledger.NewSweeper(led).Start(ctx)

	recorder := usage.NewRecorder(conn)
	usage.NewRetentionCleaner(conn, cfg.Router.UsageRetentionDays).Start(ctx)

	core := router.New(router.Options{
		Catalog:     cat,
		Analyzer:    analyzer.New(cfg.Analyzer),
		Limits:      limits,
		Cache:       store,
		Ledger:      led,
		Providers:   registry,
		Usage:       recorder,
		MaxAttempts: cfg.Router.MaxAttempts,
		CallTimeout: cfg.Router.CallTimeout.Std(),
	})

	reload := func() error {
		fresh, errReload := config.Load(configPath)
		if errReload != nil {
			return errReload
		}
		return applyCatalog(fresh, cat, limits)
	}
	if errWatch := watcher.New(configPath, reload).Start(ctx); errWatch != nil {
		log.Warnf("app: config watcher unavailable: %v", errWatch)
	}

	engine := internalhttp.NewEngine(internalhttp.Deps{
		DB:              conn,
		Router:          core,
		Ledger:          led,
		Catalog:         cat,
		AdminAPIKeyHash: cfg.Admin.APIKeyHash,
		ReloadCatalog:   reload,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("app: listening on %s (models=%d)", addr, cat.Len())
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, nethttp.ErrServerClosed) {
			errCh <- errServe
		}
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	log.Infof("app: server stopped")
	return nil
}

// applyCatalog swaps in the configured model set and refreshes per-model
// rate limits.
func applyCatalog(cfg *config.Config, cat *catalog.Catalog, limits *ratelimit.Registry) error {
	if errReplace := cat.Replace(cfg.Descriptors()); errReplace != nil {
		return errReplace
	}
	for _, m := range cfg.Models {
		limits.SetLimit(m.ID, m.RateLimitRPM)
	}
	return nil
}

// buildCache selects the cache backend from configuration.
func buildCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		store, errRedis := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if errRedis != nil {
			return nil, errRedis
		}
		log.Infof("app: using redis cache at %s", cfg.Redis.Addr)
		return store, nil
	}

	store := cache.NewMemory(cfg.Cache.Capacity)
	store.StartSweeper(ctx, cfg.Cache.SweepInterval.Std())
	return store, nil
}
