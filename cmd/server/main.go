package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/config"
	"github.com/DoyleJ11/initiative-tracker/internal/httpapi"
	"github.com/DoyleJ11/initiative-tracker/internal/hub"
	"github.com/DoyleJ11/initiative-tracker/internal/logging"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/DoyleJ11/initiative-tracker/internal/store/gormstore"
	"github.com/DoyleJ11/initiative-tracker/internal/store/memstore"
	"github.com/DoyleJ11/initiative-tracker/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	reg := ws.NewRegistry(logger, cfg.DisplaysEnabled)
	h := hub.NewHub(ctx, hub.Config{
		Store:           st,
		Registry:        reg,
		Logger:          logger,
		TransitionDelay: cfg.TransitionDelay,
		PollInterval:    cfg.PollInterval,
		LoadTimeout:     cfg.LoadTimeout,
		DisplayURL:      cfg.DisplayPath,
	})

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, reg, httpapi.Options{
			CORSOrigins: cfg.CORSOrigins,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		h.Shutdown()
		reg.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore picks Postgres when a database URL is configured and an
// in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func() error, error) {
	if cfg.DatabaseURL != "" {
		db, err := gormstore.Open(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return nil, nil, multierr.Append(fmt.Errorf("migrate: %w", err), db.Close())
			}
		}
		logger.Info("using postgres store")
		return db, db.Close, nil
	}

	mem := memstore.New()
	if cfg.SeedFile != "" {
		if err := mem.LoadFixture(cfg.SeedFile); err != nil {
			return nil, nil, err
		}
	}
	logger.Info("using in-memory store", zap.String("seed", cfg.SeedFile))
	return mem, func() error { return nil }, nil
}
