package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/go-sql-checkout/internal/api"
	"github.com/safar/go-sql-checkout/internal/checkout"
	"github.com/safar/go-sql-checkout/internal/config"
	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/logger"
	"github.com/safar/go-sql-checkout/internal/metrics"
	"github.com/safar/go-sql-checkout/internal/notifier"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "checkout-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	wholesale, err := config.NewWholesaleConfigHolder(cfg.WholesaleConfigPath, log)
	if err != nil {
		return fmt.Errorf("load wholesale tiers: %w", err)
	}

	warehouse := pricing.Warehouse{
		Country: cfg.Warehouse.Country,
		State:   cfg.Warehouse.State,
		City:    cfg.Warehouse.City,
	}
	if !warehouse.Configured() {
		log.Warn("warehouse location not configured; shipping will be free")
	}
	svc := checkout.NewService(db, wholesale, warehouse, log)

	srv := api.NewServer(svc, log,
		api.WithJWTSecret(cfg.Auth.JWTSecret),
		api.WithMetrics(metrics.NewHTTPMetrics(prometheus.DefaultRegisterer), promhttp.Handler()),
		api.WithHealthCheck(db.PingContext),
	)
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET not set; every request is anonymous")
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Scheduler.Enabled {
		n, closeLock, err := notifier.Setup(ctx, cfg, db, log, metrics.NewNotifierMetrics(prometheus.DefaultRegisterer))
		if err != nil {
			stop()
			g.Wait()
			return err
		}
		defer closeLock()
		g.Go(func() error {
			return n.Run(gctx)
		})
	}

	return g.Wait()
}
