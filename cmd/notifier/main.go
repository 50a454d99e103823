// Command notifier runs the abandoned cart reminders outside the API
// process, either once for an external cron or on its own ticker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/safar/go-sql-checkout/internal/config"
	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/logger"
	"github.com/safar/go-sql-checkout/internal/metrics"
	"github.com/safar/go-sql-checkout/internal/notifier"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single pass and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics here, overriding NOTIFIER_METRICS_ADDR")
	flag.Parse()

	if err := run(*once, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "checkout-notifier: %v\n", err)
		os.Exit(1)
	}
}

func run(once bool, metricsAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if metricsAddr != "" {
		cfg.Scheduler.MetricsAddr = metricsAddr
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

	n, closeLock, err := notifier.Setup(ctx, cfg, db, log, metrics.NewNotifierMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	defer closeLock()

	if !once {
		if cfg.Scheduler.MetricsAddr != "" {
			srv := metrics.NewServer(cfg.Scheduler.MetricsAddr, prometheus.DefaultGatherer)
			go func() {
				log.Info("serving notifier metrics", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server failed", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}
		return n.Run(ctx)
	}

	res, err := n.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("notifier run: %w", err)
	}
	log.Info("notifier run complete",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))
	return nil
}
