// Command seed loads default locations, tax rates and, on request, the
// test coupons into a migrated database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/go-sql-checkout/internal/config"
	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/logger"
	"github.com/safar/go-sql-checkout/internal/seed"
)

func main() {
	coupons := flag.Bool("coupons", false, "also create the SAVE5..SAVE25 test coupons")
	flag.Parse()

	if err := run(*coupons); err != nil {
		fmt.Fprintf(os.Stderr, "checkout-seed: %v\n", err)
		os.Exit(1)
	}
}

func run(coupons bool) error {
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

	if err := database.Migrate(db); err != nil {
		return err
	}
	_, err = seed.Run(ctx, db, log, seed.Options{Coupons: coupons})
	return err
}
