package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/go-sql-checkout/internal/config"
	"github.com/safar/go-sql-checkout/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down|version]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	switch direction := os.Args[1]; direction {
	case "up":
		err = database.Migrate(db)
	case "down":
		err = database.MigrateDown(db)
	case "version":
	default:
		log.Fatalf("Unknown command %q: expected up, down or version", direction)
	}
	if err != nil {
		log.Fatalf("Migrate %s: %v", os.Args[1], err)
	}

	version, dirty, err := database.MigrationVersion(db)
	if err != nil {
		log.Fatalf("Read version: %v", err)
	}
	log.Printf("Schema at version %d (dirty=%t)", version, dirty)
}
