package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"deepfakeserver/internal/app"
	"deepfakeserver/internal/config"
)

func main() {
	driver := flag.String("driver", "", "History driver: sqlite or postgres (default: HISTORY_DRIVER)")
	dsn := flag.String("dsn", "", "Database path or connection string (default: HISTORY_DSN)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *driver != "" {
		cfg.HistoryDriver = *driver
	}
	if *dsn != "" {
		cfg.HistoryDSN = *dsn
	}
	if cfg.HistoryDriver != "sqlite" && cfg.HistoryDriver != "postgres" {
		log.Fatalf("Nothing to migrate for history driver %q", cfg.HistoryDriver)
	}

	fmt.Printf("Creating prediction history schema (%s) at %s\n", cfg.HistoryDriver, cfg.HistoryDSN)

	ctx := context.Background()
	repo, err := app.OpenHistory(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()

	fmt.Printf("✅ Schema is up to date\n")

	stats, err := repo.GetStats(ctx)
	if err == nil {
		fmt.Printf("\n📊 Database Statistics:\n")
		fmt.Printf("   Total predictions: %d\n", stats.Total)
		fmt.Printf("   FAKE: %d, REAL: %d\n", stats.Fake, stats.Real)
	}
}
