// Command seed populates an empty pharmacore store with demo data.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/brianvoe/gofakeit/v7"

	"pharmacore/internal/config"
	"pharmacore/internal/core"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	seedValue := flag.Int64("seed", 0, "faker seed; 0 derives one from entropy")
	flag.Parse()

	logger := core.StdLogger{L: log.New(os.Stdout, "seed ", log.LstdFlags|log.LUTC)}

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, closer, err := core.OpenPersistentStore(ctx, core.StorageConfig{
		Driver:      cfg.StorageDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}, core.DefaultRulesEngine(), logger)
	if err != nil {
		logger.Error("store open failed", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	svc := core.NewService(store, nil, core.WithLogger(logger))
	if err := svc.SeedDemoData(ctx, gofakeit.New(uint64(*seedValue))); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}
