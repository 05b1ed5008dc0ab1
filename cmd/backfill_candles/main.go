package main

import (
	"context"
	"flag"
	"log"

	"quickTrade/config"
	"quickTrade/internal/adapters/binancequotes"
	"quickTrade/internal/adapters/logger"
	"quickTrade/internal/adapters/sqlite"
)

// Backfills the candle store from the external quote source so charts have
// history before the live feed has produced any samples.
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "symbol to backfill")
	interval := flag.String("interval", "1m", "kline interval to fetch")
	limit := flag.Int("limit", 500, "number of klines to fetch")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	// 4. Initialize Quote Source
	quotes, err := binancequotes.New(binancequotes.Config{
		APIKey:    cfg.APIKey,
		SecretKey: cfg.SecretKey,
		Logger:    appLogger,
		Timeout:   cfg.QuoteTimeout,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize quote source: %v", err)
	}

	appLogger.Info(ctx, "Fetching klines", map[string]interface{}{"symbol": *symbol, "interval": *interval, "limit": *limit})
	candles, err := quotes.GetKlines(ctx, *symbol, *interval, *limit)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}

	inserted := 0
	for _, candle := range candles {
		if err := repo.Append(ctx, candle); err != nil {
			appLogger.Error(ctx, err, "Error inserting candle", map[string]interface{}{"openTime": candle.OpenTime})
			continue
		}
		inserted++
	}
	appLogger.Info(ctx, "Backfill complete", map[string]interface{}{"symbol": *symbol, "inserted": inserted})
}
