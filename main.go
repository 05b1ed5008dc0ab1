package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"quickTrade/config"
	"quickTrade/internal/adapters/binancequotes"
	"quickTrade/internal/adapters/headerauth"
	"quickTrade/internal/adapters/logger"
	"quickTrade/internal/adapters/notify"
	"quickTrade/internal/adapters/sqlite"
	"quickTrade/internal/domain"
	"quickTrade/internal/engine"
	"quickTrade/internal/events"
	"quickTrade/internal/instruments"
	"quickTrade/internal/ledger"
	"quickTrade/internal/ports"
	"quickTrade/internal/pricefeed"
	"quickTrade/internal/scheduler"
	"quickTrade/internal/server"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Event Bus
	bus := events.NewBus()

	// 5. Instrument Store
	seeds := make([]instruments.Seed, 0, len(cfg.Instruments))
	for _, seed := range cfg.Instruments {
		seeds = append(seeds, instruments.Seed{
			Symbol:       seed.Symbol,
			Name:         seed.Name,
			Category:     domain.InstrumentCategory(seed.Category),
			InitialPrice: seed.InitialPrice,
		})
	}
	store, err := instruments.NewStore(instruments.Config{Logger: appLogger, Bus: bus, Seeds: seeds})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize instrument store: %v", err)
	}

	// 6. Ledger
	bank, err := ledger.New(ledger.Config{
		Logger:          appLogger,
		Accounts:        repo,
		Bus:             bus,
		StartingBalance: cfg.StartingBalance,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize ledger: %v", err)
	}

	// 7. Quote Source. Without credentials the feed runs purely on simulation.
	var quotes ports.QuoteSource
	if cfg.APIKey != "" {
		client, err := binancequotes.New(binancequotes.Config{
			APIKey:    cfg.APIKey,
			SecretKey: cfg.SecretKey,
			Logger:    appLogger,
			Timeout:   cfg.QuoteTimeout,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize quote source: %v", err)
		}
		quotes = client
		appLogger.Info(ctx, "External quote source enabled")
	} else {
		appLogger.Info(ctx, "No quote credentials configured, running with simulated prices")
	}

	// 8. Notifier (external collaborator stand-in)
	notifier := notify.NewLogNotifier(appLogger)

	// 9. Settlement Scheduler
	settle, err := scheduler.New(scheduler.Config{
		Logger:      appLogger,
		Trades:      repo,
		Instruments: store,
		Ledger:      bank,
		Bus:         bus,
		Notifier:    notifier,
		Quotes:      quotes,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize settlement scheduler: %v", err)
	}

	// 10. Trade Engine
	eng, err := engine.New(engine.Config{
		Logger:      appLogger,
		Instruments: store,
		Ledger:      bank,
		Trades:      repo,
		Scheduler:   settle,
		Bus:         bus,
		Notifier:    notifier,
		MinStake:    cfg.MinStake,
		MaxStake:    cfg.MaxStake,
		Multipliers: cfg.Multipliers,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trade engine: %v", err)
	}

	// 11. Price Feed
	feed, err := pricefeed.New(pricefeed.Config{
		Logger:      appLogger,
		Instruments: store,
		Quotes:      quotes,
		Candles:     repo,
		Interval:    cfg.FeedInterval,
		MaxDrift:    cfg.MaxDriftRatio,
		MinPrice:    cfg.MinPrice,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize price feed: %v", err)
	}

	// 12. HTTP Server
	srv, err := server.New(server.Config{
		Logger:      appLogger,
		Engine:      eng,
		Instruments: store,
		Ledger:      bank,
		Candles:     repo,
		Bus:         bus,
		Identity:    headerauth.New(cfg.AdminToken),
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	// 13. Start everything. The recovery sweep re-arms (or immediately
	// settles) any trades left active by a previous run.
	if err := settle.Start(ctx); err != nil {
		log.Fatalf("FATAL: Settlement scheduler recovery failed: %v", err)
	}
	defer settle.Stop()

	go feed.Run(ctx)

	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		appLogger.Error(ctx, err, "HTTP server exited with error")
		log.Fatalf("FATAL: HTTP server exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
