package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"quickTrade/internal/adapters/logger" // Import the logger package for LogLevel
)

// InstrumentSeed describes one instrument made tradable at startup.
type InstrumentSeed struct {
	Symbol       string
	Name         string
	Category     string
	InitialPrice float64
}

// Config holds all application configuration.
type Config struct {
	// HTTP Server
	ListenAddr  string
	CORSOrigins []string

	// Identity (external collaborator credential translation)
	AdminToken string // Token identifying admin callers; empty disables admin routes

	// Quote Source (Binance)
	APIKey       string
	SecretKey    string
	QuoteTimeout time.Duration // Upper bound per external quote call

	// Price Feed
	FeedInterval  time.Duration // How often every instrument's price moves
	MaxDriftRatio float64       // Max simulated move per tick (e.g., 0.01 for 1%)
	MinPrice      float64       // Floor applied to every simulated price

	// Trading Parameters
	MinStake         int64          // Smallest currency unit
	MaxStake         int64          // Smallest currency unit
	AllowedDurations []int          // Seconds; the only accepted trade durations
	Multipliers      map[int]float64 // durationSeconds -> payout multiplier
	StartingBalance  int64          // Balance granted to lazily created accounts

	// Instruments
	Instruments []InstrumentSeed

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// HTTP Server
	cfg.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	cfg.CORSOrigins = splitCSV(getEnv("CORS_ORIGINS", "*"))

	// Identity
	cfg.AdminToken = getEnv("ADMIN_TOKEN", "")

	// Quote Source. Keys may be empty: the feed then runs purely on simulation.
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")

	quoteTimeoutMs := getEnvAsInt("QUOTE_TIMEOUT_MS", 1500)
	if quoteTimeoutMs <= 0 {
		errs = append(errs, "QUOTE_TIMEOUT_MS must be positive")
	}
	cfg.QuoteTimeout = time.Duration(quoteTimeoutMs) * time.Millisecond

	// Price Feed
	feedIntervalMs := getEnvAsInt("FEED_INTERVAL_MS", 2000)
	if feedIntervalMs <= 0 {
		errs = append(errs, "FEED_INTERVAL_MS must be positive")
	}
	cfg.FeedInterval = time.Duration(feedIntervalMs) * time.Millisecond

	cfg.MaxDriftRatio, err = getEnvAsFloatRequired("MAX_DRIFT_RATIO", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DRIFT_RATIO: %v", err))
	} else if cfg.MaxDriftRatio <= 0 || cfg.MaxDriftRatio >= 1.0 {
		errs = append(errs, "MAX_DRIFT_RATIO must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MinPrice, err = getEnvAsFloatRequired("MIN_PRICE", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_PRICE: %v", err))
	} else if cfg.MinPrice <= 0 {
		errs = append(errs, "MIN_PRICE must be positive")
	}

	// Trading Parameters
	cfg.MinStake = int64(getEnvAsInt("MIN_STAKE", 100))
	if cfg.MinStake <= 0 {
		errs = append(errs, "MIN_STAKE must be positive")
	}
	cfg.MaxStake = int64(getEnvAsInt("MAX_STAKE", 10_000_000))
	if cfg.MaxStake < cfg.MinStake {
		errs = append(errs, "MAX_STAKE must be >= MIN_STAKE")
	}

	durations, durErr := parseIntList(getEnv("ALLOWED_DURATIONS", "90,120,300"))
	if durErr != nil || len(durations) == 0 {
		errs = append(errs, fmt.Sprintf("invalid ALLOWED_DURATIONS: %v", durErr))
	}
	cfg.AllowedDurations = durations

	longMultiplier := getEnvAsFloat("MULTIPLIER_LONG", 2.6)
	shortMultiplier := getEnvAsFloat("MULTIPLIER_SHORT", 1.8)
	if longMultiplier <= 1.0 || shortMultiplier <= 1.0 {
		errs = append(errs, "payout multipliers must be greater than 1.0")
	}
	cfg.Multipliers = make(map[int]float64, len(durations))
	for _, d := range durations {
		// The longest duration pays the premium multiplier, everything else the base.
		if d >= 300 {
			cfg.Multipliers[d] = longMultiplier
		} else {
			cfg.Multipliers[d] = shortMultiplier
		}
	}

	cfg.StartingBalance = int64(getEnvAsInt("STARTING_BALANCE", 1_000_000))
	if cfg.StartingBalance < 0 {
		errs = append(errs, "STARTING_BALANCE cannot be negative")
	}

	// Instruments: "SYMBOL:Name:category:initialPrice" entries separated by ";"
	seedStr := getEnv("INSTRUMENTS", "BTCUSDT:Bitcoin:crypto:65000;ETHUSDT:Ethereum:crypto:3200;PTT:PTT PCL:equity:34.5;AOT:Airports of Thailand:equity:61.25")
	seeds, seedErr := parseInstrumentSeeds(seedStr)
	if seedErr != nil {
		errs = append(errs, fmt.Sprintf("invalid INSTRUMENTS: %v", seedErr))
	} else if len(seeds) == 0 {
		errs = append(errs, "INSTRUMENTS must define at least one instrument")
	}
	cfg.Instruments = seeds

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/quicktrade.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// MultiplierFor returns the payout multiplier for a duration and whether the
// duration is allowed at all.
func (c *Config) MultiplierFor(durationSeconds int) (float64, bool) {
	m, ok := c.Multipliers[durationSeconds]
	return m, ok
}

// --- Parsing Helpers ---

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIntList(s string) ([]int, error) {
	parts := splitCSV(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid integer '%s': %w", p, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("duration must be positive, got %d", v)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseInstrumentSeeds(s string) ([]InstrumentSeed, error) {
	entries := strings.Split(s, ";")
	seeds := make([]InstrumentSeed, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) != 4 {
			return nil, fmt.Errorf("entry '%s' must have 4 fields (symbol:name:category:price)", entry)
		}
		price, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price '%s' for symbol %s: %w", fields[3], fields[0], err)
		}
		if price <= 0 {
			return nil, fmt.Errorf("price for symbol %s must be positive", fields[0])
		}
		category := strings.ToLower(strings.TrimSpace(fields[2]))
		if category != "equity" && category != "crypto" {
			return nil, fmt.Errorf("category for symbol %s must be 'equity' or 'crypto'", fields[0])
		}
		seeds = append(seeds, InstrumentSeed{
			Symbol:       strings.ToUpper(strings.TrimSpace(fields[0])),
			Name:         strings.TrimSpace(fields[1]),
			Category:     category,
			InitialPrice: price,
		})
	}
	return seeds, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
