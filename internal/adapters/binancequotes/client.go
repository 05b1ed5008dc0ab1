package binancequotes

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"quickTrade/internal/domain"
	"quickTrade/internal/ports"

	"github.com/adshao/go-binance/v2"
)

// Client implements the ports.QuoteSource interface using the go-binance
// spot API. Only public market-data endpoints are used, so API keys are
// optional; they merely raise the rate limits when present.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	timeout    time.Duration
}

// Config holds configuration specific to the Binance quote adapter.
type Config struct {
	APIKey    string
	SecretKey string
	Logger    ports.Logger
	Timeout   time.Duration // Upper bound applied to every outbound call
}

// New creates a new Binance quote source adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance quote client")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}

	return &Client{
		spotClient: binance.NewClient(cfg.APIKey, cfg.SecretKey),
		logger:     cfg.Logger,
		timeout:    timeout,
	}, nil
}

// GetQuote retrieves the latest traded price for a symbol.
// Any failure, including a malformed response, is wrapped with
// ports.ErrQuoteUnavailable so the caller can degrade to simulation.
func (c *Client) GetQuote(ctx context.Context, symbol string) (float64, error) {
	op := "GetQuote"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.unavailable(ctx, err, op, symbol)
	}
	if len(prices) == 0 {
		return 0, c.unavailable(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op, symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.unavailable(ctx, parseErr, op, symbol)
	}
	if price <= 0 {
		return 0, c.unavailable(ctx, fmt.Errorf("non-positive price %f for symbol %s", price, symbol), op, symbol)
	}
	return price, nil
}

// GetKlines retrieves historical candles for backfilling the chart store.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	op := "GetKlines"
	klines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.unavailable(ctx, err, op, symbol)
	}

	candles := make([]*domain.Candle, 0, len(klines))
	for _, k := range klines {
		open, errO := strconv.ParseFloat(k.Open, 64)
		high, errH := strconv.ParseFloat(k.High, 64)
		low, errL := strconv.ParseFloat(k.Low, 64)
		closeP, errC := strconv.ParseFloat(k.Close, 64)
		volume, errV := strconv.ParseFloat(k.Volume, 64)
		if errO != nil || errH != nil || errL != nil || errC != nil || errV != nil {
			c.logger.Warn(ctx, op+": skipping malformed kline", map[string]interface{}{"symbol": symbol, "openTime": k.OpenTime})
			continue
		}
		candles = append(candles, &domain.Candle{
			Symbol:   symbol,
			Interval: interval,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   volume,
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		})
	}
	return candles, nil
}

// Ping checks connectivity to the quote source.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.unavailable(ctx, fmt.Errorf("ping failed: %w", err), op, "")
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// unavailable logs the underlying failure and wraps it as ErrQuoteUnavailable.
// Quote failures are operator information, never caller-facing errors.
func (c *Client) unavailable(ctx context.Context, err error, op, symbol string) error {
	c.logger.Debug(ctx, op+": quote source failure", map[string]interface{}{
		"symbol":        symbol,
		"originalError": err.Error(),
	})
	return fmt.Errorf("%s for %s: %v: %w", op, symbol, err, ports.ErrQuoteUnavailable)
}
