package domain

import "time"

// Candle is a single OHLC sample recorded by the price feed.
// Candles exist for chart rendering only; settlement never reads them.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // Sampling interval tag (e.g., "2s", "1m")
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	OpenTime time.Time `json:"openTime"`
}
