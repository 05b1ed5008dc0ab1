package domain

import "time"

// Instrument holds the authoritative price snapshot for a tradable symbol.
type Instrument struct {
	Symbol        string             `json:"symbol"`        // Unique key (e.g., "BTCUSDT", "PTT")
	Name          string             `json:"name"`          // Display name
	Category      InstrumentCategory `json:"category"`      // equity or crypto
	CurrentPrice  float64            `json:"currentPrice"`  // Latest applied price, always > 0
	PreviousClose float64            `json:"previousClose"` // Reference price for change calculations
	Change        float64            `json:"change"`        // CurrentPrice - PreviousClose
	ChangePercent float64            `json:"changePercent"` // Change / PreviousClose * 100
	UpdatedAt     time.Time          `json:"updatedAt"`     // Time of the last price application
}
