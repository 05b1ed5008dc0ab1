package domain

import "time"

// Trade represents a directional wager on an instrument's price movement.
// A trade is created active and moves exactly once to won or lost.
type Trade struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Symbol          string      `json:"symbol"`
	Direction       Direction   `json:"direction"`
	Stake           int64       `json:"stake"`           // Smallest currency unit, debited at creation
	DurationSeconds int         `json:"durationSeconds"` // From the configured allow-list
	Multiplier      float64     `json:"multiplier"`      // Derived from duration
	EntryPrice      float64     `json:"entryPrice"`      // Instrument price snapshot at creation
	ExitPrice       float64     `json:"exitPrice"`       // Price at settlement (0 while active)
	StartedAt       time.Time   `json:"startedAt"`
	ExpiresAt       time.Time   `json:"expiresAt"` // StartedAt + duration; settlement trigger
	SettledAt       time.Time   `json:"settledAt,omitempty"`
	Status          TradeStatus `json:"status"`          // active, won or lost
	PotentialPayout int64       `json:"potentialPayout"` // floor(Stake * Multiplier)
	PayoutAmount    int64       `json:"payoutAmount"`    // Credited amount, set only when won
	ForcedOutcome   TradeStatus `json:"forcedOutcome,omitempty"`
	ForcedByAdminID string      `json:"forcedByAdminId,omitempty"`
}

// IsActive reports whether the trade is still awaiting settlement.
func (t *Trade) IsActive() bool {
	return t.Status == StatusActive
}

// Outcome returns the settlement result for the given exit price.
// A forced outcome takes precedence; otherwise the price comparison decides,
// with ties resolving to lost.
func (t *Trade) Outcome(exitPrice float64) TradeStatus {
	if t.ForcedOutcome.IsTerminal() {
		return t.ForcedOutcome
	}
	switch t.Direction {
	case DirectionUp:
		if exitPrice > t.EntryPrice {
			return StatusWon
		}
	case DirectionDown:
		if exitPrice < t.EntryPrice {
			return StatusWon
		}
	}
	return StatusLost
}
