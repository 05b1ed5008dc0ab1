package domain

// Direction is the price movement a trade bets on.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// IsValid reports whether the direction is one of the known values.
func (d Direction) IsValid() bool {
	return d == DirectionUp || d == DirectionDown
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	StatusActive TradeStatus = "active"
	StatusWon    TradeStatus = "won"
	StatusLost   TradeStatus = "lost"
)

// IsTerminal reports whether the status permits no further mutation.
func (s TradeStatus) IsTerminal() bool {
	return s == StatusWon || s == StatusLost
}

// InstrumentCategory classifies a tradable instrument.
type InstrumentCategory string

const (
	CategoryEquity InstrumentCategory = "equity"
	CategoryCrypto InstrumentCategory = "crypto"
)
