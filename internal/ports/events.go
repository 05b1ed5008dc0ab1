package ports

// Event types fanned out to subscribers.
const (
	EventPriceChanged   = "price_changed"
	EventTradeCreated   = "trade_created"
	EventTradeCompleted = "trade_completed"
	EventBalanceChanged = "balance_changed"
)

// Event is a single domain change notification.
// UserID is empty for broadcast events (price changes) and set for
// user-scoped events (trade and balance changes).
type Event struct {
	Type   string      `json:"type"`
	UserID string      `json:"-"`
	Data   interface{} `json:"data"`
}

// EventPublisher is the domain-side interface for emitting events.
// Delivery is best effort; missed events are recoverable by re-polling the
// owning store.
type EventPublisher interface {
	Publish(event Event)
}
