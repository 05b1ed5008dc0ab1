package ports

import "context"

// Notifier defines the fire-and-forget interface to the external notification
// service. Failures are logged by implementations and never propagated.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body, category, relatedID string)
}
