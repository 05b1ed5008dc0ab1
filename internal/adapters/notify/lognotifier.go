package notify

import (
	"context"

	"quickTrade/internal/ports"
)

// LogNotifier implements ports.Notifier by writing notifications to the log.
// The real notification service is an external collaborator; this adapter
// stands in for it and keeps the call sites honest about fire-and-forget
// semantics.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify records the notification. Never returns an error to the caller.
func (n *LogNotifier) Notify(ctx context.Context, userID, title, body, category, relatedID string) {
	n.logger.Info(ctx, "Notification dispatched", map[string]interface{}{
		"userID":    userID,
		"title":     title,
		"body":      body,
		"category":  category,
		"relatedID": relatedID,
	})
}
