package events

import (
	"sync"

	"quickTrade/internal/ports"
)

// Subscription receives events matched by the bus. Consumers must drain C;
// sends never block, so a slow consumer misses events rather than stalling
// publishers. Missed state is re-fetchable from the owning stores.
type Subscription struct {
	C      chan ports.Event
	userID string
	admin  bool
}

// Bus is an in-process publish/subscribe fan-out keyed by event type.
// Broadcast events (empty UserID) reach every subscriber; user-scoped events
// reach the owning user's subscriptions plus admin subscriptions.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscription scoped to userID. Admin subscriptions
// additionally receive every user-scoped event.
func (b *Bus) Subscribe(userID string, admin bool, buffer int) *Subscription {
	sub := &Subscription{
		C:      make(chan ports.Event, buffer),
		userID: userID,
		admin:  admin,
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		close(sub.C)
	}
}

// Publish fans the event out to matching subscriptions without blocking.
func (b *Bus) Publish(event ports.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !matches(sub, event) {
			continue
		}
		select {
		case sub.C <- event:
		default:
			// Buffer full, skip this subscriber
		}
	}
}

// SubscriberCount returns the number of registered subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func matches(sub *Subscription, event ports.Event) bool {
	if event.UserID == "" {
		return true // Broadcast
	}
	return sub.admin || sub.userID == event.UserID
}
