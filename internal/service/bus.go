// Package service holds the stateful pieces behind the editor endpoints:
// live region editing sessions and the change event bus.
package service

import (
	"sync"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
)

// Event resources.
const (
	ResourceRegions = "regions"
	ResourceQueries = "queries"
)

// Event actions.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionMoved     = "moved"
	ActionCommitted = "committed"
	ActionCancelled = "cancelled"
)

// Event represents a region or query change.
type Event struct {
	Resource string
	Action   string
	ID       string
	// Position is set for region events.
	Position *geo.GeoPoint
}

// EventBus is a simple fan-out pub/sub for change events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	_, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}
