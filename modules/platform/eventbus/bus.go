package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the type of event
type EventType string

const (
	// Timer events
	EventStateChanged    EventType = "state_changed"    // Payload: timer.State
	EventTimerTick       EventType = "timer_tick"       // Payload: timer.Remaining
	EventSessionComplete EventType = "session_complete" // No payload
)

// Event represents an event in the system
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// WithSource sets the source
func (e *Event) WithSource(source string) *Event {
	e.Source = source
	return e
}

// WithPayload sets the payload
func (e *Event) WithPayload(payload interface{}) *Event {
	e.Payload = payload
	return e
}

// Subscriber is a function that handles events
type Subscriber func(event *Event)

// Subscription represents a subscription to events
type Subscription struct {
	id         string
	eventTypes []EventType // nil means all events
	handler    Subscriber
}

// Bus is the central event bus.
//
// Publish delivers synchronously and publishes are serialized, so every
// subscriber observes events in the same order they were published.
// Handlers must not publish or block.
type Bus struct {
	mu          sync.RWMutex
	publishMu   sync.Mutex
	subscribers map[string]*Subscription
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscription),
	}
}

// Subscribe registers a subscriber for specific event types
// Pass nil for eventTypes to subscribe to all events
func (b *Bus) Subscribe(eventTypes []EventType, handler Subscriber) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subscribers[id] = &Subscription{
		id:         id,
		eventTypes: eventTypes,
		handler:    handler,
	}
	return id
}

// Unsubscribe removes a subscriber
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// SubscriberCount returns the number of registered subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish publishes an event to all matching subscribers
func (b *Bus) Publish(event *Event) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	subscribers := make([]*Subscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.matches(event) {
			subscribers = append(subscribers, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subscribers {
		sub.handler(event)
	}
}

func (s *Subscription) matches(event *Event) bool {
	if s.eventTypes == nil {
		return true
	}
	for _, et := range s.eventTypes {
		if et == event.Type {
			return true
		}
	}
	return false
}
