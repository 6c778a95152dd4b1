package production

import (
	"sync"
	"time"
)

// EventType represents the type of production event.
type EventType int

const (
	// EventJobStarted is emitted when a job begins or a repeating job restarts.
	EventJobStarted EventType = iota
	// EventJobCompleted is emitted when a job delivered its outputs.
	EventJobCompleted
	// EventJobFailed is emitted when a job fails.
	EventJobFailed
	// EventJobCancelled is emitted when a job is cancelled.
	EventJobCancelled
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventJobStarted:
		return "JobStarted"
	case EventJobCompleted:
		return "JobCompleted"
	case EventJobFailed:
		return "JobFailed"
	case EventJobCancelled:
		return "JobCancelled"
	default:
		return "Unknown"
	}
}

// Event represents a production event. Job is a copy taken when the event
// was raised.
type Event struct {
	Type      EventType      `json:"type"`
	Job       *Job           `json:"job"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventBus manages event subscriptions and delivery.
type EventBus interface {
	// Subscribe registers a handler for events of jobs started by owner.
	Subscribe(owner string, handler func(Event))
	// Unsubscribe removes the handler for an owner.
	Unsubscribe(owner string)
	// Publish sends an event to subscribed handlers.
	Publish(event Event)
}

// SimpleEventBus is a basic in-memory event bus implementation.
type SimpleEventBus struct {
	mu       sync.RWMutex
	handlers map[string]func(Event)
}

// NewSimpleEventBus creates a new event bus.
func NewSimpleEventBus() *SimpleEventBus {
	return &SimpleEventBus{handlers: make(map[string]func(Event))}
}

// Subscribe registers a handler for events for a specific owner.
func (bus *SimpleEventBus) Subscribe(owner string, handler func(Event)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[owner] = handler
}

// Unsubscribe removes the handler for an owner.
func (bus *SimpleEventBus) Unsubscribe(owner string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.handlers, owner)
}

// Publish calls the owner's handler in its own goroutine so that slow
// subscribers never stall the simulation.
func (bus *SimpleEventBus) Publish(event Event) {
	if event.Job == nil || event.Job.Owner == "" {
		return
	}
	bus.mu.RLock()
	handler, exists := bus.handlers[event.Job.Owner]
	bus.mu.RUnlock()
	if exists {
		go handler(event)
	}
}

// NullEventBus is an event bus that does nothing.
type NullEventBus struct{}

func (NullEventBus) Subscribe(string, func(Event)) {}
func (NullEventBus) Unsubscribe(string)            {}
func (NullEventBus) Publish(Event)                 {}
