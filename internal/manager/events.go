package manager

import "time"

// Event is a manager lifecycle notification: model loads, evictions,
// unloads, switches and session open/close/expiry.
type Event struct {
	Name      string
	ModelID   string
	SessionID string
	At        time.Time
	Fields    map[string]any
}

// EventPublisher receives events from the manager. Publish runs on the
// goroutine that caused the event and must not block or panic.
type EventPublisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
