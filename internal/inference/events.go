package inference

import (
	"sync"

	"llamactx/internal/llm"
)

// EventKind names a generation notification.
type EventKind string

const (
	EventTokenGenerated     EventKind = "token_generated"
	EventGenerationFinished EventKind = "generation_finished"
	EventGenerationError    EventKind = "generation_error"
)

// Event is delivered synchronously, in generation order. Token is only set
// for token events; Text holds the piece, the full output or the error
// message depending on Kind.
type Event struct {
	Kind  EventKind
	Text  string
	Token llm.Token
}

// Publisher receives generation events. Publish runs on the generating
// goroutine and should not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Kinds returns the event kinds in order.
func (p *MemoryPublisher) Kinds() []EventKind {
	evs := p.Events()
	out := make([]EventKind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}
