package manager

import "sync"

// MemoryPublisher records events in publish order.
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

// Names lists event names in publish order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

// Find returns the first event with name published for modelID.
func (p *MemoryPublisher) Find(name, modelID string) (Event, bool) {
	for _, e := range p.Events() {
		if e.Name == name && e.ModelID == modelID {
			return e, true
		}
	}
	return Event{}, false
}

// Has reports whether an event with name was published for modelID.
func (p *MemoryPublisher) Has(name, modelID string) bool {
	_, ok := p.Find(name, modelID)
	return ok
}
