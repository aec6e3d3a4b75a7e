package event

import "sync"

// Sink receives engine events. Implementations must not block the
// calling operation and must swallow their own failures.
type Sink interface {
	Publish(ev Event)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// MemorySink buffers events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfKind filters buffered events by kind.
func (s *MemorySink) OfKind(kind Kind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.EventKind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

// MultiSink fans out to several sinks.
type MultiSink []Sink

func (m MultiSink) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}
