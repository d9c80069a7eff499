package sinks

import (
	"context"
	"sync"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

// Memory keeps every delivered event in arrival order. Tests attach it to a
// router and assert on what the engine published.
type Memory struct {
	mu     sync.Mutex
	events []logging.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(event logging.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event.Clone())
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}

// Events returns a copy of everything written so far.
func (m *Memory) Events() []logging.Event {
	return m.filter(func(logging.Event) bool { return true })
}

// OfType returns the events of one type.
func (m *Memory) OfType(eventType logging.EventType) []logging.Event {
	return m.filter(func(e logging.Event) bool { return e.Type == eventType })
}

// Len reports how many events have been written.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *Memory) filter(keep func(logging.Event) bool) []logging.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]logging.Event, 0, len(m.events))
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}
