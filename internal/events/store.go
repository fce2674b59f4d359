package events

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryStore keeps emitted events in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// Insert implements EventStore.
func (m *MemoryStore) Insert(_ context.Context, ev Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return ev, nil
}

// Events returns recorded events, optionally filtered by topic.
func (m *MemoryStore) Events(topics ...string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0, len(m.events))
	for _, ev := range m.events {
		if len(topics) == 0 || slices.Contains(topics, ev.Topic) {
			out = append(out, ev)
		}
	}
	return out
}

// LogNotifier writes every event to a logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID).
		RawJSON("payload", ev.Payload).
		Msg("domain event")
	return nil
}
