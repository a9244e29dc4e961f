// Package projection builds local read models from routed events.
// It observes the stream without emitting anything back.
package projection

import (
	"chat-hub/domain/event"
	"context"
	"sync"
)

const defaultKeep = 100

// Timeline keeps the most recent broadcast messages per room. Wired as a
// permanent sink, it gives the debug tooling a cheap in-memory view
// without touching the store.
type Timeline struct {
	mu     sync.RWMutex
	keep   int
	byRoom map[string][]event.RoomMessage
}

func NewTimeline() *Timeline {
	return &Timeline{
		keep:   defaultKeep,
		byRoom: make(map[string][]event.RoomMessage),
	}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	msg, ok := e.(event.RoomMessage)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := append(t.byRoom[msg.Room], msg)
	if len(entries) > t.keep {
		entries = entries[len(entries)-t.keep:]
	}
	t.byRoom[msg.Room] = entries
	return nil
}

// Recent returns the retained messages for a room, oldest first.
func (t *Timeline) Recent(room string) []event.RoomMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.byRoom[room]
	out := make([]event.RoomMessage, len(entries))
	copy(out, entries)
	return out
}
