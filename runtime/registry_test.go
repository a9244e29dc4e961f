package runtime

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	apperrors "chat-hub/errors"
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingSink captures every event pushed to it, for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	fail   error
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.DomainEvent, len(s.events))
	copy(out, s.events)
	return out
}

func Test_Register_And_Duplicate_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	now := time.Now()

	// Given a registered connection
	req.NoError(registry.Register("c1", "Alice", &recordingSink{}, now))
	req.Equal(1, registry.Len())

	// When registering the same connection ID again
	err := registry.Register("c1", "Bob", &recordingSink{}, now)

	// Then the duplicate is refused and the original survives
	req.ErrorIs(err, apperrors.ErrDuplicateConnection)
	identity, ok := registry.Identity("c1")
	req.True(ok)
	req.Equal("Alice", identity)
}

func Test_SetRoom_Moves_Between_Rooms(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := &recordingSink{}
	req.NoError(registry.Register("c1", "Alice", sink, time.Now()))

	// A fresh connection has no room
	_, ok := registry.Room("c1")
	req.False(ok)

	registry.SetRoom("c1", "General")
	room, ok := registry.Room("c1")
	req.True(ok)
	req.Equal("General", room)
	req.Len(registry.SinksForRoom("General"), 1)

	// Joining another room leaves the first one
	registry.SetRoom("c1", "Movies")
	req.Empty(registry.SinksForRoom("General"))
	req.Len(registry.SinksForRoom("Movies"), 1)
}

func Test_Unregister_Cleans_Room_Membership(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.NoError(registry.Register("c1", "Alice", &recordingSink{}, time.Now()))
	registry.SetRoom("c1", "General")

	registry.Unregister("c1")

	req.Equal(0, registry.Len())
	req.Empty(registry.SinksForRoom("General"))

	// Idempotent for an already removed connection
	registry.Unregister("c1")
	req.Equal(0, registry.Len())
}

func Test_Identities_Deduplicates_Shared_Account(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	now := time.Now()

	// Two sockets for Alice, one for Bob
	req.NoError(registry.Register("c1", "Alice", &recordingSink{}, now))
	req.NoError(registry.Register("c2", "Alice", &recordingSink{}, now))
	req.NoError(registry.Register("c3", "Bob", &recordingSink{}, now))

	identities := registry.Identities()
	req.Len(identities, 2)
	req.ElementsMatch([]string{"Alice", "Bob"}, identities)
}

func Test_SinksForIdentity_Returns_All_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	now := time.Now()
	first, second := &recordingSink{}, &recordingSink{}

	req.NoError(registry.Register("c1", "Alice", first, now))
	req.NoError(registry.Register("c2", "Alice", second, now))
	req.NoError(registry.Register("c3", "Bob", &recordingSink{}, now))

	req.Len(registry.SinksForIdentity("Alice"), 2)
	req.Len(registry.SinksForIdentity("Bob"), 1)
	req.Empty(registry.SinksForIdentity("Clara"))
}

func Test_ClearRoom(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.NoError(registry.Register("c1", "Alice", &recordingSink{}, time.Now()))
	registry.SetRoom("c1", "General")

	registry.ClearRoom("c1")

	_, ok := registry.Room("c1")
	req.False(ok)
	req.Empty(registry.SinksForRoom("General"))
	req.Equal(1, registry.Len())
}

func Test_Concurrent_Registry_Access(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := domain.ConnectionID(strconv.Itoa(n))
			_ = registry.Register(conn, "user", &recordingSink{}, time.Now())
			registry.SetRoom(conn, "General")
			registry.SinksForRoom("General")
			registry.Unregister(conn)
		}(i)
	}
	wg.Wait()

	req.Equal(0, registry.Len())
	req.Empty(registry.SinksForRoom("General"))
}
