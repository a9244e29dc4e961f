package runtime

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/domain/search"
	apperrors "chat-hub/errors"
	"chat-hub/moderation"
	"chat-hub/repositories"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type routerFixture struct {
	router   *Router
	registry *Registry
	messages repositories.IMessageRepository
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	log := slog.Default()
	registry := NewRegistry()
	messages := repositories.NewMessageRepository(db, log)
	index := repositories.NewSearchRepository(writer, log)

	moderator, err := moderation.NewModerator([]string{"badword"}, '*')
	req.NoError(err)

	router := NewRouter(log, registry, messages, index, &moderator,
		domain.DefaultRooms(), 64, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = router.Run(ctx) }()

	return &routerFixture{router: router, registry: registry, messages: messages}
}

func eventsOf[T event.DomainEvent](s *recordingSink) []T {
	var out []T
	for _, e := range s.Events() {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

func lastPresence(s *recordingSink) (event.ActiveUsers, bool) {
	lists := eventsOf[event.ActiveUsers](s)
	if len(lists) == 0 {
		return event.ActiveUsers{}, false
	}
	return lists[len(lists)-1], true
}

func Test_Connect_Broadcasts_Presence_To_Everyone(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice, bob := &recordingSink{}, &recordingSink{}

	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	req.NoError(f.router.Connect("c-bob", "Bob", bob, time.Now()))

	// Both connections converge on the same sorted presence list
	req.Eventually(func() bool {
		a, okA := lastPresence(alice)
		b, okB := lastPresence(bob)
		return okA && okB &&
			len(a.Users) == 2 && a.Users[0] == "Alice" && a.Users[1] == "Bob" &&
			len(b.Users) == 2
	}, waitFor, tick)
}

func Test_Duplicate_Connection_Refused(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	req.NoError(f.router.Connect("c1", "Alice", &recordingSink{}, time.Now()))
	req.ErrorIs(f.router.Connect("c1", "Bob", &recordingSink{}, time.Now()),
		apperrors.ErrDuplicateConnection)
}

func Test_Join_Replays_History_Then_Announces(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	// Given two stored messages in General
	at := time.Now().UTC()
	req.NoError(f.messages.StoreMessage(repositories.DiskMessage{
		ID: uuid.New(), Room: "General", Author: "Old", Content: "first", At: at}))
	req.NoError(f.messages.StoreMessage(repositories.DiskMessage{
		ID: uuid.New(), Room: "General", Author: "Old", Content: "second", At: at.Add(time.Second)}))

	alice := &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))

	// When Alice joins
	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "General", At: time.Now()})

	// Then she receives the full history followed by her own join status
	req.Eventually(func() bool {
		return len(eventsOf[event.Status](alice)) == 1
	}, waitFor, tick)

	histories := eventsOf[event.ChatHistory](alice)
	req.Len(histories, 1)
	req.Len(histories[0].Messages, 2)
	req.Equal("first", histories[0].Messages[0].Message)
	req.Equal("second", histories[0].Messages[1].Message)

	// History strictly precedes the join announcement
	var historyIdx, statusIdx int
	for i, e := range alice.Events() {
		switch e.Kind() {
		case event.KindChatHistory:
			historyIdx = i
		case event.KindStatus:
			statusIdx = i
		}
	}
	req.Less(historyIdx, statusIdx)

	status := eventsOf[event.Status](alice)[0]
	req.Equal("join", status.Type)
	req.Equal("Alice has joined the room.", status.Msg)

	room, ok := f.registry.Room("c-alice")
	req.True(ok)
	req.Equal("General", room)
}

func Test_Join_Unknown_Room_Refused(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice := &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))

	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "Basement", At: time.Now()})

	// A later valid join proves the refused one was fully processed
	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "Movies", At: time.Now()})
	req.Eventually(func() bool {
		room, ok := f.registry.Room("c-alice")
		return ok && room == "Movies"
	}, waitFor, tick)

	// No history or status ever came out of the unknown room
	for _, h := range eventsOf[event.ChatHistory](alice) {
		req.NotEqual("Basement", h.Room)
	}
	for _, s := range eventsOf[event.Status](alice) {
		req.NotEqual("Basement", s.Room)
	}
}

func Test_PostMessage_Censors_Persists_And_Broadcasts(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice, bob, clara := &recordingSink{}, &recordingSink{}, &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	req.NoError(f.router.Connect("c-bob", "Bob", bob, time.Now()))
	req.NoError(f.router.Connect("c-clara", "Clara", clara, time.Now()))

	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "General", At: time.Now()})
	f.router.Dispatch(domain.JoinCommand{Conn: "c-bob", Room: "General", At: time.Now()})
	f.router.Dispatch(domain.JoinCommand{Conn: "c-clara", Room: "Movies", At: time.Now()})

	// When Alice posts a message containing a forbidden word
	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "General", Content: "what a badword moment", At: time.Now().UTC()})

	// Then both General members receive the censored version
	req.Eventually(func() bool {
		return len(eventsOf[event.RoomMessage](alice)) == 1 &&
			len(eventsOf[event.RoomMessage](bob)) == 1
	}, waitFor, tick)

	got := eventsOf[event.RoomMessage](bob)[0]
	req.Equal("Alice", got.Author)
	req.Equal("what a ******* moment", got.Content)
	req.Equal("General", got.Room)

	// Clara is in another room and sees nothing
	req.Empty(eventsOf[event.RoomMessage](clara))

	// And the censored form is what was persisted
	stored, err := f.messages.GetMessages("General")
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("what a ******* moment", stored[0].Content)
}

func Test_PostMessage_Routes_By_Frame_Room(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice, bob := &recordingSink{}, &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	req.NoError(f.router.Connect("c-bob", "Bob", bob, time.Now()))
	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "General", At: time.Now()})
	f.router.Dispatch(domain.JoinCommand{Conn: "c-bob", Room: "Movies", At: time.Now()})

	// When Alice posts to Movies while sitting in General
	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "Movies", Content: "movie night", At: time.Now().UTC()})

	// Then the Movies member receives it, the sender's own room does not
	req.Eventually(func() bool {
		return len(eventsOf[event.RoomMessage](bob)) == 1
	}, waitFor, tick)
	req.Equal("Movies", eventsOf[event.RoomMessage](bob)[0].Room)
	req.Empty(eventsOf[event.RoomMessage](alice))

	// And it is persisted under the frame's room
	stored, err := f.messages.GetMessages("Movies")
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("movie night", stored[0].Content)

	stored, err = f.messages.GetMessages("General")
	req.NoError(err)
	req.Empty(stored)
}

func Test_PostMessage_Unknown_Room_Dropped(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice := &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "General", At: time.Now()})

	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "Basement", Content: "anyone down here", At: time.Now()})

	// A follow-up to a valid room proves the refused one was consumed
	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "General", Content: "back upstairs", At: time.Now()})

	req.Eventually(func() bool {
		return len(eventsOf[event.RoomMessage](alice)) == 1
	}, waitFor, tick)
	req.Equal("back upstairs", eventsOf[event.RoomMessage](alice)[0].Content)

	stored, err := f.messages.GetMessages("Basement")
	req.NoError(err)
	req.Empty(stored)
}

func Test_Empty_Message_Is_Dropped(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice := &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "General", At: time.Now()})

	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "General", Content: "   \t  ", At: time.Now()})

	// A follow-up message proves the empty one was consumed and dropped
	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "General", Content: "real one", At: time.Now()})

	req.Eventually(func() bool {
		return len(eventsOf[event.RoomMessage](alice)) == 1
	}, waitFor, tick)
	req.Equal("real one", eventsOf[event.RoomMessage](alice)[0].Content)

	stored, err := f.messages.GetMessages("General")
	req.NoError(err)
	req.Len(stored, 1)
}

// failingMessageStore refuses every write, standing in for a broken disk.
type failingMessageStore struct{}

func (failingMessageStore) StoreMessage(repositories.DiskMessage) error {
	return apperrors.ErrStorageUnavailable
}

func (failingMessageStore) GetMessages(string) ([]repositories.DiskMessage, error) {
	return nil, nil
}

type noopIndex struct{}

func (noopIndex) IndexMessage(repositories.DiskMessage) error { return nil }

func (noopIndex) Search(context.Context, *search.Query) ([]repositories.DiskMessage, error) {
	return nil, nil
}

func Test_Storage_Fault_Drops_Message_Without_Broadcast(t *testing.T) {
	req := require.New(t)

	moderator, err := moderation.NewModerator([]string{"badword"}, '*')
	req.NoError(err)

	telemetry := make(chan event.Event, 16)
	registry := NewRegistry()
	router := NewRouter(slog.Default(), registry, failingMessageStore{}, noopIndex{},
		&moderator, domain.DefaultRooms(), 64, telemetry)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = router.Run(ctx) }()

	alice, bob := &recordingSink{}, &recordingSink{}
	req.NoError(router.Connect("c-alice", "Alice", alice, time.Now()))
	req.NoError(router.Connect("c-bob", "Bob", bob, time.Now()))
	join := func(conn domain.ConnectionID) {
		router.Dispatch(domain.JoinCommand{Conn: conn, Room: "General", At: time.Now()})
	}
	join("c-alice")
	join("c-bob")

	// When the store refuses the write
	router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "General", Content: "does not survive", At: time.Now()})

	// Then the fault is reported on the telemetry stream
	req.Eventually(func() bool {
		for {
			select {
			case e := <-telemetry:
				if e.Type == event.StorageFaultType {
					return true
				}
			default:
				return false
			}
		}
	}, waitFor, tick)

	// And nothing was broadcast: a lost write never becomes a message event
	req.Empty(eventsOf[event.RoomMessage](alice))
	req.Empty(eventsOf[event.RoomMessage](bob))

	// The connection survives the fault and can still be routed to
	router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "Movies", At: time.Now()})
	req.Eventually(func() bool {
		room, ok := registry.Room("c-alice")
		return ok && room == "Movies"
	}, waitFor, tick)
}

func Test_DirectMessage_Reaches_All_Target_Connections_Only(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice, bobPhone, bobLaptop, clara := &recordingSink{}, &recordingSink{}, &recordingSink{}, &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	req.NoError(f.router.Connect("c-bob-1", "Bob", bobPhone, time.Now()))
	req.NoError(f.router.Connect("c-bob-2", "Bob", bobLaptop, time.Now()))
	req.NoError(f.router.Connect("c-clara", "Clara", clara, time.Now()))

	f.router.Dispatch(domain.DirectMessageCommand{
		Conn: "c-alice", Target: "Bob", Content: "psst", At: time.Now()})

	// Every one of Bob's connections gets the whisper
	req.Eventually(func() bool {
		return len(eventsOf[event.PrivateMessage](bobPhone)) == 1 &&
			len(eventsOf[event.PrivateMessage](bobLaptop)) == 1
	}, waitFor, tick)

	pm := eventsOf[event.PrivateMessage](bobPhone)[0]
	req.Equal("Alice", pm.From)
	req.Equal("Bob", pm.To)
	req.Equal("psst", pm.Content)

	// Nobody else does, not even the sender
	req.Empty(eventsOf[event.PrivateMessage](alice))
	req.Empty(eventsOf[event.PrivateMessage](clara))

	// And it was never persisted
	for _, room := range domain.DefaultRooms() {
		stored, err := f.messages.GetMessages(room)
		req.NoError(err)
		req.Empty(stored)
	}
}

func Test_DirectMessage_Unknown_Target_Dropped(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice := &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))

	f.router.Dispatch(domain.DirectMessageCommand{
		Conn: "c-alice", Target: "Ghost", Content: "anyone there", At: time.Now()})

	// A later message proves the command was consumed without effect
	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "General", At: time.Now()})
	req.Eventually(func() bool {
		room, ok := f.registry.Room("c-alice")
		return ok && room == "General"
	}, waitFor, tick)

	req.Empty(eventsOf[event.PrivateMessage](alice))
}

func Test_Disconnect_Updates_Presence(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice, bob := &recordingSink{}, &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	req.NoError(f.router.Connect("c-bob", "Bob", bob, time.Now()))

	req.Eventually(func() bool {
		p, ok := lastPresence(alice)
		return ok && len(p.Users) == 2
	}, waitFor, tick)

	f.router.Disconnect("c-bob")

	req.Eventually(func() bool {
		p, ok := lastPresence(alice)
		return ok && len(p.Users) == 1 && p.Users[0] == "Alice"
	}, waitFor, tick)
	req.Equal(1, f.registry.Len())
}

func Test_Search_Answers_Requester_Only(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	alice, bob := &recordingSink{}, &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	req.NoError(f.router.Connect("c-bob", "Bob", bob, time.Now()))
	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "General", At: time.Now()})
	f.router.Dispatch(domain.JoinCommand{Conn: "c-bob", Room: "General", At: time.Now()})

	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "General", Content: "pizza night friday", At: time.Now().UTC()})
	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-bob", Room: "General", Content: "chess instead", At: time.Now().UTC()})

	req.Eventually(func() bool {
		return len(eventsOf[event.RoomMessage](bob)) == 2
	}, waitFor, tick)

	// When Bob searches the room history
	f.router.Dispatch(domain.SearchCommand{Conn: "c-bob", Room: "General", RawInput: "/find pizza"})

	req.Eventually(func() bool {
		return len(eventsOf[event.SearchResults](bob)) == 1
	}, waitFor, tick)

	results := eventsOf[event.SearchResults](bob)[0]
	req.Equal("General", results.Room)
	req.Len(results.Messages, 1)
	req.Equal("Alice", results.Messages[0].Username)

	// The answer never reaches anybody else
	req.Empty(eventsOf[event.SearchResults](alice))
}

func Test_Permanent_Sink_Sees_Room_Traffic(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	timeline := &recordingSink{}
	f.router.Add(timeline)

	alice := &recordingSink{}
	req.NoError(f.router.Connect("c-alice", "Alice", alice, time.Now()))
	f.router.Dispatch(domain.JoinCommand{Conn: "c-alice", Room: "General", At: time.Now()})
	f.router.Dispatch(domain.PostMessageCommand{
		Conn: "c-alice", Room: "General", Content: "hello", At: time.Now()})

	req.Eventually(func() bool {
		return len(eventsOf[event.RoomMessage](timeline)) == 1
	}, waitFor, tick)
}
