package runtime

import (
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/domain/search"
	apperrors "chat-hub/errors"
	"chat-hub/moderation"
	"chat-hub/repositories"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Router is the single consumer of the command queue. One goroutine
// handles every command in arrival order, which is what keeps a
// connection's join, message and leave effects sequenced the way the
// client sent them. It runs as a supervised worker so a panic on one
// command restarts the loop without tearing the process down.
type Router struct {
	log            *slog.Logger
	registry       contract.IRegistry
	messages       repositories.IMessageRepository
	index          repositories.ISearchRepository
	moderator      *moderation.Moderator
	rooms          domain.RoomList
	commands       chan domain.Command
	telemetry      chan<- event.Event
	permanentSinks []contract.EventSink
}

func NewRouter(log *slog.Logger, registry contract.IRegistry,
	messages repositories.IMessageRepository, index repositories.ISearchRepository,
	moderator *moderation.Moderator, rooms domain.RoomList,
	bufferSize int, telemetry chan<- event.Event) *Router {
	return &Router{
		log:       log,
		registry:  registry,
		messages:  messages,
		index:     index,
		moderator: moderator,
		rooms:     rooms,
		commands:  make(chan domain.Command, bufferSize),
		telemetry: telemetry,
	}
}

// Add registers permanent sinks that receive every routed event alongside
// the live connections. Must be called before Run.
func (r *Router) Add(sinks ...contract.EventSink) {
	r.permanentSinks = append(r.permanentSinks, sinks...)
}

// QueueStats exposes the command channel fill level for capacity monitoring.
func (r *Router) QueueStats() (length, capacity int) {
	return len(r.commands), cap(r.commands)
}

// Connect registers the connection then queues the presence announcement.
// The registry update is synchronous so the connection is routable before
// Connect returns; the announcement goes through the command queue so it
// stays ordered with everything else. The enqueue blocks on purpose, a
// lifecycle command must never be dropped.
func (r *Router) Connect(conn domain.ConnectionID, identity string, sink contract.EventSink, at time.Time) error {
	if err := r.registry.Register(conn, identity, sink, at); err != nil {
		return err
	}
	r.commands <- domain.ConnectCommand{Conn: conn, Identity: identity}
	return nil
}

// Disconnect removes the connection then queues the presence announcement.
// Safe to call for a connection that was never registered.
func (r *Router) Disconnect(conn domain.ConnectionID) {
	identity, ok := r.registry.Identity(conn)
	if !ok {
		return
	}
	r.registry.Unregister(conn)
	r.commands <- domain.DisconnectCommand{Conn: conn, Identity: identity}
}

// Dispatch queues a chat command without blocking. When the queue is full
// the command is dropped and logged; a slow consumer must not stall the
// transport goroutines.
func (r *Router) Dispatch(cmd domain.Command) {
	select {
	case r.commands <- cmd:
	default:
		r.log.Warn(fmt.Sprintf("Command queue full, dropping command from connection %s", cmd.ConnID()),
			slog.String("error", apperrors.ErrSinkFull.Error()))
		r.emitTelemetry(event.Event{
			Type:      event.CommandDroppedType,
			CreatedAt: time.Now(),
			Payload:   event.CommandDropped{Conn: string(cmd.ConnID())},
		})
	}
}

func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-r.commands:
			r.handle(ctx, cmd)
		}
	}
}

func (r *Router) handle(ctx context.Context, cmd domain.Command) {
	// A panic while handling one command must not take the loop down with
	// the commands of every other connection still queued behind it.
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(fmt.Sprintf("Recovered while handling %T: %v", cmd, rec))
		}
	}()

	switch c := cmd.(type) {
	case domain.ConnectCommand:
		r.log.Debug(fmt.Sprintf("%s connected on %s", c.Identity, c.Conn))
		r.announcePresence(ctx)
	case domain.DisconnectCommand:
		r.log.Debug(fmt.Sprintf("%s disconnected from %s", c.Identity, c.Conn))
		r.announcePresence(ctx)
	case domain.JoinCommand:
		r.handleJoin(ctx, c)
	case domain.LeaveCommand:
		r.handleLeave(ctx, c)
	case domain.PostMessageCommand:
		r.handlePost(ctx, c)
	case domain.DirectMessageCommand:
		r.handleDirect(ctx, c)
	case domain.SearchCommand:
		r.handleSearch(ctx, c)
	default:
		r.log.Warn(fmt.Sprintf("Unknown command type %T", cmd))
	}
}

// announcePresence pushes the deduplicated identity list to every live
// connection. Sorted so two clients always render the same list.
func (r *Router) announcePresence(ctx context.Context) {
	users := r.registry.Identities()
	sort.Strings(users)
	r.deliver(ctx, event.ActiveUsers{Users: users}, r.withPermanent(r.registry.AllSinks())...)
}

// handleJoin moves the connection into the room, replays the stored
// history to the joiner only, then announces the join to the whole room.
// History strictly precedes the join status so the joiner never sees its
// own announcement woven into replayed messages.
func (r *Router) handleJoin(ctx context.Context, cmd domain.JoinCommand) {
	identity, ok := r.registry.Identity(cmd.Conn)
	if !ok {
		return
	}
	if !r.rooms.Contains(cmd.Room) {
		r.log.Warn(fmt.Sprintf("Join refused for room %q", cmd.Room),
			slog.String("error", apperrors.ErrInvalidRoom.Error()))
		return
	}

	r.registry.SetRoom(cmd.Conn, cmd.Room)

	if sink, ok := r.registry.Sink(cmd.Conn); ok {
		history, err := r.messages.GetMessages(cmd.Room)
		if err != nil {
			r.log.Error(fmt.Sprintf("Failed to load history for room %s", cmd.Room),
				slog.String("error", err.Error()))
		}
		r.deliver(ctx, event.ChatHistory{Room: cmd.Room, Messages: toHistoryEntries(history)}, sink)
		r.emitTelemetry(event.Event{
			Type:      event.HistoryReplayedType,
			CreatedAt: time.Now(),
			Payload:   event.HistoryReplayed{Room: cmd.Room, Count: len(history)},
		})
	}

	status := event.Status{
		Room: cmd.Room,
		Msg:  fmt.Sprintf("%s has joined the room.", identity),
		Type: "join",
		At:   cmd.At,
	}
	r.deliver(ctx, status, r.withPermanent(r.registry.SinksForRoom(cmd.Room))...)
}

func (r *Router) handleLeave(ctx context.Context, cmd domain.LeaveCommand) {
	identity, ok := r.registry.Identity(cmd.Conn)
	if !ok {
		return
	}
	room, ok := r.registry.Room(cmd.Conn)
	if !ok || room != cmd.Room {
		return
	}

	r.registry.ClearRoom(cmd.Conn)

	status := event.Status{
		Room: cmd.Room,
		Msg:  fmt.Sprintf("%s has left the room.", identity),
		Type: "leave",
		At:   cmd.At,
	}
	r.deliver(ctx, status, r.withPermanent(r.registry.SinksForRoom(cmd.Room))...)
}

// handlePost validates, censors, persists, indexes and broadcasts one
// room message. The frame's room decides where the message goes,
// validated against the allow-list; whoever is joined there at dispatch
// time receives it. A storage fault drops the message entirely: nothing
// is broadcast that is not on disk first.
func (r *Router) handlePost(ctx context.Context, cmd domain.PostMessageCommand) {
	identity, ok := r.registry.Identity(cmd.Conn)
	if !ok {
		return
	}
	room := cmd.Room
	if !r.rooms.Contains(room) {
		r.log.Warn(fmt.Sprintf("Message from %s to room %q dropped", identity, room),
			slog.String("error", apperrors.ErrInvalidRoom.Error()))
		return
	}

	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		r.log.Warn(fmt.Sprintf("Empty message from %s dropped", identity),
			slog.String("error", apperrors.ErrEmptyMessage.Error()))
		return
	}

	censored, masked := r.moderator.Censor(content)
	if masked {
		r.log.Debug(fmt.Sprintf("Censored message from %s in room %s", identity, room))
	}

	msg := domain.Message{
		ID:      uuid.New(),
		Room:    room,
		Author:  identity,
		Content: censored,
		At:      cmd.At,
	}

	dm := repositories.NewDiskMessage(msg)
	if err := r.messages.StoreMessage(dm); err != nil {
		r.log.Error(fmt.Sprintf("Message from %s lost, storage unavailable", identity),
			slog.String("error", err.Error()))
		r.emitTelemetry(event.Event{
			Type:      event.StorageFaultType,
			CreatedAt: time.Now(),
			Payload:   event.StorageFault{Room: room},
		})
		return
	}
	if err := r.index.IndexMessage(dm); err != nil {
		// Indexing is best effort, the message is already durable
		r.log.Warn(fmt.Sprintf("Failed to index message %s", msg.ID),
			slog.String("error", err.Error()))
	}

	out := event.RoomMessage{ID: msg.ID, Room: room, Author: identity, Content: censored, At: cmd.At}
	recipients := r.deliver(ctx, out, r.withPermanent(r.registry.SinksForRoom(room))...)

	r.emitTelemetry(event.Event{
		Type:      event.MessageRoutedType,
		CreatedAt: time.Now(),
		Payload:   event.MessageRouted{Room: room, Author: identity, ReceivedAt: cmd.At, Recipients: recipients},
	})
}

// handleDirect delivers a private message to every connection of the
// target identity. Nothing is persisted and no other connection sees it.
func (r *Router) handleDirect(ctx context.Context, cmd domain.DirectMessageCommand) {
	from, ok := r.registry.Identity(cmd.Conn)
	if !ok {
		return
	}

	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return
	}

	sinks := r.registry.SinksForIdentity(cmd.Target)
	if len(sinks) == 0 {
		r.log.Warn(fmt.Sprintf("Private message from %s to unknown user %s dropped", from, cmd.Target),
			slog.String("error", apperrors.ErrUnknownTarget.Error()))
		return
	}

	r.deliver(ctx, event.PrivateMessage{From: from, To: cmd.Target, Content: content, At: cmd.At}, sinks...)
	r.emitTelemetry(event.Event{
		Type:      event.PrivateRoutedType,
		CreatedAt: time.Now(),
		Payload:   event.PrivateRouted{From: from, To: cmd.Target},
	})
}

// handleSearch answers a /find query to the requesting connection only.
func (r *Router) handleSearch(ctx context.Context, cmd domain.SearchCommand) {
	sink, ok := r.registry.Sink(cmd.Conn)
	if !ok {
		return
	}

	query := search.Parse(cmd.RawInput)
	if query.Room == "" {
		query.Room = cmd.Room
	}
	if query.Room == "" {
		if room, ok := r.registry.Room(cmd.Conn); ok {
			query.Room = room
		}
	}

	results, err := r.index.Search(ctx, query)
	if err != nil {
		r.log.Warn(fmt.Sprintf("Search failed for query %q", query.Terms),
			slog.String("error", err.Error()))
		return
	}

	out := event.SearchResults{
		Room:     query.Room,
		Query:    query.Terms,
		Messages: toHistoryEntries(results),
	}
	r.deliver(ctx, out, sink)
}

// deliver pushes one event to each sink, skipping the ones that refuse it.
// A full connection buffer only costs that connection the event.
func (r *Router) deliver(ctx context.Context, e event.DomainEvent, sinks ...contract.EventSink) int {
	delivered := 0
	for _, sink := range sinks {
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Warn(fmt.Sprintf("Sink refused event %s", e.Kind()),
				slog.String("error", err.Error()))
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Router) withPermanent(sinks []contract.EventSink) []contract.EventSink {
	return append(sinks, r.permanentSinks...)
}

func (r *Router) emitTelemetry(e event.Event) {
	select {
	case r.telemetry <- e:
	default:
	}
}

func toHistoryEntries(messages []repositories.DiskMessage) []event.HistoryEntry {
	return lo.Map(messages, func(item repositories.DiskMessage, _ int) event.HistoryEntry {
		return event.HistoryEntry{
			Username:  item.Author,
			Message:   item.Content,
			Timestamp: item.At,
		}
	})
}
