package contract

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound half of a connection: the router pushes events
// into it, the transport turns them into wire frames. Consume must not
// block; a full connection buffer is reported as an error and the event is
// dropped for that connection only.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks which live connections belong to which identity and
// room. All methods are safe for concurrent use; reads and writes are
// linearizable so presence snapshots never show a connection mid-transition.
type IRegistry interface {
	Register(conn domain.ConnectionID, identity string, sink EventSink, at time.Time) error
	Unregister(conn domain.ConnectionID)
	SetRoom(conn domain.ConnectionID, room string)
	ClearRoom(conn domain.ConnectionID)
	Identities() []string
	Identity(conn domain.ConnectionID) (string, bool)
	Room(conn domain.ConnectionID) (string, bool)
	Sink(conn domain.ConnectionID) (EventSink, bool)
	SinksForRoom(room string) []EventSink
	SinksForIdentity(identity string) []EventSink
	AllSinks() []EventSink
	Len() int
}

// IRouter is the surface the transport layer uses: synchronous lifecycle
// calls plus a fire-and-forget dispatch for chat commands.
type IRouter interface {
	Connect(conn domain.ConnectionID, identity string, sink EventSink, at time.Time) error
	Disconnect(conn domain.ConnectionID)
	Dispatch(cmd domain.Command)
}
