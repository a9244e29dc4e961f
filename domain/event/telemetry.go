package event

import (
	"sync"
	"time"
)

type Type string

const (
	MessageRoutedType       Type = "MESSAGE_ROUTED"
	PrivateRoutedType       Type = "PRIVATE_MESSAGE_ROUTED"
	HistoryReplayedType     Type = "HISTORY_REPLAYED"
	CommandDroppedType      Type = "COMMAND_DROPPED"
	StorageFaultType        Type = "STORAGE_FAULT"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
)

// Event is a technical telemetry sample, distinct from DomainEvent: it never
// reaches clients and may be dropped freely under load.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

// MessageRouted reports one routed room message for latency tracking.
type MessageRouted struct {
	Room       string
	Author     string
	ReceivedAt time.Time
	Recipients int
}

// PrivateRouted reports one delivered private message.
type PrivateRouted struct {
	From string
	To   string
}

// HistoryReplayed reports one history replay on a room join.
type HistoryReplayed struct {
	Room  string
	Count int
}

// CommandDropped reports a chat command lost to a full command queue.
type CommandDropped struct {
	Conn string
}

// StorageFault reports a message lost because the store refused the write.
type StorageFault struct {
	Room string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

// Counter tallies telemetry events per type.
type Counter struct {
	mu     sync.Mutex
	counts map[Type]uint64
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[Type]uint64)}
}

func (c *Counter) Increment(t Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[t]++
}

func (c *Counter) Get(t Type) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}
