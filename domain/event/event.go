// Package event defines the outbound events produced by the router and the
// telemetry events observed by the monitoring workers.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the wire name of an outbound event as seen by clients.
type Kind string

const (
	KindActiveUsers    Kind = "active_users"
	KindChatHistory    Kind = "chat_history"
	KindStatus         Kind = "status"
	KindMessage        Kind = "message"
	KindPrivateMessage Kind = "private_message"
	KindSearchResults  Kind = "search_results"
)

// DomainEvent is anything the router can deliver to a connection sink.
type DomainEvent interface {
	Kind() Kind
}

// ActiveUsers is the presence list, broadcast to every connection whenever
// a connection opens or closes.
type ActiveUsers struct {
	Users []string
}

func (ActiveUsers) Kind() Kind { return KindActiveUsers }

// HistoryEntry is one replayed message inside ChatHistory or SearchResults.
type HistoryEntry struct {
	Username  string
	Message   string
	Timestamp time.Time
}

// ChatHistory replays a room's stored messages to the joining connection
// only. It is never broadcast.
type ChatHistory struct {
	Room     string
	Messages []HistoryEntry
}

func (ChatHistory) Kind() Kind { return KindChatHistory }

// Status announces a join or leave to the members of a room.
type Status struct {
	Room string
	Msg  string
	Type string // "join" or "leave"
	At   time.Time
}

func (Status) Kind() Kind { return KindStatus }

// RoomMessage is a broadcast chat message, delivered to every connection
// whose current room matches at dispatch time.
type RoomMessage struct {
	ID      uuid.UUID
	Room    string
	Author  string
	Content string
	At      time.Time
}

func (RoomMessage) Kind() Kind { return KindMessage }

// PrivateMessage is delivered to every connection of the target identity
// and to nobody else.
type PrivateMessage struct {
	From    string
	To      string
	Content string
	At      time.Time
}

func (PrivateMessage) Kind() Kind { return KindPrivateMessage }

// SearchResults answers a /find query, sent to the requesting connection only.
type SearchResults struct {
	Room     string
	Query    string
	Messages []HistoryEntry
}

func (SearchResults) Kind() Kind { return KindSearchResults }
