package domain

import "time"

// Command is an inbound chat event bound to the connection that produced it.
type Command interface {
	ConnID() ConnectionID
}

// ConnectCommand asks the router to announce the updated presence list
// after a connection has been registered. The registry already holds the
// connection timestamp, the command only carries what the log line needs.
type ConnectCommand struct {
	Conn     ConnectionID
	Identity string
}

func (c ConnectCommand) ConnID() ConnectionID { return c.Conn }

// DisconnectCommand announces the updated presence list after a connection
// has been removed.
type DisconnectCommand struct {
	Conn     ConnectionID
	Identity string
}

func (c DisconnectCommand) ConnID() ConnectionID { return c.Conn }

type JoinCommand struct {
	Conn ConnectionID
	Room string
	At   time.Time
}

func (c JoinCommand) ConnID() ConnectionID { return c.Conn }

type LeaveCommand struct {
	Conn ConnectionID
	Room string
	At   time.Time
}

func (c LeaveCommand) ConnID() ConnectionID { return c.Conn }

// PostMessageCommand carries a room broadcast message.
type PostMessageCommand struct {
	Conn    ConnectionID
	Room    string
	Content string
	At      time.Time
}

func (c PostMessageCommand) ConnID() ConnectionID { return c.Conn }

// DirectMessageCommand carries a message targeted at a single identity.
// Direct messages are ephemeral and never persisted.
type DirectMessageCommand struct {
	Conn    ConnectionID
	Target  string
	Content string
	At      time.Time
}

func (c DirectMessageCommand) ConnID() ConnectionID { return c.Conn }

// SearchCommand carries a /find query over the room history index.
type SearchCommand struct {
	Conn     ConnectionID
	Room     string
	RawInput string
}

func (c SearchCommand) ConnID() ConnectionID { return c.Conn }
