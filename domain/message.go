package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event. Messages are never mutated or
// deleted once stored; ordering is by timestamp ascending per room.
type Message struct {
	ID      uuid.UUID
	Room    string
	Author  string
	Content string
	Lang    string // detected language tag, informational only
	At      time.Time
}
