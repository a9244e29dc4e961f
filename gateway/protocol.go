// Package gateway is the websocket edge of the hub. It decodes wire
// frames into commands, encodes routed events back into frames and owns
// the per-connection read and write pumps.
package gateway

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/domain/search"
	apperrors "chat-hub/errors"
	"encoding/json"
	"fmt"
	"time"
)

// inboundFrame is what clients send. The event field selects the action,
// the rest is per-action payload.
type inboundFrame struct {
	Event  string `json:"event"`
	Room   string `json:"room,omitempty"`
	Type   string `json:"type,omitempty"`
	Msg    string `json:"msg,omitempty"`
	Target string `json:"target,omitempty"`
}

// outboundFrame wraps every server push in a uniform envelope.
type outboundFrame struct {
	Event event.Kind `json:"event"`
	Data  any        `json:"data"`
}

type historyEntryPayload struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// DecodeFrame turns a raw client frame into a routable command. A message
// frame fans out three ways: private when targeted, search when the body
// starts with the /find verb, room broadcast otherwise.
func DecodeFrame(conn domain.ConnectionID, raw []byte, now time.Time) (domain.Command, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayload, err)
	}

	switch frame.Event {
	case "join":
		return domain.JoinCommand{Conn: conn, Room: frame.Room, At: now}, nil
	case "leave":
		return domain.LeaveCommand{Conn: conn, Room: frame.Room, At: now}, nil
	case "message":
		if frame.Type == "private" {
			return domain.DirectMessageCommand{Conn: conn, Target: frame.Target, Content: frame.Msg, At: now}, nil
		}
		if search.IsSearch(frame.Msg) {
			return domain.SearchCommand{Conn: conn, Room: frame.Room, RawInput: frame.Msg}, nil
		}
		return domain.PostMessageCommand{Conn: conn, Room: frame.Room, Content: frame.Msg, At: now}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", apperrors.ErrInvalidPayload, frame.Event)
	}
}

// EncodeEvent serializes a routed event into its wire frame. Timestamps
// travel as ISO-8601 strings.
func EncodeEvent(e event.DomainEvent) ([]byte, error) {
	frame := outboundFrame{Event: e.Kind()}

	switch evt := e.(type) {
	case event.ActiveUsers:
		frame.Data = map[string]any{"users": emptyIfNil(evt.Users)}
	case event.ChatHistory:
		frame.Data = map[string]any{
			"room":     evt.Room,
			"messages": toHistoryPayload(evt.Messages),
		}
	case event.Status:
		frame.Data = map[string]any{
			"room":      evt.Room,
			"msg":       evt.Msg,
			"type":      evt.Type,
			"timestamp": evt.At.Format(time.RFC3339),
		}
	case event.RoomMessage:
		frame.Data = map[string]any{
			"msg":       evt.Content,
			"username":  evt.Author,
			"room":      evt.Room,
			"timestamp": evt.At.Format(time.RFC3339),
		}
	case event.PrivateMessage:
		frame.Data = map[string]any{
			"msg":       evt.Content,
			"from":      evt.From,
			"to":        evt.To,
			"timestamp": evt.At.Format(time.RFC3339),
		}
	case event.SearchResults:
		frame.Data = map[string]any{
			"room":     evt.Room,
			"query":    evt.Query,
			"messages": toHistoryPayload(evt.Messages),
		}
	default:
		return nil, fmt.Errorf("%w: unencodable event %T", apperrors.ErrInvalidPayload, e)
	}

	return json.Marshal(frame)
}

func toHistoryPayload(entries []event.HistoryEntry) []historyEntryPayload {
	out := make([]historyEntryPayload, 0, len(entries))
	for _, entry := range entries {
		out = append(out, historyEntryPayload{
			Username:  entry.Username,
			Message:   entry.Message,
			Timestamp: entry.Timestamp.Format(time.RFC3339),
		})
	}
	return out
}

func emptyIfNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
