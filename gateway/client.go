package gateway

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	apperrors "chat-hub/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// Client is one websocket connection. Its Consume side is the EventSink
// the router pushes into; the pumps move frames between the send queue
// and the socket.
type Client struct {
	id     domain.ConnectionID
	conn   *websocket.Conn
	send   chan []byte
	log    *slog.Logger
	onStop func()
}

func NewClient(id domain.ConnectionID, conn *websocket.Conn, log *slog.Logger, onStop func()) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		log:    log,
		onStop: onStop,
	}
}

func (c *Client) ID() domain.ConnectionID { return c.id }

// Consume encodes the event and queues it without blocking. A full queue
// means this client is too slow, the event is dropped for it alone.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	frame, err := EncodeEvent(e)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("%w: connection %s", apperrors.ErrSinkFull, c.id)
	}
}

// ReadPump consumes client frames until the socket dies, handing each
// decoded command to dispatch. It owns the disconnect path: whatever
// kills the read loop triggers onStop exactly once.
func (c *Client) ReadPump(dispatch func(domain.Command)) {
	defer func() {
		c.onStop()
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn(fmt.Sprintf("Unexpected close on connection %s", c.id),
					slog.String("error", err.Error()))
			}
			return
		}

		cmd, err := DecodeFrame(c.id, raw, time.Now().UTC())
		if err != nil {
			c.log.Warn(fmt.Sprintf("Invalid frame on connection %s", c.id),
				slog.String("error", err.Error()))
			continue
		}
		dispatch(cmd)
	}
}

// WritePump drains the send queue onto the socket and keeps the
// connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
