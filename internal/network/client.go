package network

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/events"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
	// Minimum spacing between overrides from one client.
	minOverrideInterval = 50 * time.Millisecond
	// Time allowed for validating one override.
	overrideTimeout = 2 * time.Second
)

// Outbound message types.
const (
	MsgTypeEvent = "event"
	MsgTypeAck   = "ack"
	MsgTypeError = "error"
)

// OverrideSink accepts overrides from remote clients.
type OverrideSink interface {
	Submit(ctx context.Context, o engine.Override) error
}

// Message is the envelope of everything the server writes to a websocket.
type Message struct {
	Type    string                `json:"type"`
	Ref     string                `json:"ref,omitempty"`
	Event   *events.BehaviorEvent `json:"event,omitempty"`
	Error   string                `json:"error,omitempty"`
	Message string                `json:"message,omitempty"`
}

// InboundOverride is an override sent by a client, with an optional correlation id.
type InboundOverride struct {
	ID string `json:"id,omitempty"`
	engine.Override
}

// ParseOverride decodes one inbound websocket frame.
func ParseOverride(data []byte) (InboundOverride, error) {
	var in InboundOverride
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("%w: malformed override: %v", domain.ErrInvalidArgument, err)
	}
	if in.Type == "" {
		return in, fmt.Errorf("%w: override type is required", domain.ErrInvalidArgument)
	}
	return in, nil
}

// Client is one websocket connection: telemetry out, overrides in.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte // owned by the hub
	replies      chan []byte // acknowledgements, never closed
	lastOverride time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		replies: make(chan []byte, 16),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
	}
}

// ReadPump reads override frames until the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.Error(err))
				c.hub.metrics.RecordWSError()
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)
		c.reply(c.handleOverride(message))
	}
}

// handleOverride validates and submits one frame and builds the acknowledgement.
func (c *Client) handleOverride(message []byte) Message {
	in, err := ParseOverride(message)
	if err != nil {
		return errorMessage("", err)
	}

	now := time.Now()
	if now.Sub(c.lastOverride) < minOverrideInterval {
		return Message{Type: MsgTypeError, Ref: in.ID, Error: CodeRateLimited, Message: "too many overrides"}
	}
	c.lastOverride = now

	if c.hub.sink == nil {
		return Message{Type: MsgTypeError, Ref: in.ID, Error: CodeUnavailable, Message: "overrides disabled"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), overrideTimeout)
	defer cancel()
	if err := c.hub.sink.Submit(ctx, in.Override); err != nil {
		return errorMessage(in.ID, err)
	}
	return Message{Type: MsgTypeAck, Ref: in.ID}
}

func errorMessage(ref string, err error) Message {
	return Message{Type: MsgTypeError, Ref: ref, Error: ErrorCode(err), Message: err.Error()}
}

func (c *Client) reply(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case c.replies <- data:
	default:
		c.hub.metrics.RecordWSError()
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case reply := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
