package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/platform/logger"
	"github.com/dewwy/petbot/internal/platform/metrics"
	"go.uber.org/zap"
)

// Hub maintains the set of active telemetry clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	sink       OverrideSink
	metrics    *metrics.Collector
	logger     *logger.Logger
}

// NewHub initializes a new WebSocket Hub. sink receives inbound overrides; metrics may be nil.
func NewHub(sink OverrideSink, m *metrics.Collector, log *logger.Logger) *Hub {
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		sink:       sink,
		metrics:    m,
		logger:     log,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("telemetry client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("telemetry client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage(false)
				default:
					// Slow consumer: drop it rather than stall everyone.
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastEvent serializes a telemetry event and sends it to all connected clients.
func (h *Hub) BroadcastEvent(event events.BehaviorEvent) {
	payload, err := json.Marshal(Message{Type: MsgTypeEvent, Event: &event})
	if err != nil {
		h.logger.Error("failed to serialize telemetry event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.RecordWSError()
		h.logger.Warn("broadcast queue full, dropping event", zap.Uint64("seq", event.Seq))
	}
}

// StartEventPoller spawns a goroutine that polls the event log and pushes new events to
// the Hub, so the control loop never blocks on websocket clients.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	go func() {
		poll := time.NewTicker(interval)
		defer poll.Stop()

		last := eventLog.Seq()
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				for _, event := range eventLog.Since(last) {
					h.BroadcastEvent(event)
					last = event.Seq
				}
			}
		}
	}()
}
