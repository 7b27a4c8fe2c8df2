// Package bus bridges the robot to a NATS message bus: telemetry out, overrides in.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/platform/logger"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultPrefix roots every subject the bridge uses.
const DefaultPrefix = "petbot"

// Conn is the part of *nats.Conn the bridge needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// OverrideSink accepts overrides received from the bus.
type OverrideSink interface {
	Submit(ctx context.Context, o engine.Override) error
}

// Ack is the reply to a request on the commands subject.
type Ack struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Bridge publishes telemetry and listens for overrides.
type Bridge struct {
	conn   Conn
	prefix string
	sink   OverrideSink
	logger *logger.Logger
	subs   []*nats.Subscription
}

// Connect dials a NATS server with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("petbot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// NewBridge creates a bridge. An empty prefix uses DefaultPrefix.
func NewBridge(conn Conn, prefix string, sink OverrideSink, log *logger.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bridge{conn: conn, prefix: prefix, sink: sink, logger: log}
}

// TelemetrySubject is where events of type t are published.
func (b *Bridge) TelemetrySubject(t events.EventType) string {
	return b.prefix + ".telemetry." + strings.ToLower(string(t))
}

// CommandSubject is where overrides are received.
func (b *Bridge) CommandSubject() string {
	return b.prefix + ".commands"
}

// Publish implements events.EventPublisher.
func (b *Bridge) Publish(event events.BehaviorEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %d: %w", event.Seq, err)
	}
	if err := b.conn.Publish(b.TelemetrySubject(event.Type), data); err != nil {
		b.logger.Warn("telemetry publish failed", zap.String("type", string(event.Type)), zap.Error(err))
		return err
	}
	return nil
}

// Listen subscribes to the commands subject.
func (b *Bridge) Listen() error {
	sub, err := b.conn.Subscribe(b.CommandSubject(), b.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.CommandSubject(), err)
	}
	b.subs = append(b.subs, sub)
	b.logger.Info("listening for overrides", zap.String("subject", b.CommandSubject()))
	return nil
}

// Close drops the subscriptions.
func (b *Bridge) Close() {
	for _, sub := range b.subs {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	}
	b.subs = nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	ack := b.submit(msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := b.conn.Publish(msg.Reply, data); err != nil {
		b.logger.Warn("failed to reply to override", zap.Error(err))
	}
}

func (b *Bridge) submit(data []byte) Ack {
	var o engine.Override
	if err := json.Unmarshal(data, &o); err != nil {
		return Ack{Error: "invalid_argument", Message: "malformed override"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.sink.Submit(ctx, o); err != nil {
		b.logger.Debug("override from bus rejected", zap.String("type", string(o.Type)), zap.Error(err))
		return Ack{Error: errorCode(err), Message: err.Error()}
	}
	return Ack{OK: true}
}
