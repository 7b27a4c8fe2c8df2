// Package events provides the telemetry log of the robot's behavior core.
// Every state change, emotion change and reflex is recorded here and fanned out
// to the WebSocket hub and the message bus.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/google/uuid"
)

// EventType defines the category of a telemetry event.
type EventType string

const (
	EventTypeStateChanged      EventType = "STATE_CHANGED"
	EventTypeEmotionChanged    EventType = "EMOTION_CHANGED"
	EventTypeObstacleDetected  EventType = "OBSTACLE_DETECTED"
	EventTypeStartled          EventType = "STARTLED"
	EventTypeStuckDetected     EventType = "STUCK_DETECTED"
	EventTypeManeuverRestarted EventType = "MANEUVER_RESTARTED"
	EventTypeMicroBehavior     EventType = "MICRO_BEHAVIOR"
	EventTypeHandlerFailed     EventType = "HANDLER_FAILED"
	EventTypeOverrideApplied   EventType = "OVERRIDE_APPLIED"
	EventTypeOverrideRejected  EventType = "OVERRIDE_REJECTED"
	EventTypeCommand           EventType = "COMMAND"
)

// BehaviorEvent is an immutable telemetry record.
type BehaviorEvent struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	State     behavior.State  `json:"state"`
	Emotion   emotion.Emotion `json:"emotion"`
	Payload   interface{}     `json:"payload,omitempty"`
}

// EventPublisher forwards events outside the process.
type EventPublisher interface {
	Publish(event BehaviorEvent) error
}

// DefaultCapacity bounds the in-memory history.
const DefaultCapacity = 1024

// PublishBuffer bounds the events waiting for the publisher.
const PublishBuffer = 256

// EventLog is a bounded in-memory log with monotonically increasing sequence numbers.
// Events are handed to the publisher by a single worker, in sequence order.
type EventLog struct {
	mu        sync.RWMutex
	events    []BehaviorEvent
	capacity  int
	seq       uint64
	publisher EventPublisher
	closed    bool

	pubQueue chan BehaviorEvent
	pubOnce  sync.Once
	pubDone  chan struct{}
	dropped  atomic.Uint64
}

// NewEventLog creates a log holding at most capacity events, with an optional publisher.
func NewEventLog(capacity int, publisher EventPublisher) *EventLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	el := &EventLog{
		events:   make([]BehaviorEvent, 0, capacity),
		capacity: capacity,
		pubQueue: make(chan BehaviorEvent, PublishBuffer),
		pubDone:  make(chan struct{}),
	}
	if publisher != nil {
		el.SetPublisher(publisher)
	}
	return el
}

// SetPublisher attaches a publisher after construction and starts the publish worker.
func (el *EventLog) SetPublisher(p EventPublisher) {
	el.mu.Lock()
	el.publisher = p
	el.mu.Unlock()
	if p != nil {
		el.pubOnce.Do(func() { go el.publishLoop() })
	}
}

func (el *EventLog) publishLoop() {
	defer close(el.pubDone)
	for e := range el.pubQueue {
		el.mu.RLock()
		pub := el.publisher
		el.mu.RUnlock()
		if pub != nil {
			_ = pub.Publish(e)
		}
	}
}

// Append stamps the event with an ID and sequence number and stores it.
// The oldest event is evicted once the log is full. When the publish queue is
// full the event is kept in the log but not published.
func (el *EventLog) Append(event BehaviorEvent) BehaviorEvent {
	el.mu.Lock()
	defer el.mu.Unlock()

	el.seq++
	event.Seq = el.seq
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if len(el.events) == el.capacity {
		copy(el.events, el.events[1:])
		el.events = el.events[:len(el.events)-1]
	}
	el.events = append(el.events, event)

	if el.publisher != nil && !el.closed {
		select {
		case el.pubQueue <- event:
		default:
			el.dropped.Add(1)
		}
	}
	return event
}

// Dropped returns how many events were not published because the queue was full.
func (el *EventLog) Dropped() uint64 {
	return el.dropped.Load()
}

// Close stops publishing and waits for queued events to be handed to the publisher.
// The log itself stays readable and appendable.
func (el *EventLog) Close() {
	el.mu.Lock()
	if el.closed {
		el.mu.Unlock()
		return
	}
	el.closed = true
	close(el.pubQueue)
	el.mu.Unlock()

	// Without a worker there is nothing to drain.
	el.pubOnce.Do(func() { close(el.pubDone) })
	<-el.pubDone
}

// Since returns every retained event with a sequence number greater than seq.
func (el *EventLog) Since(seq uint64) []BehaviorEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []BehaviorEvent
	for _, e := range el.events {
		if e.Seq > seq {
			result = append(result, e)
		}
	}
	return result
}

// ByType returns the retained events of one type.
func (el *EventLog) ByType(t EventType) []BehaviorEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []BehaviorEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Recent returns up to n of the newest events, oldest first.
func (el *EventLog) Recent(n int) []BehaviorEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if n <= 0 || n > len(el.events) {
		n = len(el.events)
	}
	out := make([]BehaviorEvent, n)
	copy(out, el.events[len(el.events)-n:])
	return out
}

// Seq returns the last assigned sequence number.
func (el *EventLog) Seq() uint64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.seq
}
