package events

import (
	"sync"
	"testing"
	"time"

	"github.com/dewwy/petbot/internal/domain/behavior"
)

func TestEventLog_SequenceAndSince(t *testing.T) {
	el := NewEventLog(10, nil)
	for i := 0; i < 5; i++ {
		el.Append(BehaviorEvent{Type: EventTypeStateChanged, State: behavior.Roaming})
	}

	if el.Seq() != 5 {
		t.Errorf("expected seq 5, got %d", el.Seq())
	}
	got := el.Since(3)
	if len(got) != 2 || got[0].Seq != 4 || got[1].Seq != 5 {
		t.Errorf("expected events 4 and 5, got %+v", got)
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Error("expected id and timestamp to be stamped")
	}
}

func TestEventLog_EvictsOldest(t *testing.T) {
	el := NewEventLog(3, nil)
	for i := 0; i < 5; i++ {
		el.Append(BehaviorEvent{Type: EventTypeMicroBehavior})
	}

	all := el.Recent(0)
	if len(all) != 3 || all[0].Seq != 3 || all[2].Seq != 5 {
		t.Errorf("expected seqs 3..5, got %+v", all)
	}
}

func TestEventLog_ByType(t *testing.T) {
	el := NewEventLog(0, nil)
	el.Append(BehaviorEvent{Type: EventTypeStartled})
	el.Append(BehaviorEvent{Type: EventTypeStateChanged})
	el.Append(BehaviorEvent{Type: EventTypeStartled})

	if n := len(el.ByType(EventTypeStartled)); n != 2 {
		t.Errorf("expected 2 startle events, got %d", n)
	}
}

type chanPublisher struct {
	mu  sync.Mutex
	got []BehaviorEvent
	ch  chan struct{}
}

func (p *chanPublisher) Publish(e BehaviorEvent) error {
	p.mu.Lock()
	p.got = append(p.got, e)
	p.mu.Unlock()
	p.ch <- struct{}{}
	return nil
}

func TestEventLog_Publishes(t *testing.T) {
	pub := &chanPublisher{ch: make(chan struct{}, 1)}
	el := NewEventLog(0, pub)
	el.Append(BehaviorEvent{Type: EventTypeStuckDetected})

	select {
	case <-pub.ch:
	case <-time.After(time.Second):
		t.Fatal("publisher was not called")
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.got[0].Type != EventTypeStuckDetected || pub.got[0].Seq != 1 {
		t.Errorf("unexpected published event %+v", pub.got[0])
	}
}

type slowPublisher struct {
	mu   sync.Mutex
	seqs []uint64
}

func (p *slowPublisher) Publish(e BehaviorEvent) error {
	time.Sleep(100 * time.Microsecond)
	p.mu.Lock()
	p.seqs = append(p.seqs, e.Seq)
	p.mu.Unlock()
	return nil
}

func TestEventLog_PublishesInSequenceOrder(t *testing.T) {
	pub := &slowPublisher{}
	el := NewEventLog(0, pub)
	for i := 0; i < 50; i++ {
		el.Append(BehaviorEvent{Type: EventTypeMicroBehavior})
	}
	el.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.seqs) != 50 {
		t.Fatalf("expected 50 published events, got %d", len(pub.seqs))
	}
	for i, seq := range pub.seqs {
		if seq != uint64(i+1) {
			t.Fatalf("expected seq %d at position %d, got %d", i+1, i, seq)
		}
	}
}

type gatedPublisher struct {
	gate chan struct{}
}

func (p *gatedPublisher) Publish(BehaviorEvent) error {
	<-p.gate
	return nil
}

func TestEventLog_FullPublishQueueDrops(t *testing.T) {
	pub := &gatedPublisher{gate: make(chan struct{})}
	el := NewEventLog(0, pub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < PublishBuffer+10; i++ {
			el.Append(BehaviorEvent{Type: EventTypeMicroBehavior})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("append blocked on a stalled publisher")
	}

	if el.Dropped() == 0 {
		t.Error("expected dropped events with a stalled publisher")
	}
	if el.Seq() != PublishBuffer+10 {
		t.Errorf("expected every event to be logged, got seq %d", el.Seq())
	}
	close(pub.gate)
	el.Close()
}

func TestEventLog_CloseWithoutPublisher(t *testing.T) {
	el := NewEventLog(0, nil)
	el.Append(BehaviorEvent{Type: EventTypeStartled})
	el.Close()
	el.Close()
	el.Append(BehaviorEvent{Type: EventTypeStartled})
	if el.Seq() != 2 {
		t.Errorf("expected the log to stay appendable, got seq %d", el.Seq())
	}
}
