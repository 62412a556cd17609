package eventbus

import (
	"testing"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

func TestSubscribe_ReceivesPublishedEvent(t *testing.T) {
	b := New(Options{})
	defer b.Stop()

	sub := b.Subscribe(Filter{})
	defer sub.Close()

	b.Publish(domain.SystemEvent{Type: domain.EventModelState, Message: "hi", Severity: domain.SeverityInfo})

	select {
	case e := <-sub.Events:
		if e.Message != "hi" {
			t.Fatalf("unexpected message: %s", e.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestSubscribe_ReplaysHistory(t *testing.T) {
	b := New(Options{HistorySize: 10})
	defer b.Stop()

	b.Publish(domain.SystemEvent{Type: domain.EventLog, Message: "before subscribe", Severity: domain.SeverityInfo})
	time.Sleep(50 * time.Millisecond) // let broadcast goroutine ingest into history

	sub := b.Subscribe(Filter{})
	defer sub.Close()

	select {
	case e := <-sub.Events:
		if e.Message != "before subscribe" {
			t.Fatalf("expected replayed history event, got %q", e.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for replayed history")
	}
}

func TestSubscribe_ZeroHistorySizeReplaysNothing(t *testing.T) {
	b := New(Options{HistorySize: 0})
	defer b.Stop()

	b.Publish(domain.SystemEvent{Type: domain.EventLog, Message: "before subscribe", Severity: domain.SeverityInfo})
	time.Sleep(50 * time.Millisecond)

	sub := b.Subscribe(Filter{})
	defer sub.Close()

	select {
	case e := <-sub.Events:
		t.Fatalf("expected no replayed history, got %+v", e)
	case <-time.After(200 * time.Millisecond):
	}

	b.Publish(domain.SystemEvent{Type: domain.EventLog, Message: "live event", Severity: domain.SeverityInfo})
	select {
	case e := <-sub.Events:
		if e.Message != "live event" {
			t.Fatalf("unexpected message: %s", e.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for live event")
	}
}

func TestSubscribe_FiltersByMinSeverity(t *testing.T) {
	b := New(Options{})
	defer b.Stop()

	sub := b.Subscribe(Filter{MinSeverity: domain.SeverityError})
	defer sub.Close()

	b.Publish(domain.SystemEvent{Type: domain.EventLog, Message: "info-level", Severity: domain.SeverityInfo})
	b.Publish(domain.SystemEvent{Type: domain.EventError, Message: "error-level", Severity: domain.SeverityError})

	select {
	case e := <-sub.Events:
		if e.Message != "error-level" {
			t.Fatalf("expected only error-level event, got %q", e.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for filtered event")
	}

	select {
	case e := <-sub.Events:
		t.Fatalf("unexpected second event delivered: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribe_FiltersByEventType(t *testing.T) {
	b := New(Options{})
	defer b.Stop()

	sub := b.Subscribe(Filter{EventTypes: []domain.EventType{domain.EventCache}})
	defer sub.Close()

	b.Publish(domain.SystemEvent{Type: domain.EventLog, Message: "not cache", Severity: domain.SeverityInfo})
	b.Publish(domain.SystemEvent{Type: domain.EventCache, Message: "cache event", Severity: domain.SeverityInfo})

	select {
	case e := <-sub.Events:
		if e.Type != domain.EventCache {
			t.Fatalf("expected only cache events, got %s", e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	b := New(Options{})
	b.Stop()
	b.Stop() // must not panic or block
}

func TestClose_Unsubscribes(t *testing.T) {
	b := New(Options{})
	defer b.Stop()

	sub := b.Subscribe(Filter{})
	sub.Close()

	b.mu.Lock()
	n := len(b.subscribers)
	b.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", n)
	}
}
