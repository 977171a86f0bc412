package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "run-1"
	ch := b.Subscribe(rid)

	evt := SSEEvent{Type: "run.progress", Data: map[string]any{"generation": 3}}
	b.Publish(rid, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
		if got.Data["generation"].(int) != 3 { t.Fatalf("bad payload: %+v", got.Data) }
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	select {
	case _, ok := <-ch:
		if ok { t.Fatal("channel should be closed after unsubscribe") }
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerPublishIsolatedPerRun(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("run-1")
	ch2 := b.Subscribe("run-2")
	defer b.Unsubscribe("run-1", ch1)
	defer b.Unsubscribe("run-2", ch2)

	b.Publish("run-1", SSEEvent{Type: "run.started"})
	select {
	case <-ch2:
		t.Fatal("event leaked to other run")
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case got := <-ch1:
		if got.Type != "run.started" { t.Fatalf("got %s", got.Type) }
	case <-time.After(200 * time.Millisecond):
		t.Fatal("subscriber missed event")
	}
}

func TestBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("run-1")
	defer b.Unsubscribe("run-1", ch)
	// Fill past the channel buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("run-1", SSEEvent{Type: "run.progress"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
