package eventbus

import (
	"sync"
	"testing"
	"time"
)

func drainN(t *testing.T, n int, subscribe func(Handler) Handle) []Event {
	t.Helper()
	var mu sync.Mutex
	got := make([]Event, 0, n)
	done := make(chan struct{})
	subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e)
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %d events, got %d", n, len(got))
	}
	mu.Lock()
	defer mu.Unlock()
	return append([]Event(nil), got...)
}

func TestPublishSubscribeOrdering(t *testing.T) {
	bus := New(nil)
	var handle Handle
	events := drainN(t, 5, func(h Handler) Handle {
		var err error
		handle, err = bus.Subscribe(Filter{}, h)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		for i := 0; i < 5; i++ {
			bus.Publish(Event{Type: EventCustom, Data: map[string]any{"i": i}})
		}
		return handle
	})

	for i, e := range events {
		if e.Data["i"] != i {
			t.Fatalf("event %d out of order: got %v", i, e.Data["i"])
		}
	}
}

func TestFilterByEventType(t *testing.T) {
	bus := New(nil)
	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})
	_, err := bus.Subscribe(Filter{EventTypes: []EventType{EventNodeStalled}}, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		close(done)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus.Publish(Event{Type: EventCustom})
	bus.Publish(Event{Type: EventNodeStalled})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("never received matching event")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Type != EventNodeStalled {
		t.Fatalf("expected exactly one node_stalled event, got %+v", got)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := New(nil)
	handle, err := bus.Subscribe(Filter{}, func(Event) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Unsubscribe(handle); err != nil {
		t.Fatalf("first unsubscribe: %v", err)
	}
	if err := bus.Unsubscribe(handle); err != nil {
		t.Fatalf("second unsubscribe should be a no-op, got: %v", err)
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	bus := New(nil)
	release := make(chan struct{})
	var mu sync.Mutex
	var got []Event
	_, err := bus.SubscribeWithCapacity(Filter{}, func(e Event) {
		<-release
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}, 1000)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 1001; i++ {
		bus.Publish(Event{Type: EventCustom, Data: map[string]any{"i": i}})
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1000 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1000 delivered events, got %d", n)
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Data["i"] != 1 {
		t.Fatalf("expected oldest (i=0) to have been dropped, first delivered i=%v", got[0].Data["i"])
	}
}

func TestChildStampsScope(t *testing.T) {
	bus := New(nil)
	child := bus.Child(Scope{GraphID: "g1", StreamID: "s1"})

	done := make(chan Event, 1)
	_, err := bus.Subscribe(Filter{}, func(e Event) { done <- e })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	child.Publish(Event{Type: EventCustom})

	select {
	case e := <-done:
		if e.GraphID != "g1" || e.StreamID != "s1" {
			t.Fatalf("expected stamped scope, got graph=%q stream=%q", e.GraphID, e.StreamID)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	bus := New(nil)
	done := make(chan struct{})
	_, err := bus.Subscribe(Filter{}, func(Event) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, err = bus.Subscribe(Filter{}, func(Event) { close(done) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus.Publish(Event{Type: EventCustom})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second subscription never received event after first panicked")
	}
}
