package eventbus

import (
	"sync"
	"testing"
	"time"

	"thoth/internal/logging"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPublishReachesWildcardSubscriber(t *testing.T) {
	bus := New(Config{}, logging.Nop())
	defer bus.Close()

	var mu sync.Mutex
	seen := make(map[string]bool)
	bus.Subscribe("*", func(ev Event) {
		mu.Lock()
		seen[ev.Type] = true
		mu.Unlock()
	})

	bus.Publish("task.started", map[string]any{"task_id": "t1"}, "orchestrator")
	bus.Publish("task.completed", map[string]any{"task_id": "t1"}, "orchestrator")
	bus.Publish("safety.checkpoint", nil, "safety")

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})
}

func TestPrefixPatternFiltering(t *testing.T) {
	bus := New(Config{}, logging.Nop())
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	bus.Subscribe("task.*", func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})

	bus.Publish("task.started", nil, "orchestrator")
	bus.Publish("safety.checkpoint", nil, "safety")
	bus.Publish("task.completed", nil, "orchestrator")

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range got {
		if ev != "task.started" && ev != "task.completed" {
			t.Fatalf("non-task event leaked through prefix pattern: %s", ev)
		}
	}
}

func TestHistoryRecordsPublishOrderWithoutSubscribers(t *testing.T) {
	bus := New(Config{}, logging.Nop())
	defer bus.Close()

	bus.Publish("task.started", nil, "orchestrator")
	bus.Publish("task.completed", nil, "orchestrator")

	events := bus.History(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 events in history, got %d", len(events))
	}
	if events[0].Type != "task.started" || events[1].Type != "task.completed" {
		t.Fatalf("history order wrong: %s then %s", events[0].Type, events[1].Type)
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	bus := New(Config{HistorySize: 3}, logging.Nop())
	defer bus.Close()

	for _, evType := range []string{"a", "b", "c", "d", "e"} {
		bus.Publish(evType, nil, "test")
	}

	events := bus.History(0)
	if len(events) != 3 {
		t.Fatalf("history should cap at 3, got %d", len(events))
	}
	if events[0].Type != "c" || events[2].Type != "e" {
		t.Fatalf("oldest events should be evicted first: %+v", events)
	}

	limited := bus.History(2)
	if len(limited) != 2 || limited[0].Type != "d" {
		t.Fatalf("History(limit) should return most recent: %+v", limited)
	}
}

func TestEnqueueDropsOldestUnconsumed(t *testing.T) {
	// Built by hand without a dispatch loop so the queue actually fills.
	b := &Bus{
		queue:       make(chan Event, 2),
		history:     make([]Event, 0, 8),
		historySize: 8,
		loopDone:    make(chan struct{}),
		logger:      logging.Nop(),
	}

	b.enqueue(Event{Type: "a"})
	b.enqueue(Event{Type: "b"})
	b.enqueue(Event{Type: "c"})

	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", b.Dropped())
	}
	first := <-b.queue
	second := <-b.queue
	if first.Type != "b" || second.Type != "c" {
		t.Fatalf("oldest event should have been evicted, queue held %s, %s", first.Type, second.Type)
	}
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := New(Config{}, logging.Nop())
	defer bus.Close()

	var mu sync.Mutex
	var delivered []string
	bus.Subscribe("*", func(Event) {
		panic("handler bug")
	})
	bus.Subscribe("*", func(ev Event) {
		mu.Lock()
		delivered = append(delivered, ev.Type)
		mu.Unlock()
	})

	bus.Publish("task.started", nil, "orchestrator")
	bus.Publish("task.completed", nil, "orchestrator")

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(Config{}, logging.Nop())
	defer bus.Close()

	var count sync.WaitGroup
	count.Add(1)
	var once sync.Once
	unsubscribe := bus.Subscribe("*", func(Event) {
		once.Do(count.Done)
	})

	bus.Publish("task.started", nil, "orchestrator")
	count.Wait()
	unsubscribe()

	bus.Publish("task.completed", nil, "orchestrator")
	time.Sleep(20 * time.Millisecond)

	// Only history should have grown; the handler saw one event.
	if got := len(bus.History(0)); got != 2 {
		t.Fatalf("history should retain both events, got %d", got)
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := New(Config{}, logging.Nop())
	bus.Close()
	bus.Publish("task.started", nil, "orchestrator")
	bus.Close() // idempotent
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, eventType string
		want               bool
	}{
		{"*", "anything", true},
		{"task.started", "task.started", true},
		{"task.started", "task.completed", false},
		{"task.*", "task.timeout", true},
		{"task.*", "safety.checkpoint", false},
		{"safety.*", "safety.rolled_back", true},
	}
	for _, tc := range cases {
		if got := matchPattern(tc.pattern, tc.eventType); got != tc.want {
			t.Fatalf("matchPattern(%q, %q) = %v, want %v", tc.pattern, tc.eventType, got, tc.want)
		}
	}
}
