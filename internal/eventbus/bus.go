package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"thoth/internal/async"
	"thoth/internal/logging"
)

const (
	defaultQueueSize   = 256
	defaultHistorySize = 1000
)

// Event is an immutable lifecycle notification. The JSON shape is the wire
// contract for the streaming endpoint.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
}

// Handler consumes one event. Handlers run concurrently; a panicking handler
// is isolated and never stops delivery to its siblings.
type Handler func(Event)

type subscription struct {
	id      uint64
	pattern string
	handler Handler
}

// Config sizes the bus queues.
type Config struct {
	QueueSize   int
	HistorySize int
}

// Bus is a bounded-queue pub/sub with history. Publish never blocks and
// never errors: when the queue is full the oldest unconsumed event is
// dropped, because observability must never slow the execution path.
type Bus struct {
	queue   chan Event
	queueMu sync.Mutex
	closed  bool

	subMu  sync.RWMutex
	subs   []subscription
	nextID uint64

	histMu      sync.Mutex
	history     []Event
	historySize int

	dropped    atomic.Int64
	dispatched sync.WaitGroup
	loopDone   chan struct{}
	logger     logging.Logger
}

// New creates a bus and starts its dispatch loop.
func New(cfg Config, logger logging.Logger) *Bus {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = defaultHistorySize
	}

	b := &Bus{
		queue:       make(chan Event, queueSize),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		loopDone:    make(chan struct{}),
		logger:      logging.OrNop(logger),
	}
	go b.dispatchLoop()
	return b
}

// Publish enqueues an event. The history ring records it regardless of
// subscriber state.
func (b *Bus) Publish(eventType string, data map[string]any, source string) {
	ev := Event{Type: eventType, Timestamp: time.Now(), Source: source, Data: data}

	b.histMu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
	b.histMu.Unlock()

	b.enqueue(ev)
}

// enqueue holds the queue mutex so two publishers racing on a full queue
// cannot both evict.
func (b *Bus) enqueue(ev Event) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.queue <- ev:
			return
		default:
		}
		select {
		case <-b.queue:
			b.dropped.Add(1)
		default:
		}
	}
}

// Subscribe registers a handler for a pattern and returns an unsubscribe
// func. Patterns: exact type, "*" for everything, or a trailing-* prefix
// such as "task.*".
func (b *Bus) Subscribe(pattern string, handler Handler) func() {
	b.subMu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: handler})
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// dispatchLoop is the single coordinating unit: events leave the queue in
// publish order, and each event's matching handlers start before the next
// event is dequeued. Handler completion across events is unordered.
func (b *Bus) dispatchLoop() {
	defer close(b.loopDone)
	for ev := range b.queue {
		b.subMu.RLock()
		matching := make([]Handler, 0, len(b.subs))
		for _, sub := range b.subs {
			if matchPattern(sub.pattern, ev.Type) {
				matching = append(matching, sub.handler)
			}
		}
		b.subMu.RUnlock()

		for _, handler := range matching {
			h := handler
			event := ev
			b.dispatched.Add(1)
			async.Go(b.logger, "eventbus handler "+ev.Type, func() {
				defer b.dispatched.Done()
				h(event)
			})
		}
	}
}

// History returns up to limit recent events, oldest first. limit <= 0 means
// everything retained.
func (b *Bus) History(limit int) []Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	events := b.history
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Dropped reports how many events were evicted unconsumed.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops the dispatch loop and waits for in-flight handlers. Publish
// becomes a no-op afterwards.
func (b *Bus) Close() {
	b.queueMu.Lock()
	if b.closed {
		b.queueMu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.queueMu.Unlock()

	<-b.loopDone
	b.dispatched.Wait()
}

func matchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return pattern == eventType
}
