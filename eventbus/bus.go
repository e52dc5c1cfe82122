package eventbus

import (
	"log/slog"
	"sync"
	"time"
)

// core holds the subscriber registry shared by a root Bus and every Bus
// derived from it via Child. Scoping lives on the Bus value, not here.
type core struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	logger *slog.Logger
}

// Bus is a typed, in-memory, process-local publish/subscribe hub. A Bus
// value is cheap to copy; Child derives a scoped view over the same
// subscriber registry.
type Bus struct {
	c     *core
	scope Scope
}

// Scope is stamped onto every event a Bus publishes when the event does not
// already carry the field. GraphExecutor and ExecutionStream each hold a
// Child bus so callers never need to pass scope explicitly.
type Scope struct {
	GraphID  string
	StreamID string
}

// New creates a root Bus. logger may be nil, in which case handler panics
// are recovered but not logged.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		c: &core{
			subs:   make(map[uint64]*subscription),
			logger: logger,
		},
	}
}

// Child returns a derived Bus that stamps the given scope fields onto every
// event it publishes, falling back to the parent's own scope for any field
// left blank. Subscriptions are shared across parent and every child.
func (b *Bus) Child(scope Scope) *Bus {
	merged := b.scope
	if scope.GraphID != "" {
		merged.GraphID = scope.GraphID
	}
	if scope.StreamID != "" {
		merged.StreamID = scope.StreamID
	}
	return &Bus{c: b.c, scope: merged}
}

// Publish enqueues event to every subscription whose filter matches, after
// stamping any blank scope fields from this Bus's scope. It never blocks:
// a full subscriber queue drops its oldest entry. Publish does not return
// an error; delivery failures are per-subscriber and logged.
func (b *Bus) Publish(event Event) {
	if event.GraphID == "" {
		event.GraphID = b.scope.GraphID
	}
	if event.StreamID == "" {
		event.StreamID = b.scope.StreamID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.c.mu.RLock()
	targets := make([]*subscription, 0, len(b.c.subs))
	for _, sub := range b.c.subs {
		if sub.filter.matches(event) {
			targets = append(targets, sub)
		}
	}
	b.c.mu.RUnlock()

	for _, sub := range targets {
		sub.enqueue(Clone(event))
	}
}

// Subscribe registers handler for events matching filter and returns a
// Handle for later Unsubscribe. Events reach handler in publication order
// relative to this subscription; concurrent publishers interleave in
// enqueue order.
func (b *Bus) Subscribe(filter Filter, handler Handler) (Handle, error) {
	return b.SubscribeWithCapacity(filter, handler, DefaultQueueCapacity)
}

// SubscribeWithCapacity is Subscribe with an explicit per-subscriber queue bound.
func (b *Bus) SubscribeWithCapacity(filter Filter, handler Handler, capacity int) (Handle, error) {
	if handler == nil {
		return Handle{}, ErrNilHandler
	}

	b.c.mu.Lock()
	b.c.nextID++
	id := b.c.nextID
	sub := newSubscription(id, filter, handler, capacity, b.c.logger)
	b.c.subs[id] = sub
	b.c.mu.Unlock()

	return Handle{id: id}, nil
}

// Unsubscribe removes a subscription. It is idempotent: unsubscribing twice,
// or a Handle this bus never issued, is a no-op that returns nil.
func (b *Bus) Unsubscribe(h Handle) error {
	b.c.mu.Lock()
	sub, ok := b.c.subs[h.id]
	if ok {
		delete(b.c.subs, h.id)
	}
	b.c.mu.Unlock()

	if ok {
		sub.close()
	}
	return nil
}

// DroppedCount reports the backpressure_drop counter for the subscription
// identified by h, or 0 if it is unknown.
func (b *Bus) DroppedCount(h Handle) uint64 {
	b.c.mu.RLock()
	sub, ok := b.c.subs[h.id]
	b.c.mu.RUnlock()
	if !ok {
		return 0
	}
	return sub.droppedCount()
}

// SubscriberCount reports the number of live subscriptions, for diagnostics and tests.
func (b *Bus) SubscriberCount() int {
	b.c.mu.RLock()
	defer b.c.mu.RUnlock()
	return len(b.c.subs)
}
