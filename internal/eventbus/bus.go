package eventbus

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"feedsync/internal/observability"
)

// Handler receives a published event.
type Handler func(Event)

// Bus multiplexes the event kinds over one logical channel.
type Bus struct {
	mu     sync.Mutex
	subs   map[Kind][]*Subscription
	nextID uint64
	log    observability.BusLogger
}

// Subscription is a live registration. Unsubscribe releases it.
type Subscription struct {
	id      uint64
	kind    Kind
	handler Handler
	bus     *Bus
	active  atomic.Bool
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Kind][]*Subscription)}
}

// Subscribe registers handler for kind. Subscribers are invoked in
// registration order.
func (b *Bus) Subscribe(kind Kind, handler Handler) (*Subscription, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("eventbus: unknown event kind %q", kind)
	}
	if handler == nil {
		return nil, fmt.Errorf("eventbus: nil handler for %q", kind)
	}

	b.mu.Lock()
	b.nextID++
	sub := &Subscription{id: b.nextID, kind: kind, handler: handler, bus: b}
	sub.active.Store(true)
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	b.log.LogSubscription(string(kind), sub.id, true)
	return sub, nil
}

// On subscribes a handler typed to one event payload.
func On[E Event](b *Bus, handler func(E)) (*Subscription, error) {
	var zero E
	return b.Subscribe(zero.Kind(), func(evt Event) {
		if typed, ok := evt.(E); ok {
			handler(typed)
		}
	})
}

// Scoped subscribes handler for the duration of fn and always releases the
// subscription when fn returns or panics.
func (b *Bus) Scoped(kind Kind, handler Handler, fn func() error) error {
	sub, err := b.Subscribe(kind, handler)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	return fn()
}

// Publish delivers evt to every subscriber active when Publish is called and
// returns how many handlers ran. Subscribers added during delivery do not see
// evt; subscribers removed during delivery are skipped.
func (b *Bus) Publish(evt Event) int {
	if evt == nil {
		return 0
	}
	kind := evt.Kind()

	b.mu.Lock()
	snapshot := append([]*Subscription(nil), b.subs[kind]...)
	b.mu.Unlock()

	observability.EventsPublished.WithLabelValues(string(kind)).Inc()

	delivered := 0
	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		b.deliver(sub, evt)
		delivered++
	}
	observability.EventDeliveries.WithLabelValues(string(kind)).Add(float64(delivered))
	b.log.LogPublish(string(kind), delivered)
	return delivered
}

func (b *Bus) deliver(sub *Subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.GlobalLogger.Error("event handler panic",
				"kind", string(sub.kind),
				"subscription_id", sub.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.handler(evt)
}

// SubscriberCount returns the number of active subscribers for kind.
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[kind])
}

// Unsubscribe removes the subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	b := s.bus
	b.mu.Lock()
	list := b.subs[s.kind]
	for i, candidate := range list {
		if candidate == s {
			b.subs[s.kind] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[s.kind]) == 0 {
		delete(b.subs, s.kind)
	}
	b.mu.Unlock()

	b.log.LogSubscription(string(s.kind), s.id, false)
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}
