// Package eventbus is the in-process publish/subscribe hub between the
// booking engine and live subscribers. A Bus is created once at startup,
// handed to its producers and consumers, and closed at shutdown.
package eventbus

import (
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 64

var (
	// ErrSlowSubscriber terminates a subscription whose queue was full
	// when a payload arrived.
	ErrSlowSubscriber = errors.New("eventbus: subscriber too slow, disconnected")
	// ErrClosed is reported by a subscription closed by its owner.
	ErrClosed = errors.New("eventbus: subscription closed")
	// ErrBusClosed is reported by subscriptions alive when the bus shut down.
	ErrBusClosed = errors.New("eventbus: bus closed")
)

// Listener receives payloads synchronously from Publish. It must not block.
type Listener func(Payload)

type entry struct {
	fn Listener
	// stop, when set, is how Close tears down the owning subscription.
	stop func(error)
}

// Bus fans payloads out to the listeners registered on their trigger.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Trigger]map[uint64]entry
	nextID    uint64
	closed    bool

	buffer int
	log    *zap.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the queue length of subscriptions created by Listen.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithLogger sets the logger used for listener panics and disconnects.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// New returns an open bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[Trigger]map[uint64]entry),
		buffer:    DefaultBuffer,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handle removes a listener registration. Unsubscribe is idempotent.
type Handle struct {
	once   sync.Once
	bus    *Bus
	trig   Trigger
	id     uint64
	active bool
}

// Unsubscribe removes the listener. Calling it again is a no-op.
func (h *Handle) Unsubscribe() {
	if h == nil || !h.active {
		return
	}
	h.once.Do(func() { h.bus.remove(h.trig, h.id) })
}

// Subscribe registers fn on trigger t. On a closed bus the returned handle
// is inert and fn is never called.
func (b *Bus) Subscribe(t Trigger, fn Listener) *Handle {
	return b.add(t, entry{fn: fn})
}

func (b *Bus) add(t Trigger, e entry) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &Handle{}
	}
	b.nextID++
	id := b.nextID
	set, ok := b.listeners[t]
	if !ok {
		set = make(map[uint64]entry)
		b.listeners[t] = set
	}
	set[id] = e
	return &Handle{bus: b, trig: t, id: id, active: true}
}

func (b *Bus) remove(t Trigger, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.listeners[t]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(b.listeners, t)
		}
	}
}

// Publish delivers p to every listener currently registered on its
// trigger, in registration order, and returns once each has run. It never
// fails and never waits on a subscriber; a panicking listener is logged
// and skipped.
func (b *Bus) Publish(p Payload) {
	if p == nil {
		return
	}
	// Snapshot under lock; dispatch after release so listeners may
	// unsubscribe from inside the callback.
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	set := b.listeners[p.Trigger()]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, set[id].fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.dispatch(fn, p)
	}
}

func (b *Bus) dispatch(fn Listener, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("eventbus listener panicked",
				zap.String("trigger", string(p.Trigger())), zap.Any("panic", r))
		}
	}()
	fn(p)
}

// Listeners reports how many listeners are registered on t.
func (b *Bus) Listeners(t Trigger) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[t])
}

// Close terminates every live subscription with ErrBusClosed and drops all
// listeners. Later publishes are ignored. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var stops []func(error)
	for _, set := range b.listeners {
		for _, e := range set {
			if e.stop != nil {
				stops = append(stops, e.stop)
			}
		}
	}
	b.listeners = make(map[Trigger]map[uint64]entry)
	b.mu.Unlock()

	for _, stop := range stops {
		stop(ErrBusClosed)
	}
}
