package eventbus

import (
	"context"
	"iter"
	"sync"

	"go.uber.org/zap"
)

// SubOption configures a Subscription.
type SubOption func(*Subscription)

// Filter drops payloads for which keep returns false before they are
// queued, so filtered traffic never counts against the buffer.
func Filter(keep func(Payload) bool) SubOption {
	return func(s *Subscription) { s.keep = keep }
}

// Buffer overrides the bus-wide queue length for one subscription.
func Buffer(n int) SubOption {
	return func(s *Subscription) {
		if n > 0 {
			s.queue = make(chan Payload, n)
		}
	}
}

// Subscription is a pull-based stream of payloads from one or more
// triggers. Payloads are queued in publish order until pulled and are not
// retained once delivered. A subscription whose queue is full when a
// payload arrives is terminated with ErrSlowSubscriber; the publisher never
// waits.
type Subscription struct {
	bus     *Bus
	queue   chan Payload
	keep    func(Payload) bool
	handles []*Handle

	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

// Listen opens a subscription to the given triggers.
func (b *Bus) Listen(triggers []Trigger, opts ...SubOption) *Subscription {
	s := &Subscription{
		bus:  b,
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.queue == nil {
		s.queue = make(chan Payload, b.buffer)
	}
	for _, t := range triggers {
		h := b.add(t, entry{fn: s.deliver, stop: s.terminate})
		if !h.active {
			s.terminate(ErrBusClosed)
			break
		}
		s.mu.Lock()
		s.handles = append(s.handles, h)
		s.mu.Unlock()
		select {
		case <-s.done:
			// Terminated while registering; drop what was added since.
			h.Unsubscribe()
		default:
		}
	}
	return s
}

func (s *Subscription) deliver(p Payload) {
	if s.keep != nil && !s.keep(p) {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- p:
	default:
		s.bus.log.Warn("eventbus subscriber disconnected",
			zap.String("trigger", string(p.Trigger())), zap.Int("buffer", cap(s.queue)))
		s.terminate(ErrSlowSubscriber)
	}
}

// terminate records why the subscription ended, unregisters its listeners
// and wakes any pending Next. Only the first call has an effect.
func (s *Subscription) terminate(reason error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = reason
		handles := s.handles
		s.mu.Unlock()
		close(s.done)
		for _, h := range handles {
			h.Unsubscribe()
		}
	})
}

// Next blocks until a payload is available, the subscription terminates,
// or ctx is done. Once terminated it returns Err().
func (s *Subscription) Next(ctx context.Context) (Payload, error) {
	select {
	case <-s.done:
		return nil, s.Err()
	default:
	}
	select {
	case p := <-s.queue:
		return p, nil
	case <-s.done:
		return nil, s.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// All yields payloads until the subscription terminates or ctx is done.
// Breaking out of the loop closes the subscription.
func (s *Subscription) All(ctx context.Context) iter.Seq[Payload] {
	return func(yield func(Payload) bool) {
		for {
			p, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(p) {
				s.Close()
				return
			}
		}
	}
}

// Done is closed when the subscription terminates.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription terminated, or nil while it is live.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unregisters the subscription. It is safe to call more than once
// and from any goroutine.
func (s *Subscription) Close() { s.terminate(ErrClosed) }
