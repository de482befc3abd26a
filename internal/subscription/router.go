// Package subscription narrows the event bus down to the per-event streams
// that clients subscribe to.
package subscription

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/iliyamo/eventflow/internal/eventbus"
	"github.com/iliyamo/eventflow/internal/model"
)

// State is the lifecycle position of a Stream.
type State int32

const (
	Idle State = iota
	Listening
	Delivering
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Delivering:
		return "delivering"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Topic is the client-facing name of a stream.
type Topic string

const (
	TopicTicketBooked         Topic = "ticketBooked"
	TopicEventCapacityChanged Topic = "eventCapacityChanged"
)

// Router hands out filtered streams over a shared bus.
type Router struct {
	bus    *eventbus.Bus
	buffer int
}

// NewRouter returns a router over bus. buffer <= 0 keeps the bus default.
func NewRouter(bus *eventbus.Bus, buffer int) *Router {
	return &Router{bus: bus, buffer: buffer}
}

// forEvent matches payloads about eventID. An empty eventID matches
// nothing.
func forEvent(eventID string) func(eventbus.Payload) bool {
	return func(p eventbus.Payload) bool {
		return eventID != "" && p.EventID() == eventID
	}
}

func open[T any](r *Router, t eventbus.Trigger, eventID string, convert func(eventbus.Payload) (T, bool)) *Stream[T] {
	s := &Stream[T]{convert: convert}
	s.state.Store(int32(Idle))
	opts := []eventbus.SubOption{eventbus.Filter(forEvent(eventID))}
	if r.buffer > 0 {
		opts = append(opts, eventbus.Buffer(r.buffer))
	}
	s.sub = r.bus.Listen([]eventbus.Trigger{t}, opts...)
	if s.sub.Err() != nil {
		s.state.Store(int32(Terminated))
	} else {
		s.state.Store(int32(Listening))
	}
	return s
}

// TicketBooked streams the tickets booked for eventID, each carrying its
// user and event.
func (r *Router) TicketBooked(eventID string) *Stream[model.Ticket] {
	return open(r, eventbus.TriggerTicketBooked, eventID, func(p eventbus.Payload) (model.Ticket, bool) {
		tb, ok := p.(eventbus.TicketBooked)
		return tb.Ticket, ok
	})
}

// EventCapacityChanged streams occupancy snapshots of eventID.
func (r *Router) EventCapacityChanged(eventID string) *Stream[model.CapacityInfo] {
	return open(r, eventbus.TriggerCapacityChanged, eventID, func(p eventbus.Payload) (model.CapacityInfo, bool) {
		cc, ok := p.(eventbus.CapacityChanged)
		return cc.Info, ok
	})
}

// Stream is one client's view of a topic. Nothing published before the
// stream was opened, or after it terminated, is ever delivered.
type Stream[T any] struct {
	sub     *eventbus.Subscription
	convert func(eventbus.Payload) (T, bool)
	state   atomic.Int32
}

// State reports where the stream is in its lifecycle.
func (s *Stream[T]) State() State {
	if s.sub.Err() != nil {
		return Terminated
	}
	return State(s.state.Load())
}

// Next waits for the next matching value. The stream stays in Delivering
// until the following call to Next.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.state.CompareAndSwap(int32(Delivering), int32(Listening))
		p, err := s.sub.Next(ctx)
		if err != nil {
			if s.sub.Err() != nil {
				s.state.Store(int32(Terminated))
			}
			return zero, err
		}
		if v, ok := s.convert(p); ok {
			s.state.CompareAndSwap(int32(Listening), int32(Delivering))
			return v, nil
		}
	}
}

// All yields values until the stream terminates or ctx is done. Breaking
// out of the loop closes the stream.
func (s *Stream[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				s.Close()
				return
			}
		}
	}
}

// Done is closed once the stream terminates.
func (s *Stream[T]) Done() <-chan struct{} { return s.sub.Done() }

// Err reports why the stream terminated, or nil while it is live.
func (s *Stream[T]) Err() error { return s.sub.Err() }

// Close tears down the bus registration. It is idempotent.
func (s *Stream[T]) Close() {
	s.sub.Close()
	s.state.Store(int32(Terminated))
}
