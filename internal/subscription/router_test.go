package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eventflow/internal/eventbus"
	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/subscription"
)

func shortCtx(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestEventCapacityChanged_DeliversOnlyToMatchingEvent(t *testing.T) {
	bus := eventbus.New()
	r := subscription.NewRouter(bus, 0)

	a := r.EventCapacityChanged("evt-a")
	defer a.Close()
	b := r.EventCapacityChanged("evt-b")
	defer b.Close()

	bus.Publish(eventbus.CapacityChanged{Info: model.Occupancy("evt-a", 5, 2)})

	got, err := a.Next(shortCtx(t, time.Second))
	require.NoError(t, err)
	require.Equal(t, model.CapacityInfo{EventID: "evt-a", Capacity: 5, Remaining: 3, Booked: 2}, got)

	_, err = b.Next(shortCtx(t, 30*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTicketBooked_MatchesNestedEvent(t *testing.T) {
	bus := eventbus.New()
	r := subscription.NewRouter(bus, 0)
	s := r.TicketBooked("evt-a")
	defer s.Close()

	bus.Publish(eventbus.TicketBooked{Ticket: model.Ticket{ID: "t-other", EventID: "evt-b", Event: &model.Event{ID: "evt-b"}}})
	bus.Publish(eventbus.TicketBooked{Ticket: model.Ticket{ID: "t-1", EventID: "evt-a", Event: &model.Event{ID: "evt-a"}}})

	got, err := s.Next(shortCtx(t, time.Second))
	require.NoError(t, err)
	require.Equal(t, "t-1", got.ID)
}

func TestStream_EmptyEventIDDeniesEverything(t *testing.T) {
	bus := eventbus.New()
	r := subscription.NewRouter(bus, 0)
	s := r.EventCapacityChanged("")
	defer s.Close()

	bus.Publish(eventbus.CapacityChanged{Info: model.Occupancy("", 1, 0)})
	bus.Publish(eventbus.CapacityChanged{Info: model.Occupancy("evt-a", 1, 0)})

	_, err := s.Next(shortCtx(t, 30*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStream_StateMachine(t *testing.T) {
	bus := eventbus.New()
	r := subscription.NewRouter(bus, 0)
	s := r.EventCapacityChanged("evt-a")
	require.Equal(t, subscription.Listening, s.State())

	bus.Publish(eventbus.CapacityChanged{Info: model.Occupancy("evt-a", 3, 1)})
	_, err := s.Next(shortCtx(t, time.Second))
	require.NoError(t, err)
	require.Equal(t, subscription.Delivering, s.State())

	_, err = s.Next(shortCtx(t, 20*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, subscription.Listening, s.State())

	s.Close()
	s.Close()
	require.Equal(t, subscription.Terminated, s.State())
	require.Equal(t, 0, bus.Listeners(eventbus.TriggerCapacityChanged))
}

func TestStream_ReconnectSeesOnlyLaterEvents(t *testing.T) {
	bus := eventbus.New()
	r := subscription.NewRouter(bus, 0)

	first := r.EventCapacityChanged("evt-a")
	first.Close()
	bus.Publish(eventbus.CapacityChanged{Info: model.Occupancy("evt-a", 3, 1)})

	second := r.EventCapacityChanged("evt-a")
	defer second.Close()
	bus.Publish(eventbus.CapacityChanged{Info: model.Occupancy("evt-a", 3, 2)})

	got, err := second.Next(shortCtx(t, time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, got.Booked)
}

func TestStream_AllBreakUnregisters(t *testing.T) {
	bus := eventbus.New()
	r := subscription.NewRouter(bus, 4)
	s := r.EventCapacityChanged("evt-a")

	bus.Publish(eventbus.CapacityChanged{Info: model.Occupancy("evt-a", 3, 1)})
	for info := range s.All(context.Background()) {
		require.Equal(t, 1, info.Booked)
		break
	}
	require.Equal(t, subscription.Terminated, s.State())
	require.Equal(t, 0, bus.Listeners(eventbus.TriggerCapacityChanged))
}

func TestStream_BusCloseTerminates(t *testing.T) {
	bus := eventbus.New()
	r := subscription.NewRouter(bus, 0)
	s := r.TicketBooked("evt-a")

	bus.Close()
	_, err := s.Next(context.Background())
	require.ErrorIs(t, err, eventbus.ErrBusClosed)
	require.Equal(t, subscription.Terminated, s.State())
}
