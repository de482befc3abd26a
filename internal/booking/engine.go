// Package booking holds the two capacity-changing operations of the
// service, booking and cancelling a ticket. Each runs in one gateway
// transaction that locks the event row, and publishes its domain events
// only after the commit succeeded.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/eventflow/internal/eventbus"
	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
)

// Publisher is the side of the event bus the engine needs.
type Publisher interface {
	Publish(p eventbus.Payload)
}

// Engine books and cancels tickets.
type Engine struct {
	store repository.Store
	bus   Publisher
	log   *zap.Logger
	now   func() time.Time
	newID func() string
	retry repository.RetryPolicy
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDs replaces the ticket id generator.
func WithIDs(gen func() string) Option { return func(e *Engine) { e.newID = gen } }

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithRetries sets how many times a transaction is attempted when the
// gateway reports a serialization conflict, and the base backoff.
func WithRetries(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.retry.MaxAttempts = attempts
		e.retry.Backoff = backoff
	}
}

// New wires an engine to its gateway and bus.
func New(store repository.Store, bus Publisher, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		bus:   bus,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
		retry: repository.RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Millisecond},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) runTx(ctx context.Context, op string, fn func(tx repository.Tx) error) error {
	p := e.retry
	p.OnRetry = func(attempt int, err error) {
		e.log.Warn("transaction conflict, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
	}
	return repository.RunWithRetry(ctx, e.store, p, fn)
}

// notFound turns the gateway's missing-row error into the business one.
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return err
}

// BookTicket reserves a seat for the actor at eventID. An existing
// CANCELLED ticket of the actor is reactivated in place.
func (e *Engine) BookTicket(ctx context.Context, actor model.Actor, eventID string, typeLabel *string) (*model.Ticket, error) {
	if !actor.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	// a malformed id names no event
	if err := uuid.Validate(eventID); err != nil {
		return nil, fmt.Errorf("event %q: %w", eventID, model.ErrNotFound)
	}

	var (
		booked *model.Ticket
		occ    model.CapacityInfo
	)
	err := e.runTx(ctx, "book_ticket", func(tx repository.Tx) error {
		ev, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return notFound(err, "event")
		}
		if ev.StartedAt(e.now()) {
			return model.ErrPastEvent
		}

		var from model.TicketStatus
		existing, err := tx.FindTicket(ctx, actor.UserID, eventID)
		switch {
		case err == nil:
			from = existing.Status
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		if from == model.TicketConfirmed {
			return model.ErrAlreadyBooked
		}
		if !from.CanTransitionTo(model.TicketConfirmed) {
			return fmt.Errorf("%s -> %s: %w", from, model.TicketConfirmed, model.ErrInvalidTransition)
		}
		if ev.Booked >= ev.Capacity {
			return model.ErrSoldOut
		}

		user, err := tx.GetUser(ctx, actor.UserID)
		if err != nil {
			return notFound(err, "user")
		}
		t, err := tx.UpsertTicket(ctx, repository.TicketUpsert{
			NewID:   e.newID(),
			UserID:  actor.UserID,
			EventID: eventID,
			Type:    typeLabel,
		})
		if err != nil {
			return err
		}
		if t.Status != model.TicketConfirmed {
			return fmt.Errorf("%s -> %s: %w", t.Status, model.TicketConfirmed, model.ErrInvalidTransition)
		}

		if ev.Booked, err = tx.CountConfirmedTickets(ctx, eventID); err != nil {
			return err
		}
		t.User, t.Event = user, ev
		booked = t
		occ = model.Occupancy(ev.ID, ev.Capacity, ev.Booked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("ticket booked",
		zap.String("ticket_id", booked.ID), zap.String("event_id", eventID),
		zap.String("user_id", actor.UserID), zap.Int("booked", occ.Booked), zap.Int("capacity", occ.Capacity))
	e.bus.Publish(eventbus.TicketBooked{Ticket: *booked})
	e.bus.Publish(eventbus.CapacityChanged{Info: occ})
	return booked, nil
}

// CancelTicket cancels one of the actor's confirmed tickets for an event
// that has not started yet.
func (e *Engine) CancelTicket(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error) {
	if !actor.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	if err := uuid.Validate(ticketID); err != nil {
		return nil, fmt.Errorf("ticket %q: %w", ticketID, model.ErrNotFound)
	}

	var (
		cancelled *model.Ticket
		occ       model.CapacityInfo
	)
	err := e.runTx(ctx, "cancel_ticket", func(tx repository.Tx) error {
		t, err := tx.FindTicketByID(ctx, ticketID)
		if err != nil {
			return notFound(err, "ticket")
		}
		if t.UserID != actor.UserID {
			return model.ErrForbidden
		}

		ev, err := tx.LockEvent(ctx, t.EventID)
		if err != nil {
			return notFound(err, "event")
		}
		// Status is stable from here on: every change to it holds the lock.
		if t, err = tx.FindTicketByID(ctx, ticketID); err != nil {
			return notFound(err, "ticket")
		}
		if t.Status != model.TicketConfirmed {
			return model.ErrNotConfirmed
		}
		if ev.StartedAt(e.now()) {
			return model.ErrEventStarted
		}

		t, err = tx.UpdateTicketStatus(ctx, ticketID, model.TicketConfirmed, model.TicketCancelled)
		if errors.Is(err, repository.ErrNotFound) {
			return model.ErrNotConfirmed
		}
		if err != nil {
			return err
		}
		if ev.Booked, err = tx.CountConfirmedTickets(ctx, ev.ID); err != nil {
			return err
		}
		if t.User, err = tx.GetUser(ctx, t.UserID); err != nil {
			return notFound(err, "user")
		}
		t.Event = ev
		cancelled = t
		occ = model.Occupancy(ev.ID, ev.Capacity, ev.Booked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("ticket cancelled",
		zap.String("ticket_id", cancelled.ID), zap.String("event_id", occ.EventID),
		zap.String("user_id", actor.UserID), zap.Int("booked", occ.Booked), zap.Int("capacity", occ.Capacity))
	e.bus.Publish(eventbus.CapacityChanged{Info: occ})
	e.bus.Publish(eventbus.TicketCancelled{Ticket: *cancelled})
	return cancelled, nil
}
