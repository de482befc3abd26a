// Package catalog manages events and users: event CRUD with capacity and
// time-window validation, filtered listings, attendee lists and user
// administration. A capacity change is pushed to capacity subscribers once
// the update committed.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/eventflow/internal/eventbus"
	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
)

// Publisher is the side of the event bus the catalog needs.
type Publisher interface {
	Publish(p eventbus.Payload)
}

// Service implements the catalog operations.
type Service struct {
	store repository.Store
	bus   Publisher
	log   *zap.Logger
	now   func() time.Time
	newID func() string
	retry repository.RetryPolicy
}

// Option configures a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithLogger(l *zap.Logger) Option       { return func(s *Service) { s.log = l } }

// WithRetries bounds how often a conflicting capacity update is re-run.
func WithRetries(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		s.retry.MaxAttempts = attempts
		s.retry.Backoff = backoff
	}
}

func New(store repository.Store, bus Publisher, opts ...Option) *Service {
	s := &Service{
		store: store,
		bus:   bus,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
		retry: repository.RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Millisecond},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EventInput holds the fields of a new event.
type EventInput struct {
	Title       string
	Description *string
	Location    *string
	StartAt     time.Time
	EndAt       time.Time
	Capacity    int
}

// EventPatch is a partial update; nil fields keep their value.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	StartAt     *time.Time
	EndAt       *time.Time
	Capacity    *int
}

func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return err
}

func validID(id, what string) error {
	if uuid.Validate(id) != nil {
		return fmt.Errorf("%s id: %w", what, model.ErrInvalidInput)
	}
	return nil
}

func validateEvent(title string, start, end time.Time, capacity int) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required: %w", model.ErrInvalidInput)
	}
	if !start.Before(end) {
		return model.ErrInvalidTimeWindow
	}
	if capacity <= 0 {
		return model.ErrInvalidCapacity
	}
	return nil
}

// canManage reports whether the actor may change an event it may or may
// not own.
func canManage(actor model.Actor, e *model.Event) bool {
	return actor.IsAdmin() || e.OrganizerID == actor.UserID
}

// CreateEvent publishes a new event owned by the actor, who must be an
// organizer or an admin.
func (s *Service) CreateEvent(ctx context.Context, actor model.Actor, in EventInput) (*model.Event, error) {
	if !actor.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	if !actor.HasAnyRole(model.RoleOrganizer, model.RoleAdmin) {
		return nil, model.ErrForbidden
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validateEvent(in.Title, in.StartAt, in.EndAt, in.Capacity); err != nil {
		return nil, err
	}

	e := &model.Event{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		StartAt:     in.StartAt.UTC(),
		EndAt:       in.EndAt.UTC(),
		Capacity:    in.Capacity,
		OrganizerID: actor.UserID,
	}
	if err := s.store.Events().Create(ctx, e); err != nil {
		return nil, notFound(err, "organizer")
	}
	s.log.Info("event created", zap.String("event_id", e.ID), zap.String("organizer_id", actor.UserID), zap.Int("capacity", e.Capacity))
	return s.GetEvent(ctx, e.ID)
}

// UpdateEvent applies patch to an event owned by the actor (or any event
// for an admin). The merged event must still be valid. Lowering capacity
// below the confirmed count is allowed and cancels nothing.
func (s *Service) UpdateEvent(ctx context.Context, actor model.Actor, id string, patch EventPatch) (*model.Event, error) {
	if !actor.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	if err := validID(id, "event"); err != nil {
		return nil, err
	}

	var (
		changed bool
		occ     model.CapacityInfo
	)
	p := s.retry
	p.OnRetry = func(attempt int, err error) {
		s.log.Warn("transaction conflict, retrying", zap.String("op", "update_event"), zap.Int("attempt", attempt), zap.Error(err))
	}
	err := repository.RunWithRetry(ctx, s.store, p, func(tx repository.Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return notFound(err, "event")
		}
		if !canManage(actor, e) {
			return model.ErrForbidden
		}
		prev := e.Capacity
		if patch.Title != nil {
			e.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			e.Description = patch.Description
		}
		if patch.Location != nil {
			e.Location = patch.Location
		}
		if patch.StartAt != nil {
			e.StartAt = patch.StartAt.UTC()
		}
		if patch.EndAt != nil {
			e.EndAt = patch.EndAt.UTC()
		}
		if patch.Capacity != nil {
			e.Capacity = *patch.Capacity
		}
		if err := validateEvent(e.Title, e.StartAt, e.EndAt, e.Capacity); err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, e); err != nil {
			return notFound(err, "event")
		}
		changed = e.Capacity != prev
		occ = model.Occupancy(e.ID, e.Capacity, e.Booked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.Info("event capacity changed", zap.String("event_id", id), zap.Int("capacity", occ.Capacity), zap.Int("booked", occ.Booked))
		s.bus.Publish(eventbus.CapacityChanged{Info: occ})
	}
	return s.GetEvent(ctx, id)
}

// DeleteEvent removes an event and, through the schema, its tickets.
func (s *Service) DeleteEvent(ctx context.Context, actor model.Actor, id string) error {
	if !actor.Authenticated() {
		return model.ErrUnauthenticated
	}
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, e) {
		return model.ErrForbidden
	}
	if err := s.store.Events().Delete(ctx, id); err != nil {
		return notFound(err, "event")
	}
	s.log.Info("event deleted", zap.String("event_id", id), zap.String("by", actor.UserID))
	return nil
}

func (s *Service) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if err := validID(id, "event"); err != nil {
		return nil, err
	}
	e, err := s.store.Events().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "event")
	}
	return e, nil
}

// ListEvents returns one page of events matching f, ordered by start time.
func (s *Service) ListEvents(ctx context.Context, f model.EventFilter, p model.Page) (*model.EventConnection, error) {
	p = p.Normalize()
	if p.After != "" {
		if err := validID(p.After, "cursor"); err != nil {
			return nil, err
		}
	}
	if f.OrganizerID != "" {
		if err := validID(f.OrganizerID, "organizer"); err != nil {
			return nil, err
		}
	}

	// one extra row tells whether another page follows
	events, err := s.store.Events().List(ctx, f, model.Page{First: p.First + 1, After: p.After})
	if err != nil {
		return nil, err
	}
	total, err := s.store.Events().Count(ctx, f)
	if err != nil {
		return nil, err
	}

	conn := &model.EventConnection{
		Edges:      make([]model.EventEdge, 0, min(len(events), p.First)),
		TotalCount: total,
	}
	conn.PageInfo.HasNextPage = len(events) > p.First
	conn.PageInfo.HasPreviousPage = p.After != ""
	if conn.PageInfo.HasNextPage {
		events = events[:p.First]
	}
	for _, e := range events {
		conn.Edges = append(conn.Edges, model.EventEdge{Node: e, Cursor: e.ID})
	}
	if n := len(conn.Edges); n > 0 {
		first, last := conn.Edges[0].Cursor, conn.Edges[n-1].Cursor
		conn.PageInfo.StartCursor, conn.PageInfo.EndCursor = &first, &last
	}
	return conn, nil
}

// Attendees lists the holders of confirmed tickets for an event the actor
// organizes (any event for an admin).
func (s *Service) Attendees(ctx context.Context, actor model.Actor, eventID string) ([]model.User, error) {
	if !actor.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	if !actor.HasAnyRole(model.RoleOrganizer, model.RoleAdmin) {
		return nil, model.ErrForbidden
	}
	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, e) {
		return nil, model.ErrForbidden
	}
	return s.store.Tickets().ListAttendees(ctx, eventID)
}

// MyTickets lists the actor's tickets, newest first, with their events.
func (s *Service) MyTickets(ctx context.Context, actor model.Actor) ([]model.Ticket, error) {
	if !actor.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	return s.store.Tickets().ListByUser(ctx, actor.UserID)
}

func requireAdmin(actor model.Actor) error {
	if !actor.Authenticated() {
		return model.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return model.ErrForbidden
	}
	return nil
}

// Users lists every user, newest first.
func (s *Service) Users(ctx context.Context, actor model.Actor) ([]model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.Users().List(ctx)
}

// UpdateUserRoles replaces the role set of a user. An admin cannot remove
// their own ADMIN role.
func (s *Service) UpdateUserRoles(ctx context.Context, actor model.Actor, id string, roles []model.Role) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validID(id, "user"); err != nil {
		return nil, err
	}
	set := make([]model.Role, 0, len(roles))
	for _, r := range roles {
		r = model.Role(strings.ToUpper(strings.TrimSpace(string(r))))
		if !r.Valid() {
			return nil, fmt.Errorf("role %q: %w", r, model.ErrInvalidInput)
		}
		if !slices.Contains(set, r) {
			set = append(set, r)
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("at least one role is required: %w", model.ErrInvalidInput)
	}
	if id == actor.UserID && !slices.Contains(set, model.RoleAdmin) {
		return nil, fmt.Errorf("cannot remove your own admin role: %w", model.ErrForbidden)
	}

	u, err := s.store.Users().UpdateRoles(ctx, id, set)
	if err != nil {
		return nil, notFound(err, "user")
	}
	s.log.Info("user roles updated", zap.String("user_id", id), zap.Any("roles", set), zap.String("by", actor.UserID))
	return u, nil
}

// DeleteUser removes a user other than the acting admin. Their events,
// tickets and refresh tokens go with them.
func (s *Service) DeleteUser(ctx context.Context, actor model.Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := validID(id, "user"); err != nil {
		return err
	}
	if id == actor.UserID {
		return fmt.Errorf("cannot delete yourself: %w", model.ErrForbidden)
	}
	if err := s.store.Users().Delete(ctx, id); err != nil {
		return notFound(err, "user")
	}
	s.log.Info("user deleted", zap.String("user_id", id), zap.String("by", actor.UserID))
	return nil
}
