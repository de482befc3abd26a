package catalog_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eventflow/internal/booking"
	"github.com/iliyamo/eventflow/internal/catalog"
	"github.com/iliyamo/eventflow/internal/eventbus"
	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository/memstore"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu       sync.Mutex
	payloads []eventbus.Payload
}

func (r *recorder) Publish(p eventbus.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func (r *recorder) all() []eventbus.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventbus.Payload(nil), r.payloads...)
}

type fixture struct {
	store *memstore.Store
	bus   *recorder
	svc   *catalog.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	bus := &recorder{}
	return &fixture{store: store, bus: bus, svc: catalog.New(store, bus, catalog.WithClock(func() time.Time { return now }))}
}

func (f *fixture) actor(t *testing.T, name string, roles ...model.Role) model.Actor {
	t.Helper()
	u := &model.User{Name: name, Email: name + "@example.com", PasswordHash: "x", Roles: roles}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return model.Actor{UserID: u.ID, Email: u.Email, Roles: u.Roles}
}

func input(title string, startIn time.Duration, capacity int) catalog.EventInput {
	return catalog.EventInput{
		Title:    title,
		StartAt:  now.Add(startIn),
		EndAt:    now.Add(startIn + time.Hour),
		Capacity: capacity,
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.actor(t, "org", model.RoleOrganizer)
	user := f.actor(t, "user", model.RoleUser)

	e, err := f.svc.CreateEvent(ctx, org, input("  GopherCon  ", 24*time.Hour, 100))
	require.NoError(t, err)
	require.Equal(t, "GopherCon", e.Title)
	require.Equal(t, org.UserID, e.OrganizerID)
	require.NotNil(t, e.Organizer)
	require.Equal(t, 100, e.Remaining())

	_, err = f.svc.CreateEvent(ctx, user, input("x", time.Hour, 1))
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.CreateEvent(ctx, model.Actor{}, input("x", time.Hour, 1))
	require.ErrorIs(t, err, model.ErrUnauthenticated)
	_, err = f.svc.CreateEvent(ctx, org, input(" ", time.Hour, 1))
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.svc.CreateEvent(ctx, org, input("x", time.Hour, 0))
	require.ErrorIs(t, err, model.ErrInvalidCapacity)

	bad := input("x", time.Hour, 1)
	bad.EndAt = bad.StartAt
	_, err = f.svc.CreateEvent(ctx, org, bad)
	require.ErrorIs(t, err, model.ErrInvalidTimeWindow)
}

func TestUpdateEvent_PublishesCapacityChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.actor(t, "org", model.RoleOrganizer)
	e, err := f.svc.CreateEvent(ctx, org, input("Talk", 24*time.Hour, 2))
	require.NoError(t, err)

	engine := booking.New(f.store, f.bus, booking.WithClock(func() time.Time { return now }))
	for i := range 2 {
		_, err := engine.BookTicket(ctx, f.actor(t, fmt.Sprintf("u%d", i), model.RoleUser), e.ID, nil)
		require.NoError(t, err)
	}
	before := len(f.bus.all())

	// title only: no capacity payload
	got, err := f.svc.UpdateEvent(ctx, org, e.ID, catalog.EventPatch{Title: ptr("Keynote")})
	require.NoError(t, err)
	require.Equal(t, "Keynote", got.Title)
	require.Len(t, f.bus.all(), before)

	// shrinking below the booked count cancels nothing
	got, err = f.svc.UpdateEvent(ctx, org, e.ID, catalog.EventPatch{Capacity: ptr(1)})
	require.NoError(t, err)
	require.Equal(t, 2, got.Booked)
	require.Equal(t, -1, got.Remaining())

	all := f.bus.all()
	require.Len(t, all, before+1)
	cc, ok := all[len(all)-1].(eventbus.CapacityChanged)
	require.True(t, ok)
	require.Equal(t, model.CapacityInfo{EventID: e.ID, Capacity: 1, Remaining: -1, Booked: 2}, cc.Info)
}

func TestUpdateEvent_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.actor(t, "org", model.RoleOrganizer)
	other := f.actor(t, "other", model.RoleOrganizer)
	admin := f.actor(t, "admin", model.RoleAdmin)
	e, err := f.svc.CreateEvent(ctx, org, input("Talk", 24*time.Hour, 5))
	require.NoError(t, err)

	_, err = f.svc.UpdateEvent(ctx, other, e.ID, catalog.EventPatch{Capacity: ptr(10)})
	require.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.UpdateEvent(ctx, org, e.ID, catalog.EventPatch{Capacity: ptr(-3)})
	require.ErrorIs(t, err, model.ErrInvalidCapacity)

	// the merged window is checked, not just the patched field
	_, err = f.svc.UpdateEvent(ctx, org, e.ID, catalog.EventPatch{EndAt: ptr(now)})
	require.ErrorIs(t, err, model.ErrInvalidTimeWindow)

	_, err = f.svc.UpdateEvent(ctx, org, "00000000-0000-0000-0000-000000000000", catalog.EventPatch{})
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.svc.UpdateEvent(ctx, org, "nope", catalog.EventPatch{})
	require.ErrorIs(t, err, model.ErrInvalidInput)

	got, err := f.svc.UpdateEvent(ctx, admin, e.ID, catalog.EventPatch{Capacity: ptr(10)})
	require.NoError(t, err)
	require.Equal(t, 10, got.Capacity)
	require.Len(t, f.bus.all(), 1)
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.actor(t, "org", model.RoleOrganizer)
	other := f.actor(t, "other", model.RoleOrganizer)
	e, err := f.svc.CreateEvent(ctx, org, input("Talk", 24*time.Hour, 5))
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeleteEvent(ctx, other, e.ID), model.ErrForbidden)
	require.NoError(t, f.svc.DeleteEvent(ctx, org, e.ID))
	_, err = f.svc.GetEvent(ctx, e.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestListEvents_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.actor(t, "org", model.RoleOrganizer)
	for i := range 5 {
		_, err := f.svc.CreateEvent(ctx, org, input(fmt.Sprintf("Event %d", i), time.Duration(i+1)*time.Hour, 10))
		require.NoError(t, err)
	}

	page, err := f.svc.ListEvents(ctx, model.EventFilter{}, model.Page{First: 2})
	require.NoError(t, err)
	require.Equal(t, 5, page.TotalCount)
	require.Len(t, page.Edges, 2)
	require.True(t, page.PageInfo.HasNextPage)
	require.False(t, page.PageInfo.HasPreviousPage)
	require.Equal(t, "Event 0", page.Edges[0].Node.Title)

	var titles []string
	after := ""
	for {
		p, err := f.svc.ListEvents(ctx, model.EventFilter{}, model.Page{First: 2, After: after})
		require.NoError(t, err)
		for _, e := range p.Edges {
			titles = append(titles, e.Node.Title)
		}
		if !p.PageInfo.HasNextPage {
			break
		}
		after = *p.PageInfo.EndCursor
	}
	require.Equal(t, []string{"Event 0", "Event 1", "Event 2", "Event 3", "Event 4"}, titles)

	filtered, err := f.svc.ListEvents(ctx, model.EventFilter{Search: "event 3"}, model.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, filtered.TotalCount)
	require.False(t, filtered.PageInfo.HasNextPage)
	require.Equal(t, filtered.PageInfo.StartCursor, filtered.PageInfo.EndCursor)
}

func TestListEvents_SearchCoversLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.actor(t, "org", model.RoleOrganizer)

	jazz := input("Jazz Night", 2*time.Hour, 50)
	jazz.Location = ptr("Berlin Philharmonie")
	_, err := f.svc.CreateEvent(ctx, org, jazz)
	require.NoError(t, err)
	_, err = f.svc.CreateEvent(ctx, org, input("Rock Night", 3*time.Hour, 50))
	require.NoError(t, err)

	page, err := f.svc.ListEvents(ctx, model.EventFilter{Search: "berlin"}, model.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	require.Len(t, page.Edges, 1)
	require.Equal(t, "Jazz Night", page.Edges[0].Node.Title)

	// wildcard characters in the term are matched literally
	page, err = f.svc.ListEvents(ctx, model.EventFilter{Search: "%"}, model.Page{})
	require.NoError(t, err)
	require.Zero(t, page.TotalCount)

	sale := input("100% Vinyl", 4*time.Hour, 10)
	_, err = f.svc.CreateEvent(ctx, org, sale)
	require.NoError(t, err)
	page, err = f.svc.ListEvents(ctx, model.EventFilter{Search: "100%"}, model.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
}

func TestListEvents_EmptyAndBadCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.ListEvents(ctx, model.EventFilter{}, model.Page{})
	require.NoError(t, err)
	require.Empty(t, page.Edges)
	require.Nil(t, page.PageInfo.StartCursor)
	require.Nil(t, page.PageInfo.EndCursor)

	_, err = f.svc.ListEvents(ctx, model.EventFilter{}, model.Page{After: "bogus"})
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestAttendeesAndMyTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.actor(t, "org", model.RoleOrganizer)
	rival := f.actor(t, "rival", model.RoleOrganizer)
	alice := f.actor(t, "alice", model.RoleUser)
	e, err := f.svc.CreateEvent(ctx, org, input("Talk", 24*time.Hour, 5))
	require.NoError(t, err)

	engine := booking.New(f.store, f.bus, booking.WithClock(func() time.Time { return now }))
	_, err = engine.BookTicket(ctx, alice, e.ID, nil)
	require.NoError(t, err)

	people, err := f.svc.Attendees(ctx, org, e.ID)
	require.NoError(t, err)
	require.Len(t, people, 1)
	require.Equal(t, alice.UserID, people[0].ID)

	_, err = f.svc.Attendees(ctx, rival, e.ID)
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.Attendees(ctx, alice, e.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	mine, err := f.svc.MyTickets(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, e.ID, mine[0].Event.ID)

	_, err = f.svc.MyTickets(ctx, model.Actor{})
	require.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestUserAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.actor(t, "admin", model.RoleAdmin)
	bob := f.actor(t, "bob", model.RoleUser)

	_, err := f.svc.Users(ctx, bob)
	require.ErrorIs(t, err, model.ErrForbidden)
	users, err := f.svc.Users(ctx, admin)
	require.NoError(t, err)
	require.Len(t, users, 2)

	u, err := f.svc.UpdateUserRoles(ctx, admin, bob.UserID, []model.Role{"organizer", model.RoleUser, model.RoleUser})
	require.NoError(t, err)
	require.ElementsMatch(t, []model.Role{model.RoleOrganizer, model.RoleUser}, u.Roles)

	_, err = f.svc.UpdateUserRoles(ctx, admin, bob.UserID, []model.Role{"ROOT"})
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.svc.UpdateUserRoles(ctx, admin, bob.UserID, nil)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.svc.UpdateUserRoles(ctx, admin, admin.UserID, []model.Role{model.RoleUser})
	require.ErrorIs(t, err, model.ErrForbidden)

	require.ErrorIs(t, f.svc.DeleteUser(ctx, admin, admin.UserID), model.ErrForbidden)
	require.NoError(t, f.svc.DeleteUser(ctx, admin, bob.UserID))
	require.ErrorIs(t, f.svc.DeleteUser(ctx, admin, bob.UserID), model.ErrNotFound)
}
