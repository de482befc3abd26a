package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
	"github.com/iliyamo/eventflow/internal/repository/memstore"
)

func seed(t *testing.T, s *memstore.Store) (*model.User, *model.Event) {
	t.Helper()
	ctx := context.Background()
	u := &model.User{Name: "Org", Email: "Org@Example.com ", PasswordHash: "x", Roles: []model.Role{model.RoleOrganizer}}
	require.NoError(t, s.Users().Create(ctx, u))
	start := time.Now().Add(time.Hour)
	e := &model.Event{Title: "Launch", StartAt: start, EndAt: start.Add(time.Hour), Capacity: 2, OrganizerID: u.ID}
	require.NoError(t, s.Events().Create(ctx, e))
	return u, e
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	s := memstore.New()
	u, e := seed(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx repository.Tx) error {
		_, err := tx.UpsertTicket(ctx, repository.TicketUpsert{NewID: "t-1", UserID: u.ID, EventID: e.ID})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Events().GetByID(ctx, e.ID)
	require.NoError(t, err)
	require.Zero(t, got.Booked)
}

func TestUpsertTicket_StateMachine(t *testing.T) {
	s := memstore.New()
	u, e := seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.RunInTx(ctx, func(tx repository.Tx) error {
		first, err := tx.UpsertTicket(ctx, repository.TicketUpsert{NewID: "t-1", UserID: u.ID, EventID: e.ID})
		require.NoError(t, err)
		require.Equal(t, model.TicketConfirmed, first.Status)

		// A confirmed row is left as is.
		again, err := tx.UpsertTicket(ctx, repository.TicketUpsert{NewID: "t-2", UserID: u.ID, EventID: e.ID})
		require.NoError(t, err)
		require.Equal(t, "t-1", again.ID)

		_, err = tx.UpdateTicketStatus(ctx, "t-1", model.TicketConfirmed, model.TicketCancelled)
		require.NoError(t, err)
		_, err = tx.UpdateTicketStatus(ctx, "t-1", model.TicketConfirmed, model.TicketCancelled)
		require.ErrorIs(t, err, repository.ErrNotFound)

		flipped, err := tx.UpsertTicket(ctx, repository.TicketUpsert{NewID: "t-3", UserID: u.ID, EventID: e.ID})
		require.NoError(t, err)
		require.Equal(t, "t-1", flipped.ID)
		require.Equal(t, model.TicketConfirmed, flipped.Status)

		n, err := tx.CountConfirmedTickets(ctx, e.ID)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		return nil
	}))
}

func TestUsers_EmailIsUniqueAndNormalised(t *testing.T) {
	s := memstore.New()
	u, _ := seed(t, s)
	ctx := context.Background()

	require.Equal(t, "org@example.com", u.Email)
	got, err := s.Users().GetByEmail(ctx, "ORG@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	err = s.Users().Create(ctx, &model.User{Name: "Dup", Email: "org@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestUsers_DeleteCascades(t *testing.T) {
	s := memstore.New()
	u, e := seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tokens().StoreRefresh(ctx, u.ID, "hash", time.Now().Add(time.Hour)))

	require.NoError(t, s.Users().Delete(ctx, u.ID))

	_, err := s.Events().GetByID(ctx, e.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Tokens().ValidateRefresh(ctx, "hash")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, s.Users().Delete(ctx, u.ID), repository.ErrNotFound)
}

func TestEvents_ListCursorAndFilter(t *testing.T) {
	s := memstore.New()
	u, first := seed(t, s)
	ctx := context.Background()

	loc := "Berlin"
	for i := 1; i <= 3; i++ {
		start := first.StartAt.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Events().Create(ctx, &model.Event{
			Title: "Talk", Location: &loc, StartAt: start, EndAt: start.Add(time.Hour), Capacity: 1, OrganizerID: u.ID,
		}))
	}

	page, err := s.Events().List(ctx, model.EventFilter{}, model.Page{First: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, first.ID, page[0].ID)
	require.NotNil(t, page[0].Organizer)

	rest, err := s.Events().List(ctx, model.EventFilter{}, model.Page{First: 10, After: page[1].ID})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.True(t, rest[0].StartAt.After(page[1].StartAt))

	berlin, err := s.Events().Count(ctx, model.EventFilter{Location: "berl"})
	require.NoError(t, err)
	require.Equal(t, 3, berlin)

	launch, err := s.Events().List(ctx, model.EventFilter{Search: "LAUNCH"}, model.Page{First: 10})
	require.NoError(t, err)
	require.Len(t, launch, 1)
}

func TestTokens_RevokeAndExpire(t *testing.T) {
	s := memstore.New()
	u, _ := seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Tokens().StoreRefresh(ctx, u.ID, "live", time.Now().Add(time.Hour)))
	require.NoError(t, s.Tokens().StoreRefresh(ctx, u.ID, "old", time.Now().Add(-time.Second)))

	owner, err := s.Tokens().ValidateRefresh(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, u.ID, owner)
	_, err = s.Tokens().ValidateRefresh(ctx, "old")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.Tokens().RevokeAllForUser(ctx, u.ID))
	_, err = s.Tokens().ValidateRefresh(ctx, "live")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
