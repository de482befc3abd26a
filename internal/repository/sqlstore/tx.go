package sqlstore

import (
	"context"
	"database/sql"

	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
)

const eventColumns = `e.id, e.title, e.description, e.location, e.start_at, e.end_at, e.capacity, e.organizer_id, e.created_at, e.updated_at`

const ticketColumns = `t.id, t.user_id, t.event_id, t.type, t.status, t.created_at, t.updated_at`

// sqlTx implements repository.Tx on one *sql.Tx.
type sqlTx struct{ conn conn }

var _ repository.Tx = (*sqlTx)(nil)

func scanEvent(r rowScanner, extra ...any) (*model.Event, error) {
	var (
		e           model.Event
		description sql.NullString
		location    sql.NullString
	)
	dest := []any{&e.ID, &e.Title, &description, &location, &e.StartAt, &e.EndAt, &e.Capacity, &e.OrganizerID, &e.CreatedAt, &e.UpdatedAt}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	e.Description = stringPtr(description)
	e.Location = stringPtr(location)
	return &e, nil
}

func scanTicket(r rowScanner) (*model.Ticket, error) {
	var (
		t     model.Ticket
		typ   sql.NullString
		state string
	)
	if err := r.Scan(&t.ID, &t.UserID, &t.EventID, &typ, &state, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = stringPtr(typ)
	t.Status = model.TicketStatus(state)
	return &t, nil
}

// LockEvent reads the event row with FOR UPDATE. The lock covers the event
// row only; the confirmed count is a separate statement issued while the
// lock is held, so it always sees the latest committed tickets.
func (t *sqlTx) LockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	e, err := scanEvent(t.conn.queryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ? FOR UPDATE`, eventID))
	if err != nil {
		return nil, t.conn.scanErr(err)
	}
	if e.Booked, err = t.CountConfirmedTickets(ctx, eventID); err != nil {
		return nil, err
	}
	return e, nil
}

func (t *sqlTx) CountConfirmedTickets(ctx context.Context, eventID string) (int, error) {
	var n int
	err := t.conn.queryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE event_id = ? AND status = 'CONFIRMED'`, eventID).Scan(&n)
	if err != nil {
		return 0, t.conn.scanErr(err)
	}
	return n, nil
}

func (t *sqlTx) FindTicket(ctx context.Context, userID, eventID string) (*model.Ticket, error) {
	tk, err := scanTicket(t.conn.queryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets t WHERE t.user_id = ? AND t.event_id = ?`, userID, eventID))
	if err != nil {
		return nil, t.conn.scanErr(err)
	}
	return tk, nil
}

func (t *sqlTx) FindTicketByID(ctx context.Context, ticketID string) (*model.Ticket, error) {
	tk, err := scanTicket(t.conn.queryRow(ctx, `SELECT `+ticketColumns+` FROM tickets t WHERE t.id = ?`, ticketID))
	if err != nil {
		return nil, t.conn.scanErr(err)
	}
	return tk, nil
}

// UpsertTicket issues the dialect's conditional insert and reads the row
// back by its unique key.
func (t *sqlTx) UpsertTicket(ctx context.Context, in repository.TicketUpsert) (*model.Ticket, error) {
	now := utcNow()
	if _, err := t.conn.exec(ctx, t.conn.d.UpsertTicket(),
		in.NewID, in.UserID, in.EventID, nullString(in.Type), now, now); err != nil {
		return nil, err
	}
	return t.FindTicket(ctx, in.UserID, in.EventID)
}

func (t *sqlTx) UpdateTicketStatus(ctx context.Context, ticketID string, from, to model.TicketStatus) (*model.Ticket, error) {
	res, err := t.conn.exec(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), utcNow(), ticketID, string(from))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, repository.ErrNotFound
	}
	return t.FindTicketByID(ctx, ticketID)
}

func (t *sqlTx) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return getUser(ctx, t.conn, userID)
}

// UpdateEvent writes every mutable column of e. Callers hold the row lock
// from LockEvent, so the row is known to exist.
func (t *sqlTx) UpdateEvent(ctx context.Context, e *model.Event) error {
	e.UpdatedAt = utcNow()
	_, err := t.conn.exec(ctx,
		`UPDATE events SET title = ?, description = ?, location = ?, start_at = ?, end_at = ?, capacity = ?, updated_at = ? WHERE id = ?`,
		e.Title, nullString(e.Description), nullString(e.Location), e.StartAt.UTC(), e.EndAt.UTC(), e.Capacity, e.UpdatedAt, e.ID)
	return err
}
