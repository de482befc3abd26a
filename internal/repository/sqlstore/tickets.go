package sqlstore

import (
	"context"
	"database/sql"

	"github.com/iliyamo/eventflow/internal/model"
)

type ticketRepo struct{ conn conn }

// ListByUser returns the user's tickets in every status with their events,
// newest first.
func (r *ticketRepo) ListByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
	rows, err := r.conn.query(ctx,
		`SELECT `+ticketColumns+`, `+eventColumns+`
		   FROM tickets t JOIN events e ON e.id = t.event_id
		  WHERE t.user_id = ?
		  ORDER BY t.created_at DESC, t.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []model.Ticket{}
	for rows.Next() {
		var (
			tk          model.Ticket
			typ         sql.NullString
			state       string
			e           model.Event
			description sql.NullString
			location    sql.NullString
		)
		if err := rows.Scan(&tk.ID, &tk.UserID, &tk.EventID, &typ, &state, &tk.CreatedAt, &tk.UpdatedAt,
			&e.ID, &e.Title, &description, &location, &e.StartAt, &e.EndAt, &e.Capacity, &e.OrganizerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		tk.Type = stringPtr(typ)
		tk.Status = model.TicketStatus(state)
		e.Description = stringPtr(description)
		e.Location = stringPtr(location)
		tk.Event = &e
		tickets = append(tickets, tk)
	}
	return tickets, rows.Err()
}

// ListAttendees returns the users holding a CONFIRMED ticket for the event.
func (r *ticketRepo) ListAttendees(ctx context.Context, eventID string) ([]model.User, error) {
	rows, err := r.conn.query(ctx,
		`SELECT `+userColumns+`
		   FROM tickets t JOIN users u ON u.id = t.user_id
		  WHERE t.event_id = ? AND t.status = 'CONFIRMED'
		  ORDER BY t.created_at, u.id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
