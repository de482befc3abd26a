package sqlstore

import (
	"context"
	"strings"

	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
)

type eventRepo struct{ conn conn }

// eventSelect joins the organizer and counts confirmed tickets per row.
const eventSelect = `SELECT ` + eventColumns + `,
	(SELECT COUNT(*) FROM tickets t WHERE t.event_id = e.id AND t.status = 'CONFIRMED') AS booked,
	` + userColumns + `
	FROM events e JOIN users u ON u.id = e.organizer_id`

func scanEventRow(r rowScanner) (*model.Event, error) {
	var (
		booked int
		u      model.User
		roles  string
	)
	e, err := scanEvent(r, &booked, &u.ID, &u.Name, &u.Email, &u.PasswordHash, &roles, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Roles = decodeRoles(roles)
	e.Booked = booked
	e.Organizer = &u
	return e, nil
}

func (r *eventRepo) Create(ctx context.Context, e *model.Event) error {
	now := utcNow()
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := r.conn.exec(ctx,
		`INSERT INTO events (id, title, description, location, start_at, end_at, capacity, organizer_id, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Title, nullString(e.Description), nullString(e.Location), e.StartAt.UTC(), e.EndAt.UTC(),
		e.Capacity, e.OrganizerID, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEventRow(r.conn.queryRow(ctx, eventSelect+` WHERE e.id = ?`, id))
	if err != nil {
		return nil, r.conn.scanErr(err)
	}
	return e, nil
}

// likeEscaper quotes the LIKE wildcards with '!'. A backslash escape would
// itself need escaping inside MySQL string literals.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern is a case-insensitive substring pattern for s, with s
// matched literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// whereFilter renders f as a WHERE clause over the alias e.
func whereFilter(f model.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		like := containsPattern(s)
		conds = append(conds, `(LOWER(e.title) LIKE ? ESCAPE '!'
			OR LOWER(COALESCE(e.description, '')) LIKE ? ESCAPE '!'
			OR LOWER(COALESCE(e.location, '')) LIKE ? ESCAPE '!')`)
		args = append(args, like, like, like)
	}
	if l := strings.TrimSpace(f.Location); l != "" {
		conds = append(conds, `LOWER(COALESCE(e.location, '')) LIKE ? ESCAPE '!'`)
		args = append(args, containsPattern(l))
	}
	if f.StartDate != nil {
		conds = append(conds, `e.start_at >= ?`)
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		conds = append(conds, `e.end_at <= ?`)
		args = append(args, f.EndDate.UTC())
	}
	if f.OrganizerID != "" {
		conds = append(conds, `e.organizer_id = ?`)
		args = append(args, f.OrganizerID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns up to p.First events matching f ordered by (start_at, id),
// starting after the event whose id is p.After.
func (r *eventRepo) List(ctx context.Context, f model.EventFilter, p model.Page) ([]model.Event, error) {
	where, args := whereFilter(f)
	if p.After != "" {
		cursor := `(e.start_at > (SELECT c.start_at FROM events c WHERE c.id = ?)
			OR (e.start_at = (SELECT c.start_at FROM events c WHERE c.id = ?) AND e.id > ?))`
		if where == "" {
			where = " WHERE " + cursor
		} else {
			where += " AND " + cursor
		}
		args = append(args, p.After, p.After, p.After)
	}
	args = append(args, p.First)

	rows, err := r.conn.query(ctx, eventSelect+where+` ORDER BY e.start_at, e.id LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []model.Event{}
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *eventRepo) Count(ctx context.Context, f model.EventFilter) (int, error) {
	where, args := whereFilter(f)
	var n int
	if err := r.conn.queryRow(ctx, `SELECT COUNT(*) FROM events e`+where, args...).Scan(&n); err != nil {
		return 0, r.conn.scanErr(err)
	}
	return n, nil
}

// Delete removes the event; its tickets cascade.
func (r *eventRepo) Delete(ctx context.Context, id string) error {
	res, err := r.conn.exec(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
