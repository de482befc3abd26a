package sqlstore

import (
	"context"
	"strings"

	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
)

const userColumns = `u.id, u.name, u.email, u.password_hash, u.roles, u.created_at, u.updated_at`

type userRepo struct{ conn conn }

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(r rowScanner) (*model.User, error) {
	var (
		u     model.User
		roles string
	)
	if err := r.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Roles = decodeRoles(roles)
	return &u, nil
}

// Create inserts the user. Email is normalised; a taken email yields
// repository.ErrDuplicate.
func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := utcNow()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.conn.exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, roles, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, encodeRoles(u.Roles), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, r.conn, id)
}

func getUser(ctx context.Context, c conn, id string) (*model.User, error) {
	u, err := scanUser(c.queryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id))
	if err != nil {
		return nil, c.scanErr(err)
	}
	return u, nil
}

// GetByEmail fetches a user by normalised email.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.conn.queryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = ?`, email))
	if err != nil {
		return nil, r.conn.scanErr(err)
	}
	return u, nil
}

// List returns every user, newest first.
func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.conn.query(ctx, `SELECT `+userColumns+` FROM users u ORDER BY u.created_at DESC`)
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

func (r *userRepo) UpdateRoles(ctx context.Context, id string, roles []model.Role) (*model.User, error) {
	res, err := r.conn.exec(ctx, `UPDATE users SET roles = ?, updated_at = ? WHERE id = ?`, encodeRoles(roles), utcNow(), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the user; tickets, events and refresh tokens cascade.
func (r *userRepo) Delete(ctx context.Context, id string) error {
	res, err := r.conn.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
