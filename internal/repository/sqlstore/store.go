// Package sqlstore implements the repository gateway on database/sql. The
// same queries serve MySQL (go-sql-driver/mysql) and PostgreSQL (pgx
// stdlib driver); the Dialect smooths over placeholders, the ticket upsert,
// isolation levels and error codes.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a repository.Store backed by a *sql.DB.
type Store struct {
	db *sql.DB
	d  Dialect
}

var _ repository.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB, d Dialect) *Store { return &Store{db: db, d: d} }

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() repository.UserRepository     { return &userRepo{conn: s.conn(s.db)} }
func (s *Store) Events() repository.EventRepository   { return &eventRepo{conn: s.conn(s.db)} }
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{conn: s.conn(s.db)} }
func (s *Store) Tokens() repository.TokenRepository   { return &tokenRepo{conn: s.conn(s.db)} }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

// RunInTx begins a transaction with the dialect's isolation level, runs fn
// and commits. Errors returned by fn are passed through untouched so
// business errors keep their identity; driver errors are classified.
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.d.TxOptions())
	if err != nil {
		return s.d.Classify(fmt.Errorf("begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{conn: s.conn(tx)}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.d.Classify(fmt.Errorf("commit transaction: %w", err))
	}
	committed = true
	return nil
}

// conn binds a querier to the dialect so every call site rebinds and
// classifies the same way.
func (s *Store) conn(q querier) conn { return conn{q: q, d: s.d} }

type conn struct {
	q querier
	d Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.d.Rebind(query), args...)
	if err != nil {
		return nil, c.d.Classify(err)
	}
	return res, nil
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.q.QueryContext(ctx, c.d.Rebind(query), args...)
	if err != nil {
		return nil, c.d.Classify(err)
	}
	return rows, nil
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.Rebind(query), args...)
}

// scanErr normalises the error of a single-row Scan.
func (c conn) scanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return c.d.Classify(err)
}

// ---- column helpers ----

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func encodeRoles(roles []model.Role) string {
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}

func decodeRoles(s string) []model.Role {
	roles := []model.Role{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, model.Role(p))
		}
	}
	return roles
}

func utcNow() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
