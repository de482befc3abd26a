package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iliyamo/eventflow/internal/repository"
)

// Dialect captures what differs between the supported SQL engines.
// Queries in this package are written with `?` placeholders and passed
// through Rebind before execution.
type Dialect interface {
	Name() string
	Rebind(query string) string
	// UpsertTicket is the conditional write behind Tx.UpsertTicket. Its
	// arguments are id, user_id, event_id, type, created_at, updated_at.
	UpsertTicket() string
	TxOptions() *sql.TxOptions
	// Classify maps driver errors onto repository sentinels and returns
	// any other error unchanged.
	Classify(err error) error
}

// MySQL serialises bookings with the event row lock at READ COMMITTED so
// every statement after the lock sees the latest committed tickets.
type MySQL struct{}

func (MySQL) Name() string               { return "mysql" }
func (MySQL) Rebind(q string) string     { return q }
func (MySQL) TxOptions() *sql.TxOptions { return &sql.TxOptions{Isolation: sql.LevelReadCommitted} }

// status is assigned last: MySQL evaluates ON DUPLICATE KEY assignments left
// to right, so the earlier IFs still see the old status.
func (MySQL) UpsertTicket() string {
	return `INSERT INTO tickets (id, user_id, event_id, type, status, created_at, updated_at)
	        VALUES (?, ?, ?, ?, 'CONFIRMED', ?, ?)
	        ON DUPLICATE KEY UPDATE
	            type = IF(status = 'CANCELLED', VALUES(type), type),
	            updated_at = IF(status = 'CANCELLED', VALUES(updated_at), updated_at),
	            status = IF(status = 'CANCELLED', 'CONFIRMED', status)`
}

func (MySQL) Classify(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case 1213, 1205: // deadlock, lock wait timeout
		return fmt.Errorf("%w: %v", repository.ErrSerialization, err)
	case 1062: // duplicate entry
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

// Postgres runs every transaction at SERIALIZABLE through the pgx stdlib
// driver and retries on serialization failures and deadlocks.
type Postgres struct{}

func (Postgres) Name() string               { return "postgres" }
func (Postgres) TxOptions() *sql.TxOptions { return &sql.TxOptions{Isolation: sql.LevelSerializable} }

// Rebind rewrites `?` placeholders as $1, $2, ... Queries in this package
// never carry a literal question mark.
func (Postgres) Rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (Postgres) UpsertTicket() string {
	return `INSERT INTO tickets (id, user_id, event_id, type, status, created_at, updated_at)
	        VALUES (?, ?, ?, ?, 'CONFIRMED', ?, ?)
	        ON CONFLICT (user_id, event_id) DO UPDATE
	            SET status = 'CONFIRMED', type = EXCLUDED.type, updated_at = EXCLUDED.updated_at
	            WHERE tickets.status = 'CANCELLED'`
}

func (Postgres) Classify(err error) error {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %v", repository.ErrSerialization, err)
	case "23505": // unique_violation
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

// DialectFor returns the dialect registered under a DB_DRIVER name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return MySQL{}, nil
	case "postgres", "pgx":
		return Postgres{}, nil
	}
	return nil, fmt.Errorf("unsupported sql driver %q", driver)
}
