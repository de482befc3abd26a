package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Migration is one named schema step. Statements run one at a time because
// the MySQL driver rejects multi-statement Exec by default.
type Migration struct {
	Name string
	Up   []string
}

var mysqlMigrations = []Migration{
	{
		Name: "initial_schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id            CHAR(36)     NOT NULL PRIMARY KEY,
				name          VARCHAR(255) NOT NULL,
				email         VARCHAR(255) NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				roles         VARCHAR(64)  NOT NULL DEFAULT 'USER',
				created_at    DATETIME(6)  NOT NULL,
				updated_at    DATETIME(6)  NOT NULL,
				UNIQUE KEY uq_users_email (email)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS events (
				id           CHAR(36)     NOT NULL PRIMARY KEY,
				title        VARCHAR(255) NOT NULL,
				description  TEXT         NULL,
				location     VARCHAR(255) NULL,
				start_at     DATETIME(6)  NOT NULL,
				end_at       DATETIME(6)  NOT NULL,
				capacity     INT          NOT NULL,
				organizer_id CHAR(36)     NOT NULL,
				created_at   DATETIME(6)  NOT NULL,
				updated_at   DATETIME(6)  NOT NULL,
				KEY idx_events_start (start_at, id),
				CONSTRAINT fk_events_organizer FOREIGN KEY (organizer_id) REFERENCES users (id) ON DELETE CASCADE,
				CONSTRAINT chk_events_capacity CHECK (capacity > 0),
				CONSTRAINT chk_events_window CHECK (start_at < end_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS tickets (
				id         CHAR(36)     NOT NULL PRIMARY KEY,
				user_id    CHAR(36)     NOT NULL,
				event_id   CHAR(36)     NOT NULL,
				type       VARCHAR(255) NULL,
				status     VARCHAR(16)  NOT NULL,
				created_at DATETIME(6)  NOT NULL,
				updated_at DATETIME(6)  NOT NULL,
				UNIQUE KEY uq_tickets_user_event (user_id, event_id),
				KEY idx_tickets_event_status (event_id, status),
				CONSTRAINT fk_tickets_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
				CONSTRAINT fk_tickets_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS refresh_tokens (
				id         CHAR(36)    NOT NULL PRIMARY KEY,
				user_id    CHAR(36)    NOT NULL,
				token_hash CHAR(64)    NOT NULL,
				expires_at DATETIME(6) NOT NULL,
				revoked_at DATETIME(6) NULL,
				created_at DATETIME(6) NOT NULL,
				UNIQUE KEY uq_refresh_tokens_hash (token_hash),
				CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
}

var postgresMigrations = []Migration{
	{
		Name: "initial_schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id            UUID         PRIMARY KEY,
				name          TEXT         NOT NULL,
				email         TEXT         NOT NULL UNIQUE,
				password_hash TEXT         NOT NULL,
				roles         TEXT         NOT NULL DEFAULT 'USER',
				created_at    TIMESTAMPTZ  NOT NULL,
				updated_at    TIMESTAMPTZ  NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS events (
				id           UUID        PRIMARY KEY,
				title        TEXT        NOT NULL,
				description  TEXT,
				location     TEXT,
				start_at     TIMESTAMPTZ NOT NULL,
				end_at       TIMESTAMPTZ NOT NULL,
				capacity     INTEGER     NOT NULL CHECK (capacity > 0),
				organizer_id UUID        NOT NULL REFERENCES users (id) ON DELETE CASCADE,
				created_at   TIMESTAMPTZ NOT NULL,
				updated_at   TIMESTAMPTZ NOT NULL,
				CHECK (start_at < end_at)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_events_start ON events (start_at, id)`,
			`CREATE TABLE IF NOT EXISTS tickets (
				id         UUID        PRIMARY KEY,
				user_id    UUID        NOT NULL REFERENCES users (id) ON DELETE CASCADE,
				event_id   UUID        NOT NULL REFERENCES events (id) ON DELETE CASCADE,
				type       TEXT,
				status     TEXT        NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				UNIQUE (user_id, event_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tickets_event_status ON tickets (event_id, status)`,
			`CREATE TABLE IF NOT EXISTS refresh_tokens (
				id         UUID        PRIMARY KEY,
				user_id    UUID        NOT NULL REFERENCES users (id) ON DELETE CASCADE,
				token_hash TEXT        NOT NULL UNIQUE,
				expires_at TIMESTAMPTZ NOT NULL,
				revoked_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL
			)`,
		},
	},
}

// Migrate applies every migration of the driver not yet recorded in the
// schema_migrations table.
func Migrate(ctx context.Context, db *sql.DB, driver string, log *zap.Logger) error {
	migrations, create, insert := mysqlMigrations,
		`CREATE TABLE IF NOT EXISTS schema_migrations (name VARCHAR(128) NOT NULL PRIMARY KEY, run_at DATETIME(6) NOT NULL)`,
		`INSERT INTO schema_migrations (name, run_at) VALUES (?, ?)`
	exists := `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`
	if driver == "postgres" {
		migrations = postgresMigrations
		create = `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, run_at TIMESTAMPTZ NOT NULL)`
		insert = `INSERT INTO schema_migrations (name, run_at) VALUES ($1, $2)`
		exists = `SELECT COUNT(*) FROM schema_migrations WHERE name = $1`
	}

	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var n int
		if err := db.QueryRowContext(ctx, exists, m.Name).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if n > 0 {
			continue
		}
		for i, stmt := range m.Up {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s step %d: %w", m.Name, i+1, err)
			}
		}
		if _, err := db.ExecContext(ctx, insert, m.Name, time.Now().UTC()); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		log.Info("migration applied", zap.String("name", m.Name), zap.String("driver", driver))
	}
	return nil
}
