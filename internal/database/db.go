package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Options describes how to reach the relational store.
type Options struct {
	Driver  string // "mysql" or "postgres"
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
	SSLMode string // postgres only
}

// DSN renders the driver-specific connection string.
func (o Options) DSN() string {
	if o.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			o.Host, o.Port, o.User, o.Pass, o.Name, o.SSLMode)
	}
	c := mysql.NewConfig()
	c.User = o.User
	c.Passwd = o.Pass
	c.Net = "tcp"
	c.Addr = o.Host + ":" + o.Port
	c.DBName = o.Name
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// sqlDriverName maps the configured driver onto a registered database/sql
// driver. PostgreSQL goes through the pgx stdlib adapter.
func (o Options) sqlDriverName() string {
	if o.Driver == "postgres" {
		return "pgx"
	}
	return "mysql"
}

// Open connects and verifies the connection. It retries a few times so the
// server can start alongside a database container.
func Open(ctx context.Context, o Options, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open(o.sqlDriverName(), o.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	const attempts = 5
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		log.Warn("database ping failed",
			zap.String("driver", o.Driver), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < attempts {
			select {
			case <-ctx.Done():
				_ = db.Close()
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("connect to %s: %w", o.Driver, err)
}
