package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the subset of pgxpool.Pool used by the store.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB is the relational alert store.
type DB struct {
	Pool     Pool
	timezone string
}

// New connects to Postgres. timezone is the zone alert datetimes are stored in.
func New(ctx context.Context, dsn, timezone string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &DB{Pool: pool, timezone: timezone}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool, timezone string) *DB {
	return &DB{Pool: pool, timezone: timezone}
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
    datetime   TIMESTAMP        NOT NULL,
    value      DOUBLE PRECISION NOT NULL,
    version    INTEGER          NOT NULL,
    type       VARCHAR(5),
    sended     BOOLEAN          NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    PRIMARY KEY (datetime, version)
);
CREATE INDEX IF NOT EXISTS alerts_version_type_sended_idx ON alerts (version, type, sended)`

// EnsureSchema creates the alerts table if it does not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
