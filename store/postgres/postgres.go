// Package postgres opens the combined credential and telemetry store on
// PostgreSQL through pgx's database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/PipeOpsHQ/agent-backend/store/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

type options struct {
	maxOpenConns int
	maxIdleConns int
	connLifetime time.Duration
}

type Option func(*options)

func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connLifetime = d
		}
	}
}

func New(ctx context.Context, dsn string, opts ...Option) (*sqlstore.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	o := options{maxOpenConns: 10, maxIdleConns: 5, connLifetime: 30 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(o.connLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return sqlstore.New(db, sqlstore.Postgres), nil
}
