// Package sqlstore implements credential and telemetry persistence over
// database/sql. The sqlite and postgres packages supply the driver, the
// schema and a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PipeOpsHQ/agent-backend/credential"
	"github.com/PipeOpsHQ/agent-backend/observe/store"
)

const defaultLimit = 200

// Dialect covers the few places where SQLite and PostgreSQL disagree.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
	// JSONText returns an expression extracting a top-level string field
	// from a JSON text column.
	JSONText func(column, field string) string
}

var SQLite = Dialect{
	Name: "sqlite",
	JSONText: func(column, field string) string {
		return fmt.Sprintf("json_extract(%s, '$.%s')", column, field)
	},
}

var Postgres = Dialect{
	Name:     "postgres",
	Numbered: true,
	JSONText: func(column, field string) string {
		return fmt.Sprintf("(%s::jsonb ->> '%s')", column, field)
	},
}

// DB is a combined credential and telemetry store sharing one pool.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

// SQL exposes the underlying pool for driver-specific maintenance.
func (s *DB) SQL() *sql.DB { return s.db }

// rebind rewrites '?' placeholders for dialects that number them.
func (s *DB) rebind(q string) string {
	if !s.dialect.Numbered {
		return q
	}
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

func (s *DB) exec(ctx context.Context, q string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.rebind(q), args...)
	return err
}

func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// timeLayout is fixed width so that text comparison orders rows by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

var (
	_ credential.Store = (*DB)(nil)
	_ store.Store      = (*DB)(nil)
)
