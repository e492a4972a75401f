// Package clickhouse ships telemetry events and eval results to ClickHouse
// for analytics. Writes are buffered and batch-inserted in the background.
package clickhouse

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/observe"
)

const eventsDDL = `
CREATE TABLE IF NOT EXISTS telemetry_events (
	id String,
	conversation_id String,
	event_type LowCardinality(String),
	name LowCardinality(String),
	status LowCardinality(String),
	duration_ms Int64,
	metadata String,
	created_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (event_type, created_at)
`

const evalDDL = `
CREATE TABLE IF NOT EXISTS live_eval_results (
	id String,
	conversation_id String,
	scorer_id LowCardinality(String),
	score Float64,
	passed UInt8,
	metadata String,
	created_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (scorer_id, created_at)
`

// Writer implements observe.Sink and records eval results. Emit and
// SaveEvalResult never block on the network.
type Writer struct {
	conn   driver.Conn
	events *batcher[observe.Event]
	evals  *batcher[observe.EvalResult]
	logger *zap.Logger
}

// Open connects using dsn, creates the tables if needed and starts the
// flush loops. TLS is enabled unless the DSN configures it.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if opts.TLS == nil && opts.Protocol == clickhouse.Native && !isLocal(opts.Addr) {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	for _, ddl := range []string{eventsDDL, evalDDL} {
		if err := conn.Exec(ctx, ddl); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("create clickhouse table: %w", err)
		}
	}

	w := &Writer{conn: conn, logger: logger}
	w.events = newBatcher("telemetry_events", w.flushEvents, logger).start()
	w.evals = newBatcher("live_eval_results", w.flushEvals, logger).start()
	return w, nil
}

func (w *Writer) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()
	w.events.add(event)
	return nil
}

func (w *Writer) SaveEvalResult(_ context.Context, result observe.EvalResult) error {
	result.Normalize()
	w.evals.add(result)
	return nil
}

// Close drains both buffers and closes the connection.
func (w *Writer) Close() error {
	w.events.close()
	w.evals.close()
	return w.conn.Close()
}

func (w *Writer) flushEvents(events []observe.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO telemetry_events (
			id, conversation_id, event_type, name, status, duration_ms, metadata, created_at
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}
	for _, e := range events {
		if err := batch.Append(
			e.ID,
			e.ConversationID,
			string(e.Kind),
			e.Name,
			string(e.Status),
			e.DurationMs,
			encodeMetadata(e.Metadata),
			e.CreatedAt,
		); err != nil {
			w.logger.Error("clickhouse append event failed", zap.String("id", e.ID), zap.Error(err))
		}
	}
	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed", zap.Int("batch_size", len(events)), zap.Error(err))
	}
}

func (w *Writer) flushEvals(results []observe.EvalResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO live_eval_results (
			id, conversation_id, scorer_id, score, passed, metadata, created_at
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}
	for _, r := range results {
		var passed uint8
		if r.Passed {
			passed = 1
		}
		if err := batch.Append(
			r.ID,
			r.ConversationID,
			r.ScorerID,
			r.Score,
			passed,
			encodeMetadata(r.Metadata),
			r.CreatedAt,
		); err != nil {
			w.logger.Error("clickhouse append eval result failed", zap.String("id", r.ID), zap.Error(err))
		}
	}
	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed", zap.Int("batch_size", len(results)), zap.Error(err))
	}
}

func encodeMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func isLocal(addrs []string) bool {
	for _, a := range addrs {
		if len(a) >= 9 && (a[:9] == "localhost" || a[:9] == "127.0.0.1") {
			continue
		}
		return false
	}
	return true
}

var _ observe.Sink = (*Writer)(nil)
