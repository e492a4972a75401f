package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PipeOpsHQ/agent-backend/observe"
	"github.com/PipeOpsHQ/agent-backend/observe/store"
)

func (s *DB) SaveEvent(ctx context.Context, event observe.Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	event.Normalize()
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}
	const q = `
INSERT INTO telemetry_events (
  id, conversation_id, event_type, name, status, duration_ms, metadata, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`
	err = s.exec(ctx, q,
		event.ID,
		nullString(event.ConversationID),
		string(event.Kind),
		event.Name,
		string(event.Status),
		event.DurationMs,
		string(meta),
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save telemetry event: %w", err)
	}
	return nil
}

func (s *DB) ListEvents(ctx context.Context, query store.ListQuery) ([]observe.Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var (
		where []string
		args  []any
	)
	if query.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, query.ConversationID)
	}
	if query.Kind != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(query.Kind))
	}
	limit, offset := page(query.Limit, query.Offset)
	args = append(args, limit, offset)

	q := `
SELECT id, conversation_id, event_type, name, status, duration_ms, metadata, created_at
FROM telemetry_events` + whereClause(where) + `
ORDER BY created_at DESC
LIMIT ? OFFSET ?;
`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list telemetry events: %w", err)
	}
	defer rows.Close()

	out := make([]observe.Event, 0, limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate telemetry events: %w", err)
	}
	return out, nil
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (observe.Event, error) {
	var (
		e         observe.Event
		convID    sql.NullString
		kind      string
		status    string
		meta      string
		createdAt string
	)
	if err := scanner.Scan(&e.ID, &convID, &kind, &e.Name, &status, &e.DurationMs, &meta, &createdAt); err != nil {
		return observe.Event{}, fmt.Errorf("failed to scan telemetry event: %w", err)
	}
	e.ConversationID = convID.String
	e.Kind = observe.Kind(kind)
	e.Status = observe.Status(status)
	e.CreatedAt = parseTime(createdAt)
	if meta != "" {
		_ = json.Unmarshal([]byte(meta), &e.Metadata)
	}
	e.Normalize()
	return e, nil
}

func (s *DB) SaveEvalResult(ctx context.Context, result observe.EvalResult) error {
	if s == nil || s.db == nil {
		return nil
	}
	result.Normalize()
	meta, err := json.Marshal(result.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode eval metadata: %w", err)
	}
	const q = `
INSERT INTO live_eval_results (id, conversation_id, scorer_id, score, passed, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	err = s.exec(ctx, q,
		result.ID,
		nullString(result.ConversationID),
		result.ScorerID,
		result.Score,
		result.Passed,
		string(meta),
		formatTime(result.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save eval result: %w", err)
	}
	return nil
}

func (s *DB) ListEvalResults(ctx context.Context, query store.EvalQuery) ([]observe.EvalResult, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var (
		where []string
		args  []any
	)
	if query.ConversationID != "" {
		where = append(where, "(conversation_id = ? OR "+s.dialect.JSONText("metadata", "conversationId")+" = ?)")
		args = append(args, query.ConversationID, query.ConversationID)
	}
	if query.ScorerID != "" {
		where = append(where, "scorer_id = ?")
		args = append(args, query.ScorerID)
	}
	limit, offset := page(query.Limit, query.Offset)
	args = append(args, limit, offset)

	q := `
SELECT id, conversation_id, scorer_id, score, passed, metadata, created_at
FROM live_eval_results` + whereClause(where) + `
ORDER BY created_at DESC
LIMIT ? OFFSET ?;
`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list eval results: %w", err)
	}
	defer rows.Close()

	out := make([]observe.EvalResult, 0, limit)
	for rows.Next() {
		var (
			r         observe.EvalResult
			convID    sql.NullString
			meta      string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &convID, &r.ScorerID, &r.Score, &r.Passed, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan eval result: %w", err)
		}
		r.ConversationID = convID.String
		r.CreatedAt = parseTime(createdAt)
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &r.Metadata)
		}
		r.Normalize()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate eval results: %w", err)
	}
	return out, nil
}

func (s *DB) AggregateMetrics(ctx context.Context, query store.MetricsQuery) (store.MetricsSummary, error) {
	if s == nil || s.db == nil {
		return store.MetricsSummary{}, nil
	}
	var since []any
	sinceClause := ""
	if query.Since != nil {
		sinceClause = " AND created_at >= ?"
		since = append(since, formatTime(*query.Since))
	}

	counter := func(kind observe.Kind, status observe.Status) (int64, error) {
		q := "SELECT COUNT(*) FROM telemetry_events WHERE event_type = ? AND status = ?" + sinceClause
		args := append([]any{string(kind), string(status)}, since...)
		var n int64
		if err := s.db.QueryRowContext(ctx, s.rebind(q), args...).Scan(&n); err != nil {
			return 0, err
		}
		return n, nil
	}

	metrics := store.MetricsSummary{}
	var err error
	if metrics.ToolCalls, err = counter(observe.KindTool, observe.StatusUsed); err != nil {
		return store.MetricsSummary{}, fmt.Errorf("metrics tool calls: %w", err)
	}
	if metrics.ToolFailures, err = counter(observe.KindTool, observe.StatusError); err != nil {
		return store.MetricsSummary{}, fmt.Errorf("metrics tool failures: %w", err)
	}
	passed, err := counter(observe.KindGuardrail, observe.StatusPassed)
	if err != nil {
		return store.MetricsSummary{}, fmt.Errorf("metrics guardrails passed: %w", err)
	}
	if metrics.GuardrailBlocked, err = counter(observe.KindGuardrail, observe.StatusBlocked); err != nil {
		return store.MetricsSummary{}, fmt.Errorf("metrics guardrails blocked: %w", err)
	}
	if metrics.GuardrailModified, err = counter(observe.KindGuardrail, observe.StatusModified); err != nil {
		return store.MetricsSummary{}, fmt.Errorf("metrics guardrails modified: %w", err)
	}
	metrics.GuardrailChecks = passed + metrics.GuardrailBlocked + metrics.GuardrailModified

	q := "SELECT COUNT(*), COALESCE(SUM(CASE WHEN passed THEN 1 ELSE 0 END), 0), COALESCE(AVG(score), 0) FROM live_eval_results WHERE 1 = 1" + sinceClause
	if err := s.db.QueryRowContext(ctx, s.rebind(q), since...).Scan(&metrics.EvalResults, &metrics.EvalPassed, &metrics.AvgEvalScore); err != nil {
		return store.MetricsSummary{}, fmt.Errorf("metrics eval results: %w", err)
	}
	return metrics, nil
}

// nullString stores an absent conversation id as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "\nWHERE " + strings.Join(conds, " AND ")
}

// Since returns a pointer to now minus d, for MetricsQuery windows.
func Since(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(-d)
	return &t
}
