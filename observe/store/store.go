package store

import (
	"context"
	"time"

	"github.com/PipeOpsHQ/agent-backend/observe"
)

type ListQuery struct {
	ConversationID string
	Kind           observe.Kind
	Limit          int
	Offset         int
}

// EvalQuery filters eval results. ConversationID matches the first-class
// column or, for rows written before it existed, metadata.conversationId.
type EvalQuery struct {
	ConversationID string
	ScorerID       string
	Limit          int
	Offset         int
}

type MetricsQuery struct {
	Since *time.Time
}

type MetricsSummary struct {
	ToolCalls         int64   `json:"toolCalls"`
	ToolFailures      int64   `json:"toolFailures"`
	GuardrailChecks   int64   `json:"guardrailChecks"`
	GuardrailBlocked  int64   `json:"guardrailBlocked"`
	GuardrailModified int64   `json:"guardrailModified"`
	EvalResults       int64   `json:"evalResults"`
	EvalPassed        int64   `json:"evalPassed"`
	AvgEvalScore      float64 `json:"avgEvalScore"`
}

// Store persists telemetry events and live eval results. Both are
// append-only.
type Store interface {
	SaveEvent(ctx context.Context, event observe.Event) error
	ListEvents(ctx context.Context, query ListQuery) ([]observe.Event, error)
	SaveEvalResult(ctx context.Context, result observe.EvalResult) error
	ListEvalResults(ctx context.Context, query EvalQuery) ([]observe.EvalResult, error)
	AggregateMetrics(ctx context.Context, query MetricsQuery) (MetricsSummary, error)
	Close() error
}

// NewSink returns a synchronous sink writing into s.
func NewSink(s Store) observe.Sink {
	return observe.SinkFunc(s.SaveEvent)
}

// GuardrailRecord is the flattened view of a guardrail event served to
// dashboards.
type GuardrailRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	GuardrailName  string    `json:"guardrail_name"`
	Status         string    `json:"status"`
	Type           string    `json:"type"`
	InputData      string    `json:"input_data,omitempty"`
	OutputData     string    `json:"output_data,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func ToGuardrailRecord(e observe.Event) GuardrailRecord {
	rec := GuardrailRecord{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		GuardrailName:  e.Name,
		Status:         string(e.Status),
		CreatedAt:      e.CreatedAt,
	}
	rec.Type, _ = e.Metadata["type"].(string)
	if rec.Type == "output" {
		rec.InputData, _ = e.Metadata["output"].(string)
		rec.OutputData, _ = e.Metadata["modifiedOutput"].(string)
	} else {
		rec.InputData, _ = e.Metadata["inputText"].(string)
		rec.OutputData, _ = e.Metadata["modifiedInput"].(string)
	}
	return rec
}
