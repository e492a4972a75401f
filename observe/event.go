package observe

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags what produced an event. Tool and guardrail events share one
// schema and differ only in Kind and the Status vocabulary they use.
type Kind string

type Status string

const (
	KindTool      Kind = "TOOL"
	KindGuardrail Kind = "GUARDRAIL"
)

// Tool statuses.
const (
	StatusUsed  Status = "USED"
	StatusError Status = "ERROR"
)

// Guardrail statuses.
const (
	StatusPassed   Status = "passed"
	StatusBlocked  Status = "blocked"
	StatusModified Status = "modified"
)

// InvalidToolName is recorded when a wrapped tool reports a blank name.
const InvalidToolName = "__INVALID_TOOL__"

// Event is one append-only telemetry row: a single tool invocation or a
// single guardrail evaluation.
type Event struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId,omitempty"`
	Kind           Kind           `json:"eventType"`
	Name           string         `json:"name"`
	Status         Status         `json:"status"`
	DurationMs     int64          `json:"durationMs"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Name == "" && e.Kind == KindTool {
		e.Name = InvalidToolName
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
}

// Failed reports whether the event records an error outcome.
func (e Event) Failed() bool {
	return e.Status == StatusError
}
