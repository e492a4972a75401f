package observe

import (
	"time"

	"github.com/google/uuid"
)

// EvalResult is one persisted live-evaluation score: one row per
// (turn, scorer) pair that was not skipped.
type EvalResult struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId,omitempty"`
	ScorerID       string         `json:"scorerId"`
	Score          float64        `json:"score"`
	Passed         bool           `json:"passed"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func (r *EvalResult) Normalize() {
	if r == nil {
		return
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	// Older rows only carried the conversation inside metadata.
	if r.ConversationID == "" {
		if id, ok := r.Metadata["conversationId"].(string); ok {
			r.ConversationID = id
		}
	}
}
