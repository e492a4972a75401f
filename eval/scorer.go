package eval

import (
	"context"
	"errors"
)

const statusSkipped = "skipped"

// Result is one scorer's verdict for a turn. Score is in [0, 100].
type Result struct {
	Score    float64        `json:"score"`
	Passed   bool           `json:"passed"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Skip marks a turn as outside the scorer's domain. Skipped results are
// never persisted.
func Skip(reason string) Result {
	return Result{Metadata: map[string]any{"status": statusSkipped, "reason": reason}}
}

func (r Result) Skipped() bool {
	return r.Metadata["status"] == statusSkipped
}

// Scorer grades one normalized turn. Implementations must be safe for
// concurrent use.
type Scorer interface {
	ID() string
	Score(ctx context.Context, n Normalized) (Result, error)
}

type ScoreFunc func(ctx context.Context, n Normalized) (Result, error)

type funcScorer struct {
	id string
	fn ScoreFunc
}

// ScorerFunc adapts fn into a Scorer with the given id.
func ScorerFunc(id string, fn ScoreFunc) Scorer {
	return &funcScorer{id: id, fn: fn}
}

func (s *funcScorer) ID() string { return s.id }

func (s *funcScorer) Score(ctx context.Context, n Normalized) (Result, error) {
	if s.fn == nil {
		return Result{}, errors.New("scorer function is nil")
	}
	return s.fn(ctx, n)
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
