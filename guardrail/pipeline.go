package guardrail

import (
	"context"
	"fmt"
	"strings"
)

// Pipeline runs guardrails in registration order. A modify outcome
// rewrites the text seen by later guardrails; the first block stops the run.
type Pipeline struct {
	inputGuards  []Guardrail
	outputGuards []Guardrail
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) AddInput(g Guardrail) *Pipeline {
	p.inputGuards = append(p.inputGuards, g)
	return p
}

func (p *Pipeline) AddOutput(g Guardrail) *Pipeline {
	p.outputGuards = append(p.outputGuards, g)
	return p
}

// Add registers g for both directions.
func (p *Pipeline) Add(g Guardrail) *Pipeline {
	p.inputGuards = append(p.inputGuards, g)
	p.outputGuards = append(p.outputGuards, g)
	return p
}

// Wrap replaces every registered guardrail with wrap(g). Used to attach
// telemetry once at construction time.
func (p *Pipeline) Wrap(wrap func(Guardrail) Guardrail) *Pipeline {
	for i, g := range p.inputGuards {
		p.inputGuards[i] = wrap(g)
	}
	for i, g := range p.outputGuards {
		p.outputGuards[i] = wrap(g)
	}
	return p
}

// Step records one guardrail's outcome inside a Verdict.
type Step struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
}

type Verdict struct {
	Text      string `json:"text"`
	Blocked   bool   `json:"blocked"`
	BlockedBy string `json:"blockedBy,omitempty"`
	Message   string `json:"message,omitempty"`
	Steps     []Step `json:"steps"`
}

// Run evaluates the guardrails registered for in.Direction.
func (p *Pipeline) Run(ctx context.Context, in Input) (Verdict, error) {
	guards := p.inputGuards
	if in.Direction == DirectionOutput {
		guards = p.outputGuards
	}

	v := Verdict{Text: in.Text}
	for _, g := range guards {
		out, err := g.Evaluate(ctx, Input{Direction: in.Direction, Text: v.Text})
		if err != nil {
			return Verdict{}, fmt.Errorf("guardrail %q failed: %w", g.Name(), err)
		}
		v.Steps = append(v.Steps, Step{Name: g.Name(), Outcome: out})
		switch out.Action {
		case ActionBlock:
			v.Blocked = true
			v.BlockedBy = g.Name()
			v.Message = out.Message
			v.Text = ""
			return v, nil
		case ActionModify:
			v.Text = out.Text
		}
	}
	return v, nil
}

// Enforce is Run that turns a block into a *BlockedError.
func (p *Pipeline) Enforce(ctx context.Context, in Input) (string, error) {
	v, err := p.Run(ctx, in)
	if err != nil {
		return "", err
	}
	if v.Blocked {
		return "", &BlockedError{GuardrailName: v.BlockedBy, Message: v.Message}
	}
	return v.Text, nil
}

// Summary returns a human-readable summary of the non-pass steps.
func (v Verdict) Summary() string {
	parts := make([]string, 0, len(v.Steps))
	for _, s := range v.Steps {
		if s.Outcome.Action == ActionPass || s.Outcome.Action == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", s.Outcome.Action, s.Name, s.Outcome.Message))
	}
	if len(parts) == 0 {
		return "all guardrails passed"
	}
	return strings.Join(parts, "; ")
}
