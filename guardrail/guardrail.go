// Package guardrail validates text flowing into and out of an agent turn.
//
// Every guardrail implements one operation, Evaluate, which sees the text
// and the direction it flows in and returns an Outcome: pass it through,
// block it, or replace it with a modified version.
package guardrail

import (
	"context"
	"fmt"
	"strings"
)

type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Action is what a guardrail decided.
type Action string

const (
	ActionPass   Action = "pass"
	ActionBlock  Action = "block"
	ActionModify Action = "modify"
)

type Input struct {
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
}

// Outcome is returned by a guardrail evaluation. Text is only meaningful
// for ActionModify and holds the replacement text.
type Outcome struct {
	Action   Action         `json:"action"`
	Text     string         `json:"text,omitempty"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Guardrail interface {
	Name() string
	Evaluate(ctx context.Context, in Input) (Outcome, error)
}

// EvaluateFunc is the function shape of a guardrail.
type EvaluateFunc func(ctx context.Context, in Input) (Outcome, error)

type funcGuardrail struct {
	name string
	fn   EvaluateFunc
}

// Func adapts a plain function into a Guardrail.
func Func(name string, fn EvaluateFunc) Guardrail {
	return &funcGuardrail{name: strings.TrimSpace(name), fn: fn}
}

func (g *funcGuardrail) Name() string { return g.name }

func (g *funcGuardrail) Evaluate(ctx context.Context, in Input) (Outcome, error) {
	if g.fn == nil {
		return Outcome{}, fmt.Errorf("guardrail %q has no evaluate function", g.name)
	}
	return g.fn(ctx, in)
}

// CheckResult is the result shape of checker-style guardrails: a pass flag
// plus an optional modify action carrying the rewritten text.
type CheckResult struct {
	Pass     bool
	Action   Action
	Modified string
	Message  string
	Metadata map[string]any
}

// Checker is a guardrail with separate input and output entry points.
type Checker interface {
	CheckInput(ctx context.Context, text string) (CheckResult, error)
	CheckOutput(ctx context.Context, text string) (CheckResult, error)
}

// FromChecker adapts a Checker into a Guardrail, dispatching on direction.
func FromChecker(name string, c Checker) Guardrail {
	return Func(name, func(ctx context.Context, in Input) (Outcome, error) {
		if c == nil {
			return Outcome{}, fmt.Errorf("guardrail %q has no checker", name)
		}
		check := c.CheckInput
		if in.Direction == DirectionOutput {
			check = c.CheckOutput
		}
		res, err := check(ctx, in.Text)
		if err != nil {
			return Outcome{}, err
		}
		var out Outcome
		switch {
		case res.Action == ActionModify:
			out = Modify(res.Modified, res.Message)
		case res.Pass:
			out = Pass()
			out.Message = res.Message
		default:
			out = Block(res.Message)
		}
		out.Metadata = res.Metadata
		return out, nil
	})
}

func Pass() Outcome {
	return Outcome{Action: ActionPass}
}

func Block(message string) Outcome {
	return Outcome{Action: ActionBlock, Message: message}
}

func Modify(text, message string) Outcome {
	return Outcome{Action: ActionModify, Text: text, Message: message}
}

// BlockedError is returned by Pipeline.Enforce when a guardrail blocks.
type BlockedError struct {
	GuardrailName string
	Message       string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("guardrail %q blocked: %s", e.GuardrailName, e.Message)
}

// CatalogEntry describes a guardrail for discovery purposes.
type CatalogEntry struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Direction    string `json:"direction"` // "input", "output", or "both"
	Action       Action `json:"defaultAction"`
	Configurable bool   `json:"configurable"`
}

// BuiltinCatalog returns metadata for all built-in guardrails.
func BuiltinCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Name: "max_length", Description: "Blocks text exceeding a character limit", Direction: "both", Action: ActionBlock, Configurable: true},
		{Name: "prompt_injection", Description: "Detects prompt injection attempts using pattern matching", Direction: "input", Action: ActionBlock},
		{Name: "content_filter", Description: "Blocks harmful or illegal content", Direction: "both", Action: ActionBlock, Configurable: true},
		{Name: "sanitize", Description: "Replaces e-mail addresses, phone numbers and URLs with placeholders", Direction: "input", Action: ActionModify},
		{Name: "secret_guard", Description: "Redacts secrets such as API keys and tokens", Direction: "both", Action: ActionModify},
	}
}

const defaultMaxLength = 8000

// Builtin returns the built-in guardrail with the given catalog name.
func Builtin(name string) (Guardrail, error) {
	switch strings.TrimSpace(name) {
	case "max_length":
		return &MaxLength{Limit: defaultMaxLength}, nil
	case "prompt_injection":
		return &PromptInjection{}, nil
	case "content_filter":
		return &ContentFilter{}, nil
	case "sanitize":
		return Sanitize{}, nil
	case "secret_guard":
		return &SecretGuard{}, nil
	default:
		return nil, fmt.Errorf("unknown guardrail %q", name)
	}
}
