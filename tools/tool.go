package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PipeOpsHQ/agent-backend/types"
)

// Tool is an operation the agent runtime can invoke with JSON arguments.
type Tool interface {
	Definition() types.ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// ExecuteFunc is the function shape of a tool body.
type ExecuteFunc func(ctx context.Context, args json.RawMessage) (any, error)

type FuncTool struct {
	def types.ToolDefinition
	fn  ExecuteFunc
}

func NewFuncTool(name, description string, schema map[string]any, fn ExecuteFunc) *FuncTool {
	return &FuncTool{
		def: types.ToolDefinition{
			Name:        name,
			Description: description,
			JSONSchema:  schema,
		},
		fn: fn,
	}
}

func (t *FuncTool) Definition() types.ToolDefinition {
	return t.def
}

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if t.fn == nil {
		return nil, fmt.Errorf("tool %q has no execute function", t.def.Name)
	}
	return t.fn(ctx, args)
}

// Decorate returns a tool with t's definition whose body is fn. Wrappers
// use it to keep the wrapped tool's name and schema.
func Decorate(t Tool, fn ExecuteFunc) Tool {
	return &FuncTool{def: t.Definition(), fn: fn}
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
