package types

import (
	"encoding/json"
	"strings"
)

// ToolCall is the canonical shape of a tool invocation observed in an agent
// turn. Args holds a decoded JSON object, or the raw string when the
// arguments could not be decoded.
type ToolCall struct {
	Name string `json:"name"`
	Args any    `json:"args,omitempty"`
}

// ArgsMap returns Args as an object. ok is false when Args is a raw string
// or any other non-object value.
func (c ToolCall) ArgsMap() (map[string]any, bool) {
	switch v := c.Args.(type) {
	case map[string]any:
		return v, true
	case nil:
		return map[string]any{}, true
	default:
		return nil, false
	}
}

// DecodeArgs turns a raw argument value into its canonical form. Strings are
// parsed as JSON and kept verbatim when parsing fails.
func DecodeArgs(raw any) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return s
	}
	return decoded
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	JSONSchema  map[string]any `json:"jsonSchema,omitempty"`
}
