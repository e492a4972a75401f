package eval

import (
	"regexp"
	"strings"

	"github.com/PipeOpsHQ/agent-backend/types"
)

// Payload is one completed agent turn as reported by the runtime. The
// shape varies between producers, so most fields are loosely typed and
// Normalize does the interpretation.
type Payload struct {
	ConversationID string           `json:"conversationId,omitempty"`
	Output         any              `json:"output,omitempty"`
	Messages       []map[string]any `json:"messages,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	RawInput       []map[string]any `json:"rawInput,omitempty"`
}

// Normalized is the canonical view scorers work with. It is rebuilt from
// the payload on every scoring pass and never persisted.
type Normalized struct {
	ConversationID string
	// Text is nil when the turn produced no text at all.
	Text         *string
	ToolCalls    []types.ToolCall
	RequiresTool bool
	// UserText is the content of the first raw input entry.
	UserText string
}

// TextOrEmpty returns the response text, or "" when there is none.
func (n Normalized) TextOrEmpty() string {
	if n.Text == nil {
		return ""
	}
	return *n.Text
}

// UsedTool reports whether any normalized call has one of names.
func (n Normalized) UsedTool(names ...string) bool {
	for _, c := range n.ToolCalls {
		for _, name := range names {
			if c.Name == name {
				return true
			}
		}
	}
	return false
}

// Normalize extracts the canonical view from p. It is pure and cheap.
func Normalize(p Payload) Normalized {
	n := Normalized{
		ConversationID: p.ConversationID,
		Text:           extractText(p),
		ToolCalls:      extractToolCalls(p),
		RequiresTool:   extractRequiresTool(p),
		UserText:       extractUserText(p),
	}
	if n.ConversationID == "" {
		n.ConversationID, _ = p.Metadata["conversationId"].(string)
	}
	return n
}

func extractText(p Payload) *string {
	switch out := p.Output.(type) {
	case string:
		return &out
	case map[string]any:
		if text, ok := out["text"].(string); ok {
			return &text
		}
	}
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if content, ok := p.Messages[i]["content"].(string); ok && content != "" {
			return &content
		}
	}
	return nil
}

func extractToolCalls(p Payload) []types.ToolCall {
	raw, _ := p.Metadata["toolCalls"].([]any)
	if len(raw) == 0 {
		for _, msg := range p.Messages {
			calls, ok := msg["tool_calls"].([]any)
			if !ok {
				calls, _ = msg["toolCalls"].([]any)
			}
			raw = append(raw, calls...)
		}
	}
	if len(raw) == 0 {
		return nil
	}

	out := make([]types.ToolCall, 0, len(raw))
	for _, item := range raw {
		tc, _ := item.(map[string]any)
		fn, _ := tc["function"].(map[string]any)
		args := firstPresent(tc["args"], tc["arguments"], fn["arguments"], tc["input"])
		if args == nil {
			args = map[string]any{}
		}
		out = append(out, types.ToolCall{
			Name: firstString(tc["name"], tc["toolName"], fn["name"]),
			Args: types.DecodeArgs(args),
		})
	}
	return out
}

func extractRequiresTool(p Payload) bool {
	if len(p.RawInput) == 0 {
		return false
	}
	meta, _ := p.RawInput[0]["metadata"].(map[string]any)
	required, _ := meta["requiresTool"].(bool)
	return required
}

func extractUserText(p Payload) string {
	if len(p.RawInput) == 0 {
		return ""
	}
	content, _ := p.RawInput[0]["content"].(string)
	return content
}

// firstPresent returns the first value that is neither nil nor "".
func firstPresent(values ...any) any {
	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		return v
	}
	return nil
}

func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

var labelLine = regexp.MustCompile(`^[A-Za-z][A-Za-z ]{0,30}:$`)

// CountSteps counts the non-empty lines of text, ignoring lines that are
// only a label such as "Steps:" or "Answer:".
func CountSteps(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || labelLine.MatchString(line) {
			continue
		}
		n++
	}
	return n
}
