package eval

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/PipeOpsHQ/agent-backend/types"
)

func decodePayload(t *testing.T, raw string) Payload {
	t.Helper()
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return p
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{"output string", `{"output":"hello"}`, ptr("hello")},
		{"output text", `{"output":{"text":"nested"}}`, ptr("nested")},
		{"last non-empty message", `{"messages":[{"content":"first"},{"content":"second"},{"content":""}]}`, ptr("second")},
		{"output wins over messages", `{"output":"direct","messages":[{"content":"other"}]}`, ptr("direct")},
		{"nothing", `{"messages":[{"role":"assistant"}]}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(decodePayload(t, tt.raw)).Text
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("text mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeToolCallsFromMetadata(t *testing.T) {
	p := decodePayload(t, `{
		"metadata": {"toolCalls": [
			{"name": "send_email", "args": {"to": "a@b.com"}},
			{"toolName": "github_issues", "arguments": "{\"owner\":\"foo\"}"},
			{"function": {"name": "calculate", "arguments": "{not json"}},
			{"name": "delegate_task", "input": {"targets": ["email"]}},
			{"name": "no_args"}
		]},
		"messages": [{"tool_calls": [{"name": "ignored"}]}]
	}`)

	want := []types.ToolCall{
		{Name: "send_email", Args: map[string]any{"to": "a@b.com"}},
		{Name: "github_issues", Args: map[string]any{"owner": "foo"}},
		{Name: "calculate", Args: "{not json"},
		{Name: "delegate_task", Args: map[string]any{"targets": []any{"email"}}},
		{Name: "no_args", Args: map[string]any{}},
	}
	if diff := cmp.Diff(want, Normalize(p).ToolCalls); diff != "" {
		t.Fatalf("tool calls mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeToolCallsFromMessages(t *testing.T) {
	p := decodePayload(t, `{
		"messages": [
			{"role": "assistant", "tool_calls": [{"name": "a"}]},
			{"role": "tool", "content": "ok"},
			{"role": "assistant", "toolCalls": [{"name": "b"}, {"name": "c"}]}
		]
	}`)
	var names []string
	for _, c := range Normalize(p).ToolCalls {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Fatalf("calls should be concatenated in order (-want +got):\n%s", diff)
	}
}

func TestNormalizeInputSignals(t *testing.T) {
	p := decodePayload(t, `{
		"metadata": {"conversationId": "conv-7"},
		"rawInput": [{"role": "user", "content": "Calculate 2 + 2", "metadata": {"requiresTool": true}}]
	}`)
	n := Normalize(p)
	if !n.RequiresTool {
		t.Error("expected requiresTool from the first raw input")
	}
	if n.UserText != "Calculate 2 + 2" {
		t.Errorf("unexpected user text %q", n.UserText)
	}
	if n.ConversationID != "conv-7" {
		t.Errorf("expected conversation id from metadata, got %q", n.ConversationID)
	}

	if Normalize(Payload{}).RequiresTool {
		t.Error("requiresTool should default to false")
	}
}

func TestCountSteps(t *testing.T) {
	text := "Steps:\n\n  1. add the numbers  \n2. divide by two\nAnswer:\n  4 \n"
	if got := CountSteps(text); got != 3 {
		t.Fatalf("expected 3 steps, got %d", got)
	}
	if got := CountSteps(""); got != 0 {
		t.Fatalf("expected 0 steps, got %d", got)
	}
}

func ptr(s string) *string { return &s }
