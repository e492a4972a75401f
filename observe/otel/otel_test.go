package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/PipeOpsHQ/agent-backend/observe"
)

func newTestSink(t *testing.T) (*Sink, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewSink(tp), exporter
}

func TestSinkEmitsToolSpan(t *testing.T) {
	sink, exporter := newTestSink(t)

	now := time.Now()
	err := sink.Emit(context.Background(), observe.Event{
		ConversationID: "conv-1",
		Kind:           observe.KindTool,
		Name:           "github_issues",
		Status:         observe.StatusUsed,
		DurationMs:     150,
		Metadata:       map[string]any{"args": map[string]any{"owner": "octocat"}},
		CreatedAt:      now,
	})
	if err != nil {
		t.Fatal(err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "agent.tool.github_issues" {
		t.Errorf("unexpected span name %q", span.Name)
	}
	if got := span.EndTime.Sub(span.StartTime); got != 150*time.Millisecond {
		t.Errorf("expected span to cover duration, got %v", got)
	}

	attrs := attrToMap(span.Attributes)
	if attrs["agent.conversation.id"] != "conv-1" {
		t.Errorf("missing conversation id: %v", attrs)
	}
	if attrs["agent.attr.args"] != `{"owner":"octocat"}` {
		t.Errorf("args should be JSON encoded: %v", attrs["agent.attr.args"])
	}
}

func TestSpanNaming(t *testing.T) {
	sink, exporter := newTestSink(t)

	tests := []struct {
		event    observe.Event
		wantName string
	}{
		{observe.Event{Kind: observe.KindTool, Name: "calculate"}, "agent.tool.calculate"},
		{observe.Event{Kind: observe.KindTool}, "agent.tool." + observe.InvalidToolName},
		{observe.Event{Kind: observe.KindGuardrail, Name: "sanitize"}, "agent.guardrail.sanitize"},
		{observe.Event{Kind: observe.KindGuardrail}, "agent.guardrail.check"},
	}
	for _, tt := range tests {
		exporter.Reset()
		_ = sink.Emit(context.Background(), tt.event)
		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Errorf("expected 1 span for %s, got %d", tt.wantName, len(spans))
			continue
		}
		if spans[0].Name != tt.wantName {
			t.Errorf("expected span name %q, got %q", tt.wantName, spans[0].Name)
		}
	}
}

func TestSinkErrorStatus(t *testing.T) {
	sink, exporter := newTestSink(t)
	_ = sink.Emit(context.Background(), observe.Event{
		Kind:     observe.KindTool,
		Name:     "send_email",
		Status:   observe.StatusError,
		Metadata: map[string]any{"error": "smtp down"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "smtp down" {
		t.Errorf("unexpected status %+v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected error event recorded on span")
	}
}

func attrToMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}
