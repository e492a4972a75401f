// Package otel bridges observe.Sink to OpenTelemetry tracing so that tool
// calls and guardrail checks show up in any OTel-compatible backend.
package otel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/PipeOpsHQ/agent-backend/observe"
)

const instrumentationName = "github.com/PipeOpsHQ/agent-backend/observe"

// Sink implements observe.Sink by emitting one span per event.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using tp. A nil tp yields a noop tracer.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

// Emit records event as a span. Spans are parented to ctx when it carries
// one, so tool spans nest under the HTTP request span.
func (s *Sink) Emit(ctx context.Context, event observe.Event) error {
	event.Normalize()

	end := event.CreatedAt
	start := end.Add(-time.Duration(event.DurationMs) * time.Millisecond)
	_, span := s.tracer.Start(ctx, spanNameFor(event), trace.WithTimestamp(start))

	attrs := []attribute.KeyValue{
		attribute.String("agent.event.type", string(event.Kind)),
		attribute.String("agent.event.name", event.Name),
		attribute.String("agent.status", string(event.Status)),
		attribute.Int64("agent.duration_ms", event.DurationMs),
	}
	if event.ConversationID != "" {
		attrs = append(attrs, attribute.String("agent.conversation.id", event.ConversationID))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, attribute.String("agent.attr."+k, truncate(stringify(v), 1024)))
	}
	span.SetAttributes(attrs...)

	switch event.Status {
	case observe.StatusError:
		msg, _ := event.Metadata["error"].(string)
		span.SetStatus(codes.Error, msg)
		if msg != "" {
			span.RecordError(errors.New(msg))
		}
	case observe.StatusBlocked:
		msg, _ := event.Metadata["message"].(string)
		span.SetStatus(codes.Error, "blocked: "+msg)
	default:
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(end))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindTool:
		return "agent.tool." + event.Name
	case observe.KindGuardrail:
		if event.Name != "" {
			return "agent.guardrail." + event.Name
		}
		return "agent.guardrail.check"
	default:
		return "agent.event"
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		raw, err := json.Marshal(x)
		if err == nil {
			return string(raw)
		}
	}
	return fmt.Sprintf("%v", v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
