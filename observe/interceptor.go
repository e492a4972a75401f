package observe

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/guardrail"
	"github.com/PipeOpsHQ/agent-backend/tools"
)

// Interceptor decorates tools and guardrails so that every invocation
// produces exactly one Event. The event is handed to the sink after the
// wrapped call settles and before the wrapper returns. Sink failures are
// logged and never change the wrapped call's result.
type Interceptor struct {
	sink   Sink
	logger *zap.Logger
}

func NewInterceptor(sink Sink, logger *zap.Logger) *Interceptor {
	if sink == nil {
		sink = NoopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{sink: sink, logger: logger}
}

// WrapTool returns t with telemetry attached. The returned tool has the
// same definition and returns t's result and error unchanged.
func (i *Interceptor) WrapTool(t tools.Tool) tools.Tool {
	name := t.Definition().Name
	return tools.Decorate(t, func(ctx context.Context, args json.RawMessage) (any, error) {
		start := time.Now()
		out, err := t.Execute(ctx, args)
		elapsed := time.Since(start).Milliseconds()

		event := Event{
			ConversationID: ConversationID(ctx),
			Kind:           KindTool,
			Name:           name,
			Status:         StatusUsed,
			DurationMs:     elapsed,
			Metadata: map[string]any{
				"args":     decodeArgs(args),
				"duration": elapsed,
			},
		}
		if err != nil {
			event.Status = StatusError
			event.Metadata["error"] = err.Error()
		}
		i.emit(ctx, event)
		return out, err
	})
}

// WrapGuardrail returns g with telemetry attached.
func (i *Interceptor) WrapGuardrail(g guardrail.Guardrail) guardrail.Guardrail {
	name := g.Name()
	return guardrail.Func(name, func(ctx context.Context, in guardrail.Input) (guardrail.Outcome, error) {
		start := time.Now()
		out, err := g.Evaluate(ctx, in)
		elapsed := time.Since(start).Milliseconds()

		event := Event{
			ConversationID: ConversationID(ctx),
			Kind:           KindGuardrail,
			Name:           name,
			DurationMs:     elapsed,
		}
		if err != nil {
			event.Status = StatusError
			event.Metadata = map[string]any{
				"type":  string(in.Direction),
				"error": err.Error(),
			}
		} else {
			event.Status = GuardrailStatus(out.Action)
			event.Metadata = guardrailMetadata(in, out)
		}
		event.Metadata["duration"] = elapsed
		i.emit(ctx, event)
		return out, err
	})
}

func (i *Interceptor) emit(ctx context.Context, event Event) {
	event.Normalize()
	if err := i.sink.Emit(context.WithoutCancel(ctx), event); err != nil {
		i.logger.Warn("telemetry emit failed",
			zap.String("event_type", string(event.Kind)),
			zap.String("name", event.Name),
			zap.Error(err),
		)
	}
}
