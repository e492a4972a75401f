package observe

import (
	"encoding/json"

	"github.com/PipeOpsHQ/agent-backend/guardrail"
)

// GuardrailStatus maps a guardrail action to the telemetry status
// vocabulary.
func GuardrailStatus(action guardrail.Action) Status {
	switch action {
	case guardrail.ActionModify:
		return StatusModified
	case guardrail.ActionPass, "":
		return StatusPassed
	default:
		return StatusBlocked
	}
}

// guardrailMetadata records what the guardrail saw and, for a modify
// outcome, what it produced. Guardrail-supplied metadata is merged last.
func guardrailMetadata(in guardrail.Input, out guardrail.Outcome) map[string]any {
	meta := map[string]any{"type": string(in.Direction)}
	if in.Direction == guardrail.DirectionOutput {
		meta["output"] = in.Text
		if out.Action == guardrail.ActionModify {
			meta["modifiedOutput"] = out.Text
		}
	} else {
		meta["inputText"] = in.Text
		if out.Action == guardrail.ActionModify {
			meta["modifiedInput"] = out.Text
		}
	}
	if out.Message != "" {
		meta["message"] = out.Message
	}
	for k, v := range out.Metadata {
		meta[k] = v
	}
	return meta
}

// decodeArgs turns raw tool arguments into a value that stores as JSON
// structure rather than an escaped string.
func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
