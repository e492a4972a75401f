package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/connection"
	"github.com/PipeOpsHQ/agent-backend/eval"
	"github.com/PipeOpsHQ/agent-backend/guardrail"
	"github.com/PipeOpsHQ/agent-backend/observe"
	"github.com/PipeOpsHQ/agent-backend/tools"
)

const maxBodyBytes = 1 << 20

// handleScore is the live-eval hook: the agent runtime posts a finished
// turn and scoring happens in the background.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Evaluator == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("live evaluation disabled"))
		return
	}
	var payload eval.Payload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if payload.ConversationID == "" {
		payload.ConversationID = strings.TrimSpace(r.Header.Get("X-Conversation-Id"))
	}
	sampled := s.cfg.Evaluator.Evaluate(r.Context(), payload)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "sampled": sampled})
}

func (s *Server) handleToolCatalog(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Tools == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tools": []any{}, "count": 0})
		return
	}
	catalog := s.cfg.Tools.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{"tools": catalog, "count": len(catalog)})
}

// handleInvokeTool runs one registered tool. The body is the tool's JSON
// arguments; identity and conversation come from headers.
func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Tools == nil {
		writeError(w, http.StatusNotFound, tools.ErrUnknownTool)
		return
	}
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, errors.New("arguments must be a JSON object"))
		return
	}

	ctx := tools.WithIdentity(r.Context(), requestIdentity(r))
	ctx = observe.WithConversationID(ctx, strings.TrimSpace(r.Header.Get("X-Conversation-Id")))
	out, err := s.cfg.Tools.Execute(ctx, name, body)
	if err != nil {
		var unavailable *connection.UnavailableError
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			writeError(w, http.StatusNotFound, err)
		case errors.As(err, &unavailable):
			writeError(w, http.StatusBadGateway, err)
		default:
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
			writeError(w, http.StatusUnprocessableEntity, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool": name, "result": out})
}

type guardrailCheckRequest struct {
	Text           string              `json:"text"`
	Direction      guardrail.Direction `json:"direction"`
	ConversationID string              `json:"conversationId"`
}

func (s *Server) handleGuardrailCheck(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Guardrails == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("guardrails not configured"))
		return
	}
	var req guardrailCheckRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	switch req.Direction {
	case "":
		req.Direction = guardrail.DirectionInput
	case guardrail.DirectionInput, guardrail.DirectionOutput:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("direction must be input or output"))
		return
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = strings.TrimSpace(r.Header.Get("X-Conversation-Id"))
	}
	ctx := observe.WithConversationID(r.Context(), conversationID)
	verdict, err := s.cfg.Guardrails.Run(ctx, guardrail.Input{Direction: req.Direction, Text: req.Text})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verdict": verdict, "summary": verdict.Summary()})
}
