package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PipeOpsHQ/agent-backend/observe"
	observestore "github.com/PipeOpsHQ/agent-backend/observe/store"
)

func (s *Server) handleListEvals(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Telemetry == nil {
		writeJSON(w, http.StatusOK, []observe.EvalResult{})
		return
	}
	q := observestore.EvalQuery{
		ConversationID: strings.TrimSpace(r.URL.Query().Get("conversationId")),
		ScorerID:       strings.TrimSpace(r.URL.Query().Get("scorerId")),
		Limit:          parseInt(r.URL.Query().Get("limit"), 100),
		Offset:         parseInt(r.URL.Query().Get("offset"), 0),
	}
	results, err := s.cfg.Telemetry.ListEvalResults(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []observe.EvalResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGuardrailEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Telemetry == nil {
		writeJSON(w, http.StatusOK, []observestore.GuardrailRecord{})
		return
	}
	events, err := s.cfg.Telemetry.ListEvents(r.Context(), observestore.ListQuery{
		ConversationID: strings.TrimSpace(r.URL.Query().Get("conversationId")),
		Kind:           observe.KindGuardrail,
		Limit:          parseInt(r.URL.Query().Get("limit"), 200),
		Offset:         parseInt(r.URL.Query().Get("offset"), 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]observestore.GuardrailRecord, 0, len(events))
	for _, e := range events {
		out = append(out, observestore.ToGuardrailRecord(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMetrics serves aggregate counts. since is an optional Go duration
// such as 24h.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Telemetry == nil {
		writeJSON(w, http.StatusOK, observestore.MetricsSummary{})
		return
	}
	var q observestore.MetricsQuery
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since %q", raw))
			return
		}
		t := time.Now().UTC().Add(-d)
		q.Since = &t
	}
	metrics, err := s.cfg.Telemetry.AggregateMetrics(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}
