// Package api is the HTTP surface of the agent backend: GitHub OAuth,
// telemetry and eval read models, the live-eval hook and tool invocation.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/PipeOpsHQ/agent-backend/connection"
	"github.com/PipeOpsHQ/agent-backend/credential"
	"github.com/PipeOpsHQ/agent-backend/eval"
	"github.com/PipeOpsHQ/agent-backend/guardrail"
	"github.com/PipeOpsHQ/agent-backend/integrations/github"
	observestore "github.com/PipeOpsHQ/agent-backend/observe/store"
	"github.com/PipeOpsHQ/agent-backend/tools"
)

// Evaluator accepts a finished turn for live scoring and reports whether
// it was sampled.
type Evaluator interface {
	Evaluate(ctx context.Context, payload eval.Payload) bool
}

// UserFetcher returns the GitHub account a token belongs to.
type UserFetcher interface {
	CurrentUser(ctx context.Context, token string) (github.User, error)
}

// RemoteLister probes the remote tool session.
type RemoteLister interface {
	ListTools(ctx context.Context, id credential.Identity) ([]connection.RemoteTool, error)
}

type Config struct {
	Logger *zap.Logger

	Credentials credential.Store
	Telemetry   observestore.Store
	Evaluator   Evaluator
	Tools       *tools.Registry
	Guardrails  *guardrail.Pipeline
	Remote      RemoteLister

	// OAuth is nil when the GitHub OAuth app is not configured.
	OAuth         *oauth2.Config
	Users         UserFetcher
	DefaultUserID string

	AllowedOrigins []string
}

type Server struct {
	cfg    Config
	logger *zap.Logger
	router chi.Router
	states *oauthStates
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{cfg: cfg, logger: logger, router: chi.NewRouter(), states: newOAuthStates()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors(s.cfg.AllowedOrigins))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health/mcp", s.handleMCPHealth)

		r.Get("/auth/github", s.handleGitHubAuth)
		r.Get("/auth/github/callback", s.handleGitHubCallback)

		r.Get("/evals", s.handleListEvals)
		r.Post("/evals/score", s.handleScore)

		r.Get("/telemetry/guardrails", s.handleGuardrailEvents)
		r.Get("/telemetry/metrics", s.handleMetrics)

		r.Get("/tools", s.handleToolCatalog)
		r.Post("/tools/{name}", s.handleInvokeTool)
		r.Post("/guardrails/check", s.handleGuardrailCheck)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMCPHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Remote == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "mcpConnected": false, "error": "remote tools not configured"})
		return
	}
	remote, err := s.cfg.Remote.ListTools(r.Context(), requestIdentity(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "mcpConnected": false, "error": err.Error()})
		return
	}
	names := make([]string, 0, len(remote))
	for _, t := range remote {
		names = append(names, t.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mcpConnected": true, "tools": names})
}

// requestIdentity reads the session user from the X-User-Id header, or the
// userId query parameter when the header is absent.
func requestIdentity(r *http.Request) credential.Identity {
	user := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if user == "" {
		user = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	return credential.Identity{SessionUserID: user}
}

func parseInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
