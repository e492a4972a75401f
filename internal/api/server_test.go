package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/PipeOpsHQ/agent-backend/credential"
	"github.com/PipeOpsHQ/agent-backend/eval"
	"github.com/PipeOpsHQ/agent-backend/guardrail"
	"github.com/PipeOpsHQ/agent-backend/integrations/github"
	"github.com/PipeOpsHQ/agent-backend/observe"
	observestore "github.com/PipeOpsHQ/agent-backend/observe/store"
	"github.com/PipeOpsHQ/agent-backend/store/sqlite"
	"github.com/PipeOpsHQ/agent-backend/store/sqlstore"
	"github.com/PipeOpsHQ/agent-backend/tools"
)

type fakeUsers struct{ login string }

func (f fakeUsers) CurrentUser(_ context.Context, token string) (github.User, error) {
	return github.User{Login: f.login}, nil
}

type fakeEvaluator struct {
	mu       sync.Mutex
	payloads []eval.Payload
}

func (f *fakeEvaluator) Evaluate(_ context.Context, p eval.Payload) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return true
}

type testEnv struct {
	db        *sqlstore.DB
	evaluator *fakeEvaluator
	handler   http.Handler
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zaptest.NewLogger(t)
	interceptor := observe.NewInterceptor(observestore.NewSink(db), logger)

	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewCalculator())
	registry.Wrap(interceptor.WrapTool)

	guards := guardrail.NewPipeline().AddInput(guardrail.Sanitize{}).Wrap(interceptor.WrapGuardrail)

	env := &testEnv{db: db, evaluator: &fakeEvaluator{}}
	cfg := Config{
		Logger:        logger,
		Credentials:   db,
		Telemetry:     db,
		Evaluator:     env.evaluator,
		Tools:         registry,
		Guardrails:    guards,
		OAuth:         GitHubOAuthConfig("client-id", "client-secret", "http://localhost:5000/api/auth/github/callback"),
		Users:         fakeUsers{login: "octocat"},
		DefaultUserID: "default-user",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	env.handler = NewServer(cfg).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// startAuth runs the authorize redirect and returns the issued state and
// the Cookie header that carries it.
func (e *testEnv) startAuth(t *testing.T, userID string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/auth/github?userId="+url.QueryEscape(userID), "", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == stateCookie {
			return loc.Query().Get("state"), c.Name + "=" + c.Value
		}
	}
	t.Fatal("no state cookie issued")
	return "", ""
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/health/mcp", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without remote, got %d", w.Code)
	}
}

func TestGitHubAuthRedirect(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/auth/github?userId=alice", "", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Host != "github.com" {
		t.Fatalf("unexpected redirect host %q", loc.Host)
	}
	q := loc.Query()
	if q.Get("client_id") != "client-id" || q.Get("scope") != "repo user:email" {
		t.Fatalf("unexpected authorize query %v", q)
	}
	state := q.Get("state")
	if state == "" || state == "alice" {
		t.Fatalf("state should be an opaque nonce, got %q", state)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != stateCookie || cookies[0].Value != state || !cookies[0].HttpOnly {
		t.Fatalf("state cookie not set: %+v", cookies)
	}

	env = newTestEnv(t, func(c *Config) { c.OAuth = nil })
	if w := env.do(t, http.MethodGet, "/api/auth/github", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without oauth app, got %d", w.Code)
	}
}

func TestGitHubCallbackStoresAndLinksToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "the-code" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer","scope":"repo"}`))
	}))
	defer tokenServer.Close()

	env := newTestEnv(t, func(c *Config) {
		c.OAuth.Endpoint = oauth2.Endpoint{
			AuthURL:   "https://github.com/login/oauth/authorize",
			TokenURL:  tokenServer.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
	})

	state, cookie := env.startAuth(t, "alice")
	w := env.do(t, http.MethodGet, "/api/auth/github/callback?code=the-code&state="+state, "", map[string]string{"Cookie": cookie})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "octocat") || !strings.Contains(w.Body.String(), "alice") {
		t.Fatalf("confirmation page should name both identities: %s", w.Body.String())
	}
	for _, owner := range []string{"octocat", "alice"} {
		rec, err := env.db.GetToken(context.Background(), owner)
		if err != nil {
			t.Fatalf("token for %s: %v", owner, err)
		}
		if rec.Token != "gho_abc" {
			t.Fatalf("unexpected token for %s: %q", owner, rec.Token)
		}
	}

	if w := env.do(t, http.MethodGet, "/api/auth/github/callback", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without code, got %d", w.Code)
	}
}

func TestGitHubCallbackFallsBackToDefaultUser(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_def","token_type":"bearer"}`))
	}))
	defer tokenServer.Close()

	env := newTestEnv(t, func(c *Config) {
		c.OAuth.Endpoint = oauth2.Endpoint{TokenURL: tokenServer.URL, AuthStyle: oauth2.AuthStyleInParams}
	})
	state, cookie := env.startAuth(t, "")
	if w := env.do(t, http.MethodGet, "/api/auth/github/callback?code=x&state="+state, "", map[string]string{"Cookie": cookie}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, err := env.db.GetToken(context.Background(), "default-user"); err != nil {
		t.Fatalf("default user should be linked: %v", err)
	}
}

func TestGitHubCallbackRejectsUnverifiedState(t *testing.T) {
	var exchanges atomic.Int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_victim","token_type":"bearer"}`))
	}))
	defer tokenServer.Close()

	env := newTestEnv(t, func(c *Config) {
		c.OAuth.Endpoint = oauth2.Endpoint{TokenURL: tokenServer.URL, AuthStyle: oauth2.AuthStyleInParams}
	})
	state, cookie := env.startAuth(t, "mallory")

	tests := []struct {
		name   string
		target string
		cookie string
	}{
		{"raw user id as state", "/api/auth/github/callback?code=x&state=mallory", ""},
		{"issued state without cookie", "/api/auth/github/callback?code=x&state=" + state, ""},
		{"cookie for another state", "/api/auth/github/callback?code=x&state=" + state, stateCookie + "=other"},
		{"missing state", "/api/auth/github/callback?code=x", cookie},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.cookie != "" {
				headers["Cookie"] = tt.cookie
			}
			if w := env.do(t, http.MethodGet, tt.target, "", headers); w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
	if n := exchanges.Load(); n != 0 {
		t.Fatalf("code exchanged %d times for unverified callbacks", n)
	}
	for _, owner := range []string{"mallory", "octocat"} {
		if _, err := env.db.GetToken(context.Background(), owner); !errors.Is(err, credential.ErrNotFound) {
			t.Fatalf("no token should be stored for %s, got %v", owner, err)
		}
	}

	target := "/api/auth/github/callback?code=x&state=" + state
	if w := env.do(t, http.MethodGet, target, "", map[string]string{"Cookie": cookie}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for the issuing browser, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, target, "", map[string]string{"Cookie": cookie}); w.Code != http.StatusBadRequest {
		t.Fatalf("state must be single use, got %d", w.Code)
	}
}

func TestOAuthStatesExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	states := newOAuthStates()
	states.now = func() time.Time { return now }

	fresh := states.issue("alice")
	stale := states.issue("bob")
	now = now.Add(stateTTL + time.Second)
	if _, ok := states.consume(stale); ok {
		t.Fatal("expired state should be rejected")
	}

	now = now.Add(-2 * time.Second)
	if user, ok := states.consume(fresh); !ok || user != "alice" {
		t.Fatalf("unexpected consume result %q %v", user, ok)
	}
	if _, ok := states.consume("unknown"); ok {
		t.Fatal("unknown state should be rejected")
	}
}

func TestListEvals(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, r := range []observe.EvalResult{
		{ConversationID: "c1", ScorerID: eval.EmailScorerID, Score: 100, Passed: true},
		{ConversationID: "c2", ScorerID: eval.MathScorerID, Score: 40},
	} {
		if err := env.db.SaveEvalResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	w := env.do(t, http.MethodGet, "/api/evals?conversationId=c1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decodeBody[[]observe.EvalResult](t, w)
	if len(got) != 1 || got[0].ScorerID != eval.EmailScorerID {
		t.Fatalf("unexpected results %+v", got)
	}

	all := decodeBody[[]observe.EvalResult](t, env.do(t, http.MethodGet, "/api/evals", "", nil))
	if len(all) != 2 {
		t.Fatalf("expected 2 results, got %d", len(all))
	}
}

func TestGuardrailCheckAndTelemetry(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodPost, "/api/guardrails/check",
		`{"text":"mail me at jane@example.com","conversationId":"c9"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[struct {
		Verdict guardrail.Verdict `json:"verdict"`
	}](t, w)
	if resp.Verdict.Text != "mail me at [email]" {
		t.Fatalf("unexpected verdict %+v", resp.Verdict)
	}

	w = env.do(t, http.MethodGet, "/api/telemetry/guardrails?conversationId=c9", "", nil)
	records := decodeBody[[]observestore.GuardrailRecord](t, w)
	if len(records) != 1 {
		t.Fatalf("expected one guardrail event, got %d", len(records))
	}
	rec := records[0]
	if rec.GuardrailName != "sanitize" || rec.Status != "modified" || rec.Type != "input" ||
		rec.InputData != "mail me at jane@example.com" || rec.OutputData != "mail me at [email]" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if w := env.do(t, http.MethodPost, "/api/guardrails/check", `{"text":"x","direction":"sideways"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad direction, got %d", w.Code)
	}
}

func TestInvokeTool(t *testing.T) {
	env := newTestEnv(t, nil)
	headers := map[string]string{"X-Conversation-Id": "conv-7", "X-User-Id": "alice"}

	w := env.do(t, http.MethodPost, "/api/tools/calculate", `{"expression":"(2+3)*4"}`, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[struct {
		Result map[string]any `json:"result"`
	}](t, w)
	if resp.Result["result"] != "20" {
		t.Fatalf("unexpected result %+v", resp.Result)
	}

	if w := env.do(t, http.MethodPost, "/api/tools/calculate", `{"expression":"1/0"}`, headers); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for tool error, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/tools/nope", `{}`, headers); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown tool, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/tools/calculate", `{broken`, headers); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", w.Code)
	}

	events, err := env.db.ListEvents(context.Background(), observestore.ListQuery{ConversationID: "conv-7", Kind: observe.KindTool})
	if err != nil {
		t.Fatal(err)
	}
	statuses := map[observe.Status]int{}
	for _, e := range events {
		statuses[e.Status]++
	}
	if statuses[observe.StatusUsed] != 1 || statuses[observe.StatusError] != 1 {
		t.Fatalf("expected one USED and one ERROR event, got %v", statuses)
	}

	metrics := decodeBody[observestore.MetricsSummary](t, env.do(t, http.MethodGet, "/api/telemetry/metrics", "", nil))
	if metrics.ToolCalls != 1 || metrics.ToolFailures != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	if w := env.do(t, http.MethodGet, "/api/telemetry/metrics?since=yesterday", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid since, got %d", w.Code)
	}
}

func TestScoreAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodPost, "/api/evals/score", `{"output":"4","rawInput":[{"role":"user","content":"2+2"}]}`,
		map[string]string{"X-Conversation-Id": "conv-1"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if len(env.evaluator.payloads) != 1 || env.evaluator.payloads[0].ConversationID != "conv-1" {
		t.Fatalf("unexpected payloads %+v", env.evaluator.payloads)
	}
	if w := env.do(t, http.MethodPost, "/api/evals/score", `not json`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodOptions, "/api/tools/calculate", "", map[string]string{"Origin": "https://ui.example.com"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard origins must not allow credentials")
	}
}
