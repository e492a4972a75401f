// Package connection owns the single shared session to the remote tool
// server and the credential injected into each request made over it.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/credential"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const defaultHandshakeTimeout = 30 * time.Second

// TokenResolver turns identity hints into a bearer token.
type TokenResolver interface {
	Resolve(ctx context.Context, id credential.Identity) (string, error)
}

// attempt is one in-flight handshake. done is closed once err is final.
type attempt struct {
	done chan struct{}
	err  error
}

// Manager lazily connects one Session and shares it across all callers.
// At most one handshake runs at a time; callers arriving while it runs
// wait for its outcome. A failed handshake returns the manager to
// StateDisconnected so the next call retries.
type Manager struct {
	dial             Dialer
	resolver         TokenResolver
	fallbackToken    string
	handshakeTimeout time.Duration
	logger           *zap.Logger

	mu       sync.Mutex
	state    State
	session  Session
	inflight *attempt
	hint     credential.Identity
	closed   bool
}

// ErrClosed is returned, wrapped in UnavailableError, once Close has run.
var ErrClosed = errors.New("connection manager closed")

type Option func(*Manager)

// WithFallbackToken sets the static token used when no per-owner
// credential resolves.
func WithFallbackToken(token string) Option {
	return func(m *Manager) {
		m.fallbackToken = token
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.handshakeTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(dial Dialer, resolver TokenResolver, opts ...Option) *Manager {
	m := &Manager{
		dial:             dial,
		resolver:         resolver,
		handshakeTimeout: defaultHandshakeTimeout,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureConnected returns once the shared session is usable. hint is
// recorded as the identity used for the handshake's own requests.
func (m *Manager) EnsureConnected(ctx context.Context, hint credential.Identity) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return &UnavailableError{Err: ErrClosed}
	}
	if !hint.IsZero() {
		m.hint = hint
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	a := m.inflight
	if a == nil {
		a = &attempt{done: make(chan struct{})}
		m.inflight = a
		m.state = StateConnecting
		go m.handshake(context.WithoutCancel(ctx), a, m.hint)
	}
	m.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) handshake(ctx context.Context, a *attempt, hint credential.Identity) {
	ctx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	defer cancel()

	start := time.Now()
	session, err := m.connect(ctx, hint)

	m.mu.Lock()
	var orphan Session
	switch {
	case err != nil:
		m.state = StateDisconnected
		a.err = &UnavailableError{Err: err}
	case m.closed:
		// Close ran while dialing; nobody owns this session.
		orphan = session
		m.state = StateDisconnected
		err = ErrClosed
		a.err = &UnavailableError{Err: ErrClosed}
	default:
		m.state = StateConnected
		m.session = session
	}
	m.inflight = nil
	m.mu.Unlock()

	if orphan != nil {
		if cerr := orphan.Close(); cerr != nil {
			m.logger.Debug("closing session opened after close", zap.Error(cerr))
		}
	}
	close(a.done)

	if err != nil {
		m.logger.Warn("remote tool session handshake failed",
			zap.String("owner", hint.Owner()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("remote tool session connected",
		zap.String("owner", hint.Owner()),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (m *Manager) connect(ctx context.Context, hint credential.Identity) (Session, error) {
	if m.dial == nil {
		return nil, errors.New("no dialer configured")
	}
	token, err := m.token(ctx, hint)
	if err != nil {
		return nil, err
	}
	ctx = withToken(ctx, token)

	session, err := m.dial(ctx, m.headers)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if _, err := session.ListTools(ctx); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("probe: %w", err)
	}
	return session, nil
}

// headers is the per-request credential hook handed to the transport.
func (m *Manager) headers(ctx context.Context) map[string]string {
	token := tokenFromContext(ctx)
	if token == "" {
		token = m.fallbackToken
	}
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// token resolves the bearer for id, falling back to the static token
// when one is configured.
func (m *Manager) token(ctx context.Context, id credential.Identity) (string, error) {
	if m.resolver != nil && !id.IsZero() {
		tok, err := m.resolver.Resolve(ctx, id)
		if err == nil {
			return tok, nil
		}
		if m.fallbackToken == "" {
			return "", err
		}
		m.logger.Debug("using fallback token", zap.String("owner", id.Owner()), zap.Error(err))
		return m.fallbackToken, nil
	}
	if m.fallbackToken != "" {
		return m.fallbackToken, nil
	}
	if m.resolver != nil {
		return m.resolver.Resolve(ctx, id)
	}
	return "", credential.ErrCredentialRequired
}

func (m *Manager) current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// CallTool invokes a remote tool acting as id. The credential for id is
// resolved for this call only, so concurrent calls for different owners
// never see each other's token.
func (m *Manager) CallTool(ctx context.Context, id credential.Identity, name string, args map[string]any) (CallResult, error) {
	token, err := m.token(ctx, id)
	if err != nil {
		return CallResult{}, err
	}
	if err := m.EnsureConnected(ctx, id); err != nil {
		return CallResult{}, err
	}
	session := m.current()
	if session == nil {
		return CallResult{}, &UnavailableError{Err: errors.New("session closed")}
	}
	return session.CallTool(withToken(ctx, token), name, args)
}

// ListTools lists the remote operations visible to id.
func (m *Manager) ListTools(ctx context.Context, id credential.Identity) ([]RemoteTool, error) {
	token, err := m.token(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureConnected(ctx, id); err != nil {
		return nil, err
	}
	session := m.current()
	if session == nil {
		return nil, &UnavailableError{Err: errors.New("session closed")}
	}
	return session.ListTools(withToken(ctx, token))
}

// Close closes the shared session, if any, and returns the manager to
// StateDisconnected. A handshake still running closes its session on
// completion. Later calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	session := m.session
	m.session = nil
	if m.state == StateConnected {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
