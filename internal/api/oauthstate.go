package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	stateCookie = "gh_oauth_state"
	stateTTL    = 10 * time.Minute
)

type pendingAuth struct {
	userID  string
	expires time.Time
}

// oauthStates holds the single-use nonces handed out by the auth redirect.
// The nonce is also set as a cookie, so a callback is only honoured in the
// browser that started the flow.
type oauthStates struct {
	mu      sync.Mutex
	now     func() time.Time
	pending map[string]pendingAuth
}

func newOAuthStates() *oauthStates {
	return &oauthStates{now: time.Now, pending: map[string]pendingAuth{}}
}

func (s *oauthStates) issue(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for nonce, p := range s.pending {
		if now.After(p.expires) {
			delete(s.pending, nonce)
		}
	}
	nonce := uuid.NewString()
	s.pending[nonce] = pendingAuth{userID: userID, expires: now.Add(stateTTL)}
	return nonce
}

// consume returns the identity the nonce was issued for. A nonce is
// accepted once.
func (s *oauthStates) consume(nonce string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[nonce]
	if !ok {
		return "", false
	}
	delete(s.pending, nonce)
	if s.now().After(p.expires) {
		return "", false
	}
	return p.userID, true
}

func stateCookieFor(r *http.Request, nonce string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     stateCookie,
		Value:    nonce,
		Path:     "/api/auth/github",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
}
