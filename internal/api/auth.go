package api

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
)

// GitHubOAuthConfig returns the OAuth app config used by the auth routes.
func GitHubOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     oauthgithub.Endpoint,
		Scopes:       []string{"repo", "user:email"},
	}
}

// handleGitHubAuth redirects to the GitHub consent page. The userId query
// parameter is kept server-side behind a nonce; the nonce is the OAuth
// state and is bound to this browser by cookie.
func (s *Server) handleGitHubAuth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.OAuth == nil {
		writeError(w, http.StatusInternalServerError, errors.New("missing GITHUB_CLIENT_ID"))
		return
	}
	nonce := s.states.issue(strings.TrimSpace(r.URL.Query().Get("userId")))
	http.SetCookie(w, stateCookieFor(r, nonce, int(stateTTL/time.Second)))
	http.Redirect(w, r, s.cfg.OAuth.AuthCodeURL(nonce), http.StatusFound)
}

// handleGitHubCallback exchanges the code, stores the token under the
// GitHub login and, when different, under the requesting identity too.
func (s *Server) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" || s.cfg.OAuth == nil {
		http.Error(w, "Missing code or credentials", http.StatusBadRequest)
		return
	}
	if s.cfg.Credentials == nil || s.cfg.Users == nil {
		http.Error(w, "Token storage not configured", http.StatusInternalServerError)
		return
	}
	linked, ok := s.verifyState(r)
	http.SetCookie(w, stateCookieFor(r, "", -1))
	if !ok {
		s.logger.Warn("github oauth callback with invalid state", zap.String("remote", r.RemoteAddr))
		http.Error(w, "Invalid or expired authorization state", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	tok, err := s.cfg.OAuth.Exchange(ctx, code)
	if err != nil || tok.AccessToken == "" {
		s.logger.Warn("github oauth exchange failed", zap.Error(err))
		http.Error(w, "Failed to get token", http.StatusBadRequest)
		return
	}
	user, err := s.cfg.Users.CurrentUser(ctx, tok.AccessToken)
	if err != nil || user.Login == "" {
		s.logger.Warn("github user lookup failed", zap.Error(err))
		http.Error(w, "Failed to fetch GitHub user profile", http.StatusInternalServerError)
		return
	}

	if err := s.cfg.Credentials.UpsertToken(ctx, user.Login, tok.AccessToken); err != nil {
		s.logger.Error("store github token", zap.String("owner", user.Login), zap.Error(err))
		http.Error(w, "Auth failed", http.StatusInternalServerError)
		return
	}
	if linked == "" {
		linked = s.cfg.DefaultUserID
	}
	if linked != "" && linked != user.Login {
		if err := s.cfg.Credentials.UpsertToken(ctx, linked, tok.AccessToken); err != nil {
			s.logger.Error("link github token", zap.String("owner", linked), zap.Error(err))
			http.Error(w, "Auth failed", http.StatusInternalServerError)
			return
		}
	}
	s.logger.Info("github authorization complete", zap.String("login", user.Login), zap.String("linked_user", linked))

	var b strings.Builder
	b.WriteString("<h1>Login Successful</h1>\n")
	fmt.Fprintf(&b, "<p>Connected GitHub account <strong>%s</strong>.</p>\n", html.EscapeString(user.Login))
	if linked != "" {
		fmt.Fprintf(&b, "<p>Linked to session user: <strong>%s</strong></p>\n", html.EscapeString(linked))
	}
	b.WriteString("<p>Token has been stored. You can close this window.</p>\n")
	b.WriteString("<script>setTimeout(() => window.close(), 3000)</script>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

// verifyState checks that the callback's state matches the cookie set by
// the redirect and returns the identity it was issued for.
func (s *Server) verifyState(r *http.Request) (string, bool) {
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if state == "" {
		return "", false
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value != state {
		return "", false
	}
	return s.states.consume(state)
}
