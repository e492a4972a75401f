package credential

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Identity carries the identity hints of one request. TargetOwner is the
// owner of the resource being acted on and always wins over SessionUserID.
type Identity struct {
	SessionUserID string `json:"sessionUserId,omitempty"`
	TargetOwner   string `json:"targetOwner,omitempty"`
}

// IsZero reports whether no usable hint is present.
func (id Identity) IsZero() bool {
	return strings.TrimSpace(id.SessionUserID) == "" && strings.TrimSpace(id.TargetOwner) == ""
}

// Owner returns the key the resolver will look up first.
func (id Identity) Owner() string {
	if owner := strings.TrimSpace(id.TargetOwner); owner != "" {
		return owner
	}
	return strings.TrimSpace(id.SessionUserID)
}

// MissingError reports that no token is stored for Owner. AuthURL, when
// set, is the link that lets Owner authorize.
type MissingError struct {
	Owner   string
	AuthURL string
}

func (e *MissingError) Error() string {
	if e.AuthURL == "" {
		return fmt.Sprintf("github token missing for user %q", e.Owner)
	}
	return fmt.Sprintf("github token missing for user %q: log in via %s", e.Owner, e.AuthURL)
}

// AuthURLFunc builds the authorization link for an owner.
type AuthURLFunc func(owner string) string

type Resolver struct {
	store   Store
	authURL AuthURLFunc
}

type ResolverOption func(*Resolver)

func WithAuthURL(fn AuthURLFunc) ResolverOption {
	return func(r *Resolver) {
		r.authURL = fn
	}
}

func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the bearer token for id. A TargetOwner is looked up with
// strict priority and never falls back to the session token. Without a
// TargetOwner the session user is used; without either it returns
// ErrCredentialRequired.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (string, error) {
	owner := id.Owner()
	if owner == "" {
		return "", ErrCredentialRequired
	}

	rec, err := r.store.GetToken(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", r.missing(owner)
		}
		return "", fmt.Errorf("failed to load token for %q: %w", owner, err)
	}
	if rec.Token == "" {
		return "", r.missing(owner)
	}
	return rec.Token, nil
}

func (r *Resolver) missing(owner string) *MissingError {
	e := &MissingError{Owner: owner}
	if r.authURL != nil {
		e.AuthURL = r.authURL(owner)
	}
	return e
}

// AuthURL returns the authorization link for owner, or "" when no builder
// is configured.
func (r *Resolver) AuthURL(owner string) string {
	if r.authURL == nil {
		return ""
	}
	return r.authURL(owner)
}

// AuthLinkBuilder returns an AuthURLFunc rooted at baseURL.
func AuthLinkBuilder(baseURL string) AuthURLFunc {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return func(owner string) string {
		u := base + "/api/auth/github"
		if owner = strings.TrimSpace(owner); owner != "" {
			u += "?userId=" + url.QueryEscape(owner)
		}
		return u
	}
}
