// Package credential stores per-owner bearer tokens and resolves which
// token a request should act with.
package credential

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("credential: not found")

	// ErrCredentialRequired is returned when a request carries no identity
	// hint at all. It indicates a caller bug rather than a user action.
	ErrCredentialRequired = errors.New("credential: user id or target owner is required")
)

// Record is the single live token for one owner key (a GitHub login or a
// session user id).
type Record struct {
	OwnerKey  string    `json:"ownerKey"`
	Token     string    `json:"-"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is durable key to token storage. UpsertToken overwrites any
// existing token for the key and bumps UpdatedAt. Misses return ErrNotFound.
type Store interface {
	UpsertToken(ctx context.Context, ownerKey, token string) error
	GetToken(ctx context.Context, ownerKey string) (Record, error)
	MostRecent(ctx context.Context) (Record, error)
	Close() error
}
