package tools

import (
	"context"

	"github.com/PipeOpsHQ/agent-backend/credential"
)

type identityKey struct{}

// WithIdentity attaches the caller's identity hints to ctx. Tools that act
// on behalf of a user read it back with IdentityFrom.
func WithIdentity(ctx context.Context, id credential.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) credential.Identity {
	id, _ := ctx.Value(identityKey{}).(credential.Identity)
	return id
}
