package connection

import (
	"context"
	"fmt"
)

// RemoteTool is one operation advertised by the remote tool server.
type RemoteTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CallResult is the text payload of a remote tool call.
type CallResult struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError,omitempty"`
}

// Session is an open connection to the remote tool server.
type Session interface {
	ListTools(ctx context.Context) ([]RemoteTool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error)
	Close() error
}

// HeaderFunc returns headers for one outbound request. The transport
// calls it on every request, so it must read per-call values from ctx.
type HeaderFunc func(ctx context.Context) map[string]string

// Dialer opens a Session whose transport calls headers on every request.
type Dialer func(ctx context.Context, headers HeaderFunc) (Session, error)

// UnavailableError reports that the session could not be established or
// failed its probe. The next call starts a fresh attempt.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("remote tool session unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

type tokenKey struct{}

func withToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}
