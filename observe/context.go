package observe

import (
	"context"
	"strings"
)

type conversationKey struct{}

// WithConversationID attaches the conversation a call belongs to. Events
// emitted under the returned context carry it.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationKey{}, conversationID)
}

// ConversationID returns the conversation id carried by ctx, or "".
func ConversationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(conversationKey{}).(string)
	return id
}
