package store

import "context"

type contextKey string

// UserIDKey is the context key for the chat-platform author ID of the
// record whose run's action directives are currently being dispatched
// (§4.6 "executed under an action context (guild, channel, user)").
const UserIDKey contextKey = "forgehost_user_id"

// WithUserID returns a new context with the given user ID.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// UserIDFromContext extracts the user ID from context. Returns "" if not set.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
