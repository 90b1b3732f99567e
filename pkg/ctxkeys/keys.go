// Package ctxkeys defines typed keys shared by the auth middleware and the
// handlers that read the actor from gin or request contexts.
package ctxkeys

import "context"

// Key is a typed context key to prevent collisions.
type Key string

const (
	KeyUserID    Key = "user_id"
	KeyRole      Key = "role"
	KeyPhone     Key = "phone"
	KeyEmail     Key = "email"
	KeyAuthType  Key = "auth_type"
	KeyRequestID Key = "request_id"
)

// GetUserID extracts the user ID from context, or returns empty string.
func GetUserID(ctx context.Context) string {
	return getString(ctx, KeyUserID)
}

// GetRole extracts the actor role from context, or returns empty string.
func GetRole(ctx context.Context) string {
	return getString(ctx, KeyRole)
}

// GetRequestID extracts the request id propagated by the request-id middleware.
func GetRequestID(ctx context.Context) string {
	return getString(ctx, KeyRequestID)
}

func getString(ctx context.Context, key Key) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
