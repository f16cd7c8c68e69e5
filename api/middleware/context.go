package middleware

import "context"

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxRole      contextKey = "actor_role"
	ctxRequestID contextKey = "request_id"
)

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

// UserIDFromContext returns the authenticated user id, or "" for guests.
func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxUserID) }

func RoleFromContext(ctx context.Context) string { return stringValue(ctx, ctxRole) }

func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxRequestID) }

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, ctxUserID, userID)
}

// WithRole injects the caller role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	return withString(ctx, ctxRole, role)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, ctxRequestID, requestID)
}
