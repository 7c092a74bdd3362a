package internal

import "context"

type ctxKey struct{}

// ContextWithUserID records the uid of the signed-in caller.
func ContextWithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKey{}, uid)
}

// UserIDFromContext returns the caller's uid, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	uid, _ := ctx.Value(ctxKey{}).(string)
	return uid
}
