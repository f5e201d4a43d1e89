package middleware

import "context"

type contextKey string

const (
	ctxService contextKey = "service"
	ctxScopes  contextKey = "scopes"
)

func ServiceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxService).(string); ok {
		return v
	}
	return ""
}

func ScopesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxScopes).([]string); ok {
		return v
	}
	return nil
}

// WithService injects the calling service name into the context.
func WithService(ctx context.Context, service string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxService, service)
}
