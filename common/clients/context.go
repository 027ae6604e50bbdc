package clients

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const traceIDKey contextKey = "trace-id"

// WithTraceID attaches a trace id that DoRequest will propagate as the
// X-Trace-ID header on every outbound call made with this context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID retrieves the trace id from context.
func GetTraceID(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok && traceID != ""
}
