package audit

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	clientIPKey
)

// WithRequest attaches the request ID and client address that audit events
// recorded under ctx should carry.
func WithRequest(ctx context.Context, requestID, clientIP string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return context.WithValue(ctx, clientIPKey, clientIP)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ClientIP returns the client address stored in ctx, if any.
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
