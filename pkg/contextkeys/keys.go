// Package contextkeys provides centralized context key definitions
//
// All request-scoped values read by more than one package are defined here so
// that producers (HTTP middleware, RPC interceptors) and consumers (audit,
// logging, risk scoring) agree on the key and the stored type.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithRequestID(ctx, id)
//	ctx = contextkeys.WithClient(ctx, r.RemoteAddr, r.UserAgent())
//	ip := contextkeys.ClientIP(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// ActorIDKey contains the int64 ID of the authenticated user making the call
	// Used by: logger, cross-tenant rule administration
	ActorIDKey Key = "actor_id"

	// ClientIPKey contains the caller IP address as a string
	// Used by: audit trail, cross-tenant check records, risk scoring
	ClientIPKey Key = "client_ip"

	// UserAgentKey contains the caller user agent string
	// Used by: audit trail, cross-tenant check records, risk scoring
	UserAgentKey Key = "user_agent"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves request ID from context
func RequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithActorID adds the acting user ID to the context
func WithActorID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ActorIDKey, userID)
}

// ActorID retrieves the acting user ID from context
func ActorID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ActorIDKey).(int64)
	return id, ok
}

// WithClient adds the caller address and user agent to the context.
// Empty values are not stored.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	if ip != "" {
		ctx = context.WithValue(ctx, ClientIPKey, ip)
	}
	if userAgent != "" {
		ctx = context.WithValue(ctx, UserAgentKey, userAgent)
	}
	return ctx
}

// ClientIP retrieves the caller IP address from context
func ClientIP(ctx context.Context) string {
	return stringValue(ctx, ClientIPKey)
}

// UserAgent retrieves the caller user agent from context
func UserAgent(ctx context.Context) string {
	return stringValue(ctx, UserAgentKey)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

func stringValue(ctx context.Context, key Key) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
