// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services and stores read them
// without importing net/http.
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	reviewerIDKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyReviewerID  = reviewerIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// ReviewerID retrieves the authenticated reviewer ID from the context.
// Returns "" if the request was not authenticated.
func ReviewerID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyReviewerID).(string); ok {
		return v
	}
	return ""
}

// WithReviewerID injects a reviewer ID into the context.
func WithReviewerID(ctx context.Context, reviewerID string) context.Context {
	return context.WithValue(ctx, ContextKeyReviewerID, reviewerID)
}

// RequestID retrieves the correlation ID from the context.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context. Falls back to time.Now()
// for non-HTTP contexts (workers, sweeps, tests that don't pin time).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for batch operations that need one consistent timestamp.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
