// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/ajidk16/tadbeer/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.IdentityKey, ident)
//	ident := ctx.Value(contextkeys.IdentityKey).(*session.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *session.Identity
	// Set by: middleware.SessionResolver (pkg/middleware/session.go)
	// Required by: Access controller, all page/API handlers
	// Type: *session.Identity
	IdentityKey Key = "identity"

	// LocaleKey contains the resolved language tag string
	// Set by: middleware.LocaleResolver (pkg/middleware/locale.go)
	// Used by: Page rendering, outgoing Content-Language header
	// Type: string
	LocaleKey Key = "locale"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"
)

// Helper functions for type-safe context operations

// WithIdentity adds the resolved identity to the context
func WithIdentity(ctx context.Context, ident interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, ident)
}

// WithLocale adds the resolved locale to the context
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, LocaleKey, locale)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetLocale retrieves the resolved locale from context
func GetLocale(ctx context.Context) string {
	if locale, ok := ctx.Value(LocaleKey).(string); ok {
		return locale
	}
	return ""
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
