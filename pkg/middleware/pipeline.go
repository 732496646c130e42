package middleware

import (
	"net/http"

	"github.com/ajidk16/tadbeer/pkg/contextkeys"
	"github.com/ajidk16/tadbeer/pkg/session"
)

// Middleware wraps an http.Handler with one pipeline stage
type Middleware func(http.Handler) http.Handler

// Chain composes stages into a single middleware. The listed order is the
// execution order: Chain(a, b, c) runs a, then b, then c, then the final
// handler. Composition is a right fold so no stage knows its neighbors.
func Chain(stages ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		h := final
		for i := len(stages) - 1; i >= 0; i-- {
			h = stages[i](h)
		}
		return h
	}
}

// GetIdentity extracts the resolved identity from the request context.
// Returns nil when the session resolver has not run; an anonymous caller
// yields a non-nil identity with no user.
func GetIdentity(r *http.Request) *session.Identity {
	v := r.Context().Value(contextkeys.IdentityKey)
	if v == nil {
		return nil
	}
	ident, ok := v.(*session.Identity)
	if !ok {
		return nil
	}
	return ident
}
