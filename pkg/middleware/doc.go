// Package middleware implements the request authorization pipeline that
// gates every inbound request before any page or API handler runs.
//
// Stages, in order:
//
//	LocaleResolver  -> resolve the language tag, attach it to the context
//	Throttle        -> fixed-window per-client rate limiting (429)
//	SessionResolver -> cookie -> identity, sliding session expiry
//	AccessController-> static area gates + dynamic route policies (303/403)
//
// Control flow is strictly sequential and short-circuiting: a stage that
// denies writes its terminal response and no later stage runs. Data flows
// forward only, through the request context (identity, locale). Stages are
// plain func(http.Handler) http.Handler values composed by Chain, so the
// order is explicit at the call site and each stage is testable in
// isolation with httptest.
package middleware
