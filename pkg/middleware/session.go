package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/ajidk16/tadbeer/pkg/audit"
	"github.com/ajidk16/tadbeer/pkg/contextkeys"
	"github.com/ajidk16/tadbeer/pkg/observability"
	"github.com/ajidk16/tadbeer/pkg/session"
)

// SessionValidator resolves a session token into its session and user.
// *session.Store satisfies this; tests substitute fakes.
type SessionValidator interface {
	ValidateSessionToken(ctx context.Context, token string) (*session.Session, *session.User, error)
}

// SessionResolverConfig defines session resolver settings
type SessionResolverConfig struct {
	// SecureCookies marks issued cookies Secure; enable everywhere TLS
	// terminates in front of the server.
	SecureCookies bool
}

// SessionResolver resolves the caller's identity from the session cookie.
//
// This stage never denies a request. Every path through it forwards with an
// Identity in the context; the access controller decides what an anonymous
// identity is allowed to do.
//
//   - no cookie: anonymous identity
//   - valid session: identity set, cookie re-issued so the browser expiry
//     tracks the (possibly just extended) server expiry
//   - expired or unknown token: cookie cleared, expiry audited, anonymous
//     identity
//   - store failure: logged, anonymous identity (the user can't be
//     authenticated while the store is down, but the site stays up)
func SessionResolver(store SessionValidator, config SessionResolverConfig, logger *observability.Logger, metrics *observability.Metrics, recorder audit.Recorder) Middleware {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := session.TokenFromRequest(r)
			if token == "" {
				forwardWithIdentity(next, w, r, &session.Identity{})
				recordSessionOutcome(metrics, observability.SessionOutcomeAnonymous)
				return
			}

			sess, user, err := store.ValidateSessionToken(r.Context(), token)
			if err != nil {
				logger.WithError(err).Warn("session lookup failed, treating request as anonymous")
				recordSessionOutcome(metrics, observability.SessionOutcomeError)
				forwardWithIdentity(next, w, r, &session.Identity{})
				return
			}

			if sess == nil {
				session.ClearCookie(w, config.SecureCookies)
				recordSessionOutcome(metrics, observability.SessionOutcomeExpired)
				if err := recorder.Record(r.Context(), &audit.Event{
					Timestamp: time.Now(),
					EventType: audit.EventSessionExpired,
					Status:    audit.StatusFailure,
					IPAddress: r.RemoteAddr,
					UserAgent: r.UserAgent(),
					RequestID: contextkeys.GetRequestID(r.Context()),
					Method:    r.Method,
					Path:      r.URL.Path,
				}); err != nil {
					logger.WithError(err).Warn("failed to record session expiry")
				}
				forwardWithIdentity(next, w, r, &session.Identity{})
				return
			}

			session.IssueCookie(w, token, sess.ExpiresAt, config.SecureCookies)
			recordSessionOutcome(metrics, observability.SessionOutcomeValid)
			if metrics != nil && sess.Extended {
				metrics.SessionsExtendedTotal.Inc()
			}

			forwardWithIdentity(next, w, r, &session.Identity{User: user, Session: sess})
		})
	}
}

func forwardWithIdentity(next http.Handler, w http.ResponseWriter, r *http.Request, ident *session.Identity) {
	ctx := contextkeys.WithIdentity(r.Context(), ident)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func recordSessionOutcome(metrics *observability.Metrics, outcome string) {
	if metrics != nil {
		metrics.SessionsResolvedTotal.WithLabelValues(outcome).Inc()
	}
}
