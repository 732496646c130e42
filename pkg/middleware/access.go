package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/ajidk16/tadbeer/pkg/audit"
	"github.com/ajidk16/tadbeer/pkg/contextkeys"
	"github.com/ajidk16/tadbeer/pkg/httputil"
	"github.com/ajidk16/tadbeer/pkg/observability"
	"github.com/ajidk16/tadbeer/pkg/rbac"
	"github.com/ajidk16/tadbeer/pkg/session"
)

// ForbiddenMessage is the plain-text body of a 403 denial
const ForbiddenMessage = "Forbidden: You do not have permission to access this resource."

// AccessConfig defines access controller settings
type AccessConfig struct {
	// AppPrefixes are the authenticated-area path prefixes: everything
	// under them requires a logged-in, email-verified user before any
	// dynamic policy is even consulted.
	AppPrefixes []string
	// LoginPath is where unauthenticated users are sent
	LoginPath string
	// VerifyEmailPath is where unverified users are sent
	VerifyEmailPath string
}

// DefaultAccessConfig returns default access controller settings
func DefaultAccessConfig() AccessConfig {
	return AccessConfig{
		AppPrefixes:     []string{"/admin"},
		LoginPath:       "/",
		VerifyEmailPath: "/verify-email",
	}
}

// AccessController authorizes the resolved identity against the request
// path. Two layers run in order:
//
//  1. Static area gate: authenticated-area paths need a user (303 to the
//     login page) with a verified email (303 to the verification page).
//  2. Dynamic policy: the most specific cached route policy, if any,
//     decides by role. No matching policy means the route is unprotected
//     and the request is forwarded as-is.
//
// Every denial is a terminal response; nothing downstream runs.
func AccessController(cache *rbac.PolicyCache, config AccessConfig, logger *observability.Logger, metrics *observability.Metrics, recorder audit.Recorder) Middleware {
	if len(config.AppPrefixes) == 0 {
		config = DefaultAccessConfig()
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			ident := GetIdentity(r)

			if inArea(config.AppPrefixes, path) {
				if !ident.IsAuthenticated() {
					deny(w, r, logger, metrics, recorder, ident, observability.DenyReasonUnauthenticated, func() {
						httputil.Redirect(w, config.LoginPath)
					})
					return
				}
				if !ident.User.IsEmailVerified() {
					deny(w, r, logger, metrics, recorder, ident, observability.DenyReasonUnverifiedEmail, func() {
						httputil.Redirect(w, config.VerifyEmailPath)
					})
					return
				}
			}

			policy := cache.Match(r.Context(), path)
			if policy == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !ident.IsAuthenticated() {
				deny(w, r, logger, metrics, recorder, ident, observability.DenyReasonUnauthenticated, func() {
					httputil.Redirect(w, config.LoginPath)
				})
				return
			}

			if !policy.Roles.Has(ident.User.Role) {
				deny(w, r, logger, metrics, recorder, ident, observability.DenyReasonRole, func() {
					httputil.WriteForbidden(w, ForbiddenMessage)
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// inArea reports whether the path falls under any of the area prefixes.
// A prefix matches itself and its sub-paths, not sibling paths that merely
// share characters ("/admin" matches "/admin/users", not "/administrator").
func inArea(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func deny(w http.ResponseWriter, r *http.Request, logger *observability.Logger, metrics *observability.Metrics, recorder audit.Recorder, ident *session.Identity, reason string, respond func()) {
	if metrics != nil {
		metrics.AccessDeniedTotal.WithLabelValues(reason).Inc()
	}

	event := &audit.Event{
		Timestamp: time.Now(),
		EventType: audit.EventAccessDenied,
		Status:    audit.StatusDenied,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
		Message:   reason,
	}
	if ident.IsAuthenticated() {
		event.UserID = ident.User.ID
		event.Username = ident.User.Username
	}
	if err := recorder.Record(r.Context(), event); err != nil {
		// Audit failures are an operator problem, never the user's.
		logger.WithError(err).Warn("failed to record access denial")
	}

	logger.WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"reason": reason,
	}).Info("access denied")

	respond()
}
