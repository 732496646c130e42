package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ajidk16/tadbeer/pkg/contextkeys"
	"github.com/ajidk16/tadbeer/pkg/rbac"
	"github.com/ajidk16/tadbeer/pkg/session"
)

// staticPolicies is a PolicyFetcher serving a fixed policy table
type staticPolicies []rbac.RoutePolicy

func (s staticPolicies) FetchRoutePolicies(ctx context.Context) ([]rbac.RoutePolicy, error) {
	return s, nil
}

func testPolicyCache(policies ...rbac.RoutePolicy) *rbac.PolicyCache {
	return rbac.NewPolicyCache(staticPolicies(policies), time.Minute, testLogger(), nil)
}

func verifiedUser(role string) *session.User {
	verified := time.Now()
	return &session.User{ID: "u1", Username: "test-user", Role: role, EmailVerified: &verified}
}

func identityFor(user *session.User) *session.Identity {
	if user == nil {
		return &session.Identity{}
	}
	return &session.Identity{
		User:    user,
		Session: &session.Session{ID: "s1", UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)},
	}
}

// serveAccess runs one request through the access controller with the given
// identity already resolved, mirroring the pipeline order.
func serveAccess(t *testing.T, cache *rbac.PolicyCache, ident *session.Identity, path string) *httptest.ResponseRecorder {
	t.Helper()

	handler := AccessController(cache, DefaultAccessConfig(), testLogger(), nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(contextkeys.WithIdentity(req.Context(), ident))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAccessController_PublicPathPassesThrough(t *testing.T) {
	cache := testPolicyCache()

	rec := serveAccess(t, cache, identityFor(nil), "/about")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for an unprotected path", rec.Code)
	}
}

func TestAccessController_AdminAreaRequiresLogin(t *testing.T) {
	cache := testPolicyCache()

	rec := serveAccess(t, cache, identityFor(nil), "/admin/jamaah")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestAccessController_AdminAreaRequiresVerifiedEmail(t *testing.T) {
	cache := testPolicyCache()
	user := &session.User{ID: "u1", Username: "budi", Role: session.RoleAdmin}

	rec := serveAccess(t, cache, identityFor(user), "/admin")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/verify-email" {
		t.Errorf("Location = %q, want /verify-email", loc)
	}
}

func TestAccessController_AreaPrefixDoesNotMatchSiblings(t *testing.T) {
	cache := testPolicyCache()

	// "/administrator" shares a prefix string but is not inside "/admin"
	rec := serveAccess(t, cache, identityFor(nil), "/administrator")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 outside the admin area", rec.Code)
	}
}

func TestAccessController_RoleDenied(t *testing.T) {
	cache := testPolicyCache(rbac.RoutePolicy{
		Prefix: "/admin",
		Roles:  rbac.NewRoleSet(session.RoleAdmin, session.RoleSuperAdmin),
	})

	rec := serveAccess(t, cache, identityFor(verifiedUser(session.RoleJamaah)), "/admin/settings/users")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if body := rec.Body.String(); body != ForbiddenMessage {
		t.Errorf("body = %q, want %q", body, ForbiddenMessage)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestAccessController_RoleAllowed(t *testing.T) {
	cache := testPolicyCache(rbac.RoutePolicy{
		Prefix: "/admin",
		Roles:  rbac.NewRoleSet(session.RoleAdmin),
	})

	rec := serveAccess(t, cache, identityFor(verifiedUser(session.RoleAdmin)), "/admin/jamaah")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAccessController_LongestPrefixWins(t *testing.T) {
	cache := testPolicyCache(
		rbac.RoutePolicy{Prefix: "/admin", Roles: rbac.NewRoleSet(session.RoleAdmin, session.RoleSuperAdmin)},
		rbac.RoutePolicy{Prefix: "/admin/settings", Roles: rbac.NewRoleSet(session.RoleSuperAdmin)},
	)

	// admin may use the broad area but not the narrower settings policy
	if rec := serveAccess(t, cache, identityFor(verifiedUser(session.RoleAdmin)), "/admin/jamaah"); rec.Code != http.StatusOK {
		t.Errorf("/admin/jamaah as admin: status = %d, want 200", rec.Code)
	}
	if rec := serveAccess(t, cache, identityFor(verifiedUser(session.RoleAdmin)), "/admin/settings/roles"); rec.Code != http.StatusForbidden {
		t.Errorf("/admin/settings/roles as admin: status = %d, want 403", rec.Code)
	}
	if rec := serveAccess(t, cache, identityFor(verifiedUser(session.RoleSuperAdmin)), "/admin/settings/roles"); rec.Code != http.StatusOK {
		t.Errorf("/admin/settings/roles as super_admin: status = %d, want 200", rec.Code)
	}
}

func TestAccessController_DenialIsAudited(t *testing.T) {
	cache := testPolicyCache(rbac.RoutePolicy{
		Prefix: "/admin",
		Roles:  rbac.NewRoleSet(session.RoleAdmin),
	})
	recorder := &capturingRecorder{}

	handler := AccessController(cache, DefaultAccessConfig(), testLogger(), nil, recorder)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/admin/keuangan", nil)
	req = req.WithContext(contextkeys.WithIdentity(req.Context(), identityFor(verifiedUser(session.RoleImam))))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(recorder.events) != 1 {
		t.Fatalf("recorded %d audit events, want 1", len(recorder.events))
	}
	e := recorder.events[0]
	if e.EventType != "access.denied" {
		t.Errorf("event type = %q, want access.denied", e.EventType)
	}
	if e.UserID != "u1" {
		t.Errorf("user id = %q, want u1", e.UserID)
	}
	if e.Path != "/admin/keuangan" {
		t.Errorf("path = %q", e.Path)
	}
}

func TestAccessController_PolicyOutsideAdminAreaRedirectsAnonymous(t *testing.T) {
	cache := testPolicyCache(rbac.RoutePolicy{
		Prefix: "/api/reports",
		Roles:  rbac.NewRoleSet(session.RoleBendahara),
	})

	rec := serveAccess(t, cache, identityFor(nil), "/api/reports/monthly")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}
