package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ajidk16/tadbeer/pkg/rbac"
	"github.com/ajidk16/tadbeer/pkg/session"
)

func TestChain_Order(t *testing.T) {
	var order []string
	stage := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(stage("a"), stage("b"), stage("c"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"a", "b", "c", "handler"}
	if len(order) != len(want) {
		t.Fatalf("execution order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestChain_ShortCircuitSkipsLaterStages(t *testing.T) {
	reached := false
	blocker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	tracker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			next.ServeHTTP(w, r)
		})
	}

	handler := Chain(blocker, tracker)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if reached {
		t.Error("stages after a terminal response must not run")
	}
}

// buildPipeline wires the four stages the way the server does, against fake
// session and policy backends.
func buildPipeline(validator SessionValidator, cache *rbac.PolicyCache, throttleCfg *ThrottleConfig) http.Handler {
	logger := testLogger()
	limiter := NewRateLimiter(throttleCfg)

	pipeline := Chain(
		LocaleResolver(),
		Throttle(limiter, throttleCfg, logger, nil, nil),
		SessionResolver(validator, SessionResolverConfig{}, logger, nil, nil),
		AccessController(cache, DefaultAccessConfig(), logger, nil, nil),
	)

	return pipeline(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("page"))
	}))
}

func TestPipeline_JamaahDeniedOnAdminSettings(t *testing.T) {
	verified := time.Now()
	validator := &fakeValidator{
		sess: &session.Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
		user: &session.User{ID: "u1", Username: "warga", Role: session.RoleJamaah, EmailVerified: &verified},
	}
	cache := testPolicyCache(rbac.RoutePolicy{
		Prefix: "/admin",
		Roles:  rbac.NewRoleSet(session.RoleAdmin, session.RoleSuperAdmin),
	})

	handler := buildPipeline(validator, cache, DefaultThrottleConfig())

	req := httptest.NewRequest(http.MethodGet, "/admin/settings/users", nil)
	req.RemoteAddr = "203.0.113.7:40000"
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "tok-jamaah"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if body := rec.Body.String(); body != ForbiddenMessage {
		t.Errorf("body = %q, want %q", body, ForbiddenMessage)
	}
	// The locale stage ran before the denial
	if got := rec.Header().Get("Content-Language"); got != "id" {
		t.Errorf("Content-Language = %q, want id", got)
	}
	// The session stage re-issued the cookie before the denial
	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.Value == "tok-jamaah" {
			found = true
		}
	}
	if !found {
		t.Error("session cookie should be re-issued even on a denied request")
	}
}

func TestPipeline_ThrottleRunsBeforeSessionLookup(t *testing.T) {
	validator := &fakeValidator{}
	cache := testPolicyCache()

	handler := buildPipeline(validator, cache, &ThrottleConfig{Quota: 1, Window: time.Minute})

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.8:40000"
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "tok"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("/"); rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}
	validator.gotToken = ""

	rec := send("/")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
	if validator.gotToken != "" {
		t.Error("a throttled request must not reach the session store")
	}
}

func TestPipeline_AnonymousBrowsingPublicPages(t *testing.T) {
	validator := &fakeValidator{}
	cache := testPolicyCache(rbac.RoutePolicy{
		Prefix: "/admin",
		Roles:  rbac.NewRoleSet(session.RoleAdmin),
	})

	handler := buildPipeline(validator, cache, DefaultThrottleConfig())

	req := httptest.NewRequest(http.MethodGet, "/jadwal-sholat", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for an anonymous public request", rec.Code)
	}
}
