package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ajidk16/tadbeer/pkg/audit"
	"github.com/ajidk16/tadbeer/pkg/contextkeys"
	"github.com/ajidk16/tadbeer/pkg/httputil"
	"github.com/ajidk16/tadbeer/pkg/observability"
)

// ThrottleConfig defines abuse throttle configuration
type ThrottleConfig struct {
	// Quota is the max requests allowed per client in one window
	Quota int
	// Window is the fixed counting window
	Window time.Duration
	// TrustForwardedFor uses the first X-Forwarded-For entry as the client
	// key. Only enable behind a proxy that strips the inbound header.
	TrustForwardedFor bool
}

// DefaultThrottleConfig returns default throttle settings
func DefaultThrottleConfig() *ThrottleConfig {
	return &ThrottleConfig{
		Quota:  100,
		Window: time.Minute,
	}
}

// Decision is the outcome of an admission check
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Admitter decides whether a client request may proceed. Implementations:
// RateLimiter (in-process) and RedisRateLimiter (shared across instances).
type Admitter interface {
	Admit(ctx context.Context, clientKey string) (Decision, error)
}

// clientWindow tracks one client's fixed window
type clientWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter is an in-process fixed-window request counter. Windows reset
// at fixed boundaries: the first request from a client opens a window, and
// once it closes the next request opens a fresh one. Intentionally
// process-local and approximate; each instance enforces its own quota.
type RateLimiter struct {
	config *ThrottleConfig

	mu      sync.Mutex
	windows map[string]*clientWindow

	now func() time.Time
}

// NewRateLimiter creates a new in-process rate limiter
func NewRateLimiter(config *ThrottleConfig) *RateLimiter {
	if config == nil {
		config = DefaultThrottleConfig()
	}

	return &RateLimiter{
		config:  config,
		windows: make(map[string]*clientWindow),
		now:     time.Now,
	}
}

// Admit checks the client against its current window.
//
// A denied request leaves the window untouched, so being throttled does not
// itself consume quota. Never returns an error.
func (rl *RateLimiter) Admit(_ context.Context, clientKey string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	w, exists := rl.windows[clientKey]
	if !exists || now.After(w.resetAt) {
		w = &clientWindow{resetAt: now.Add(rl.config.Window)}
		rl.windows[clientKey] = w
	}

	if w.count >= rl.config.Quota {
		return Decision{
			Allowed:    false,
			RetryAfter: w.resetAt.Sub(now),
		}, nil
	}

	w.count++
	return Decision{Allowed: true}, nil
}

// Size returns the number of tracked client windows
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Cleanup removes windows that have already closed
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// StartCleanup starts a background goroutine that prunes closed windows
// once per window until ctx is canceled
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.Window)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// Throttle is the abuse-throttle pipeline stage. A client over quota gets
// 429 with a Retry-After header; an Admitter failure (shared backing store
// down) is logged and the request is let through, since rate limiting is
// best-effort and must never take the site down with it.
func Throttle(limiter Admitter, config *ThrottleConfig, logger *observability.Logger, metrics *observability.Metrics, recorder audit.Recorder) Middleware {
	if config == nil {
		config = DefaultThrottleConfig()
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	keyFn := clientKeyFunc(config.TrustForwardedFor)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)

			decision, err := limiter.Admit(r.Context(), key)
			if err != nil {
				logger.WithError(err).WithField("client", key).
					Warn("throttle backend error, admitting request")
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				if metrics != nil {
					metrics.ThrottleDeniedTotal.WithLabelValues(backendLabel(limiter)).Inc()
				}
				if err := recorder.Record(r.Context(), &audit.Event{
					Timestamp: time.Now(),
					EventType: audit.EventThrottleExceeded,
					Status:    audit.StatusDenied,
					IPAddress: key,
					UserAgent: r.UserAgent(),
					RequestID: contextkeys.GetRequestID(r.Context()),
					Method:    r.Method,
					Path:      r.URL.Path,
				}); err != nil {
					logger.WithError(err).Warn("failed to record throttle rejection")
				}
				logger.WithField("client", key).Debug("request throttled")
				httputil.WriteTooManyRequests(w, ceilSeconds(decision.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ceilSeconds rounds a duration up to whole seconds for the Retry-After
// header; a client told to wait must never come back early.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

func backendLabel(a Admitter) string {
	if _, ok := a.(*RedisRateLimiter); ok {
		return "redis"
	}
	return "memory"
}

// clientKeyFunc returns the client-address extractor for throttle keys
func clientKeyFunc(trustXFF bool) func(r *http.Request) string {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				// first entry is the original client
				if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}
