package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajidk16/tadbeer/pkg/audit"
	"github.com/ajidk16/tadbeer/pkg/config"
	"github.com/ajidk16/tadbeer/pkg/httputil"
	"github.com/ajidk16/tadbeer/pkg/middleware"
	"github.com/ajidk16/tadbeer/pkg/observability"
	"github.com/ajidk16/tadbeer/pkg/rbac"
	"github.com/ajidk16/tadbeer/pkg/session"
	"github.com/ajidk16/tadbeer/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backing services
	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}

	redisClient, err := storage.OpenRedis(ctx, cfg.Storage.RedisURL)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}

	// Observability
	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Observability.AuditEnabled {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			logger.WithError(err).Error("failed to initialize audit logger")
			os.Exit(1)
		}
		recorder = dbLogger
	}

	// Stores and schemas
	sessionStore := session.NewStore(db)
	if err := sessionStore.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Error("failed to ensure session schema")
		os.Exit(1)
	}

	go sweepExpiredSessions(ctx, sessionStore, logger)

	policyStore := rbac.NewStore(db, recorder)
	if err := policyStore.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Error("failed to ensure policy schema")
		os.Exit(1)
	}

	// Pipeline
	throttleCfg := &middleware.ThrottleConfig{
		Quota:             cfg.Pipeline.ThrottleQuota,
		Window:            cfg.Pipeline.ThrottleWindow,
		TrustForwardedFor: cfg.Pipeline.TrustForwardedFor,
	}

	var limiter middleware.Admitter
	if cfg.Pipeline.ThrottleBackend == config.ThrottleBackendRedis {
		limiter = middleware.NewRedisRateLimiter(redisClient, throttleCfg, "throttle")
	} else {
		memLimiter := middleware.NewRateLimiter(throttleCfg)
		memLimiter.StartCleanup(ctx)
		limiter = memLimiter
	}

	policyCache := rbac.NewPolicyCache(policyStore, cfg.Pipeline.PolicyCacheTTL, logger, metrics)

	pipeline := middleware.Chain(
		middleware.LocaleResolver(),
		middleware.Throttle(limiter, throttleCfg, logger, metrics, recorder),
		middleware.SessionResolver(sessionStore, middleware.SessionResolverConfig{
			SecureCookies: cfg.Pipeline.SecureCookies,
		}, logger, metrics, recorder),
		middleware.AccessController(policyCache, middleware.AccessConfig{
			AppPrefixes:     cfg.Pipeline.AppPrefixes,
			LoginPath:       cfg.Pipeline.LoginPath,
			VerifyEmailPath: cfg.Pipeline.VerifyEmailPath,
		}, logger, metrics, recorder),
	)

	// Routes
	router := mux.NewRouter()
	registerRoutes(router)

	app := httputil.RequestIDMiddleware(
		httputil.RecoveryMiddleware(logger)(
			httputil.LoggingMiddleware(logger, metrics)(
				pipeline(router),
			),
		),
	)

	// Operational endpoints bypass the pipeline: probes and scrapers carry
	// no cookies and must not consume quota.
	root := http.NewServeMux()
	health := observability.NewHealthChecker(db, redisClient)
	observability.RegisterHealthRoutes(root, health)
	if metrics != nil {
		root.Handle("/metrics", metrics.Handler(registry))
	}
	root.Handle("/", app)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Infof("Starting tadbeer server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			cancel()
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterCloser("postgres", func(ctx context.Context) error {
		return db.Close()
	})
	if redisClient != nil {
		shutdown.RegisterCloser("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}

// sweepExpiredSessions periodically deletes session rows whose expiry has
// passed. Validation already deletes expired rows it touches; the sweep
// catches sessions that are never presented again.
func sweepExpiredSessions(ctx context.Context, store *session.Store, logger *observability.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx)
			if err != nil {
				logger.WithError(err).Warn("expired session sweep failed")
				continue
			}
			if n > 0 {
				logger.WithField("sessions", n).Debug("swept expired sessions")
			}
		case <-ctx.Done():
			return
		}
	}
}

// registerRoutes installs the page/API handlers. The CRUD back office lives
// behind these routes; here only the endpoints the pipeline itself needs
// (login landing, verification notice) plus a sample protected area are
// registered.
func registerRoutes(router *mux.Router) {
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]string{"page": "home"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/verify-email", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]string{"page": "verify-email"})
	}).Methods(http.MethodGet)

	router.PathPrefix("/admin").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := middleware.GetIdentity(r)
		httputil.WriteSuccess(w, map[string]interface{}{
			"page": "admin",
			"user": ident.User,
		})
	})
}
