package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Closer releases one resource during shutdown
type Closer func(context.Context) error

type namedCloser struct {
	name  string
	close Closer
}

// ShutdownManager drains the HTTP server and closes registered resources
// when the process receives SIGINT or SIGTERM.
//
// Order matters: the server stops accepting and drains first, then closers
// run in registration order, so stores close only after the last in-flight
// request has released them.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu      sync.Mutex
	closers []namedCloser
}

// NewShutdownManager creates a shutdown manager for the given server
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterCloser adds a named resource to release during shutdown
func (sm *ShutdownManager) RegisterCloser(name string, close Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, close: close})
}

// WaitForShutdown blocks until a termination signal arrives, then performs
// the shutdown sequence within the configured timeout
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var failed int

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("server drain failed")
			failed++
		}
	}

	sm.mu.Lock()
	closers := sm.closers
	sm.mu.Unlock()

	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			sm.logger.WithError(err).WithField("resource", c.name).Error("close failed")
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("shutdown finished with %d failures", failed)
	}
	sm.logger.Info("shutdown complete")
	return nil
}
