// Package app wires the update agent together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhive-update-agent/internal/config"
	"github.com/stacklok/toolhive-update-agent/internal/lifecycle"
	"github.com/stacklok/toolhive-update-agent/internal/requests"
)

// UpdateAgentApp runs the sync coordinator next to its HTTP control API
type UpdateAgentApp struct {
	config       *config.Config
	components   *AppComponents
	httpServer   *http.Server
	watchSignals bool

	addrMu sync.RWMutex
	addr   net.Addr

	ctx        context.Context
	cancelFunc context.CancelFunc
	stopOnce   sync.Once
}

// Start runs the coordinator, the signal watcher and the HTTP server.
// It blocks until Stop is called or one of them fails.
func (app *UpdateAgentApp) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.addrMu.Lock()
	app.addr = listener.Addr()
	app.addrMu.Unlock()

	g, gctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		if err := app.components.SyncCoordinator.Start(gctx); err != nil {
			return fmt.Errorf("sync coordinator failed: %w", err)
		}
		return nil
	})

	if app.watchSignals {
		g.Go(func() error {
			lifecycle.WatchSignals(gctx, app.components.Lifecycle)
			return nil
		})
	}

	if dir := app.config.RequestSpoolDir; dir != "" {
		g.Go(func() error {
			if err := requests.WatchSpool(gctx, dir, app.components.Requests); err != nil {
				return fmt.Errorf("request spool failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", listener.Addr().String())
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	// Bring the HTTP server down when anything else ends the group
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		defer cancel()
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// The coordinator stops first so no sync starts while the server drains.
func (app *UpdateAgentApp) Stop(timeout time.Duration) error {
	var stopErr error
	app.stopOnce.Do(func() {
		slog.Info("Shutting down update agent...")

		if err := app.components.SyncCoordinator.Stop(); err != nil {
			slog.Error("Failed to stop sync coordinator", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			stopErr = fmt.Errorf("server forced to shutdown: %w", err)
		}

		if app.cancelFunc != nil {
			app.cancelFunc()
		}
		if app.components.StorageFactory != nil {
			app.components.StorageFactory.Cleanup()
		}

		slog.Info("Update agent shutdown complete")
	})
	return stopErr
}

// GetConfig returns the application configuration
func (app *UpdateAgentApp) GetConfig() *config.Config {
	return app.config
}

// GetComponents returns the wired components
func (app *UpdateAgentApp) GetComponents() *AppComponents {
	return app.components
}

// Addr returns the address the HTTP server listens on, or nil before Start
func (app *UpdateAgentApp) Addr() net.Addr {
	app.addrMu.RLock()
	defer app.addrMu.RUnlock()
	return app.addr
}
