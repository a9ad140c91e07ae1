// Package app provides application lifecycle management for the blog publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jgchk/blog-sub001/internal/config"
	"github.com/jgchk/blog-sub001/internal/logger"
)

// PublisherApp encapsulates all components needed to run the publisher server
// It provides lifecycle management and graceful shutdown capabilities
type PublisherApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the application components (HTTP server and sync coordinator)
// This method blocks until the HTTP server stops or encounters an error
func (app *PublisherApp) Start() error {
	// Start sync coordinator in background
	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			logger.Errorf("Sync coordinator failed: %v", err)
		}
	}()

	// Start HTTP server (blocks until stopped)
	logger.Infof("Server listening on %s", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// The HTTP server stops accepting webhooks first, then the coordinator
// cancels the running sync and fails whatever is still queued.
func (app *PublisherApp) Stop(timeout time.Duration) error {
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	serverErr := app.httpServer.Shutdown(shutdownCtx)

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		logger.Errorf("Failed to stop sync coordinator: %v", err)
	}

	// Cancel the application context
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if serverErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", serverErr)
	}

	logger.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *PublisherApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *PublisherApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the wired publish components
func (app *PublisherApp) GetComponents() *AppComponents {
	return app.components
}
