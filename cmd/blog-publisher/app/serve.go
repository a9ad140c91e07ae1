package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jgchk/blog-sub001/internal/app"
	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/telemetry"
	"github.com/jgchk/blog-sub001/internal/versions"
)

const (
	defaultGracefulTimeout = 30 * time.Second // Lets the running sync reach a safe point
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook and admin API server",
		Long: `Start the publisher server.

The server requires a configuration file (--config) that specifies:
- The content repository and the branch to publish
- The webhook secret
- The publish store, notifications and CDN
- Sync tuning and the admin API authentication

See examples/ directory for sample configurations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	if err := v.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}

	if cfg.Telemetry != nil && cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = versions.Version
	}
	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			logger.Warnf("Telemetry shutdown failed: %v", err)
		}
	}()

	// The app outlives the signal context so Stop can shut it down in order
	publisher, err := app.NewPublisherApp(context.WithoutCancel(ctx),
		app.WithConfig(cfg),
		app.WithAddress(v.GetString("address")),
		app.WithTelemetry(tel),
	)
	if err != nil {
		return fmt.Errorf("failed to build publisher: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- publisher.Start()
	}()

	select {
	case err := <-errCh:
		if stopErr := publisher.Stop(defaultGracefulTimeout); stopErr != nil {
			logger.Errorf("Shutdown after server failure: %v", stopErr)
		}
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	return publisher.Stop(defaultGracefulTimeout)
}
