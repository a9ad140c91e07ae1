package app

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"

	"github.com/jgchk/blog-sub001/internal/api"
	"github.com/jgchk/blog-sub001/internal/api/admin"
	"github.com/jgchk/blog-sub001/internal/api/webhook"
	"github.com/jgchk/blog-sub001/internal/auth"
	"github.com/jgchk/blog-sub001/internal/awsconfig"
	"github.com/jgchk/blog-sub001/internal/cdn"
	"github.com/jgchk/blog-sub001/internal/config"
	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/markdown"
	"github.com/jgchk/blog-sub001/internal/notify"
	"github.com/jgchk/blog-sub001/internal/retry"
	"github.com/jgchk/blog-sub001/internal/sources"
	"github.com/jgchk/blog-sub001/internal/status"
	"github.com/jgchk/blog-sub001/internal/storage"
	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
	"github.com/jgchk/blog-sub001/internal/sync/coordinator"
	"github.com/jgchk/blog-sub001/internal/sync/tracker"
	"github.com/jgchk/blog-sub001/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// syncTracerName names the tracer used for pipeline spans
	syncTracerName = "github.com/jgchk/blog-sub001/sync"

	// readinessKey is looked up in storage by the readiness check;
	// only reachability matters, not whether it exists
	readinessKey = "index.html"
)

// AWSConfigLoader resolves AWS credentials and region
type AWSConfigLoader func(ctx context.Context, region string) (aws.Config, error)

// PublisherAppOptions is a function that configures the publisher app builder
type PublisherAppOptions func(*publisherAppConfig) error

// publisherAppConfig collects everything needed to build a PublisherApp
// It supports dependency injection for testing while providing sensible defaults for production
type publisherAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	fetcher     sources.ContentFetcher
	storage     storage.Storage
	notifier    notify.Notifier
	invalidator cdn.Invalidator
	statusFs    afero.Fs
	awsLoader   AWSConfigLoader

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Auth components
	authMiddleware func(http.Handler) http.Handler

	// Telemetry components
	telemetry *telemetry.Telemetry
}

func baseConfig(opts ...PublisherAppOptions) (*publisherAppConfig, error) {
	cfg := &publisherAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		statusFs:       afero.NewOsFs(),
		awsLoader:      awsconfig.Load,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return cfg, nil
}

// NewPublisherApp wires the publish pipeline, the sync coordinator and the HTTP server
func NewPublisherApp(
	ctx context.Context,
	opts ...PublisherAppOptions,
) (*PublisherApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Build auth middleware (if not injected)
	if cfg.authMiddleware == nil {
		cfg.authMiddleware, err = auth.NewAuthMiddleware(cfg.config.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to build auth middleware: %w", err)
		}
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &PublisherApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// BuildComponents wires the publish pipeline without an HTTP server.
// It backs one-shot syncs run from the command line.
func BuildComponents(ctx context.Context, opts ...PublisherAppOptions) (*AppComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, cfg)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithTelemetry sets the providers used for metrics, tracing and /metrics
func WithTelemetry(tel *telemetry.Telemetry) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		cfg.telemetry = tel
		return nil
	}
}

// WithFetcher allows injecting a content fetcher (for testing)
func WithFetcher(f sources.ContentFetcher) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithStorage allows injecting the publish store (for testing)
func WithStorage(s storage.Storage) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		cfg.storage = s
		return nil
	}
}

// WithNotifier allows injecting a notifier (for testing)
func WithNotifier(n notify.Notifier) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		cfg.notifier = n
		return nil
	}
}

// WithInvalidator allows injecting a CDN invalidator (for testing)
func WithInvalidator(i cdn.Invalidator) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		cfg.invalidator = i
		return nil
	}
}

// WithStatusFs sets the filesystem holding the sync status file
func WithStatusFs(fs afero.Fs) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		if fs == nil {
			return fmt.Errorf("status filesystem cannot be nil")
		}
		cfg.statusFs = fs
		return nil
	}
}

// WithAWSConfigLoader replaces the default AWS configuration loader
func WithAWSConfigLoader(loader AWSConfigLoader) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		if loader == nil {
			return fmt.Errorf("AWS config loader cannot be nil")
		}
		cfg.awsLoader = loader
		return nil
	}
}

// WithAuthMiddleware allows injecting the admin auth middleware (for testing)
func WithAuthMiddleware(mw func(http.Handler) http.Handler) PublisherAppOptions {
	return func(cfg *publisherAppConfig) error {
		cfg.authMiddleware = mw
		return nil
	}
}

// buildComponents builds the pipeline collaborators, the tracker and the coordinator
func buildComponents(ctx context.Context, b *publisherAppConfig) (*AppComponents, error) {
	logger.Info("Initializing publish components")
	cfg := b.config

	if b.fetcher == nil {
		fetcher, err := sources.NewFetcher(&cfg.Repository)
		if err != nil {
			return nil, fmt.Errorf("failed to create content fetcher: %w", err)
		}
		b.fetcher = fetcher
	}

	if b.storage == nil {
		store, err := buildStorage(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		b.storage = store
	}

	if b.notifier == nil {
		notifier, err := buildNotifier(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("failed to create notifier: %w", err)
		}
		b.notifier = notifier
	}

	if b.invalidator == nil {
		invalidator, err := buildInvalidator(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("failed to create CDN invalidator: %w", err)
		}
		b.invalidator = invalidator
	}

	statusFile := cfg.Tracker.GetStatusFile()
	syncTracker := tracker.New(tracker.WithPersistence(status.NewFilePersistence(b.statusFs, statusFile)))
	if err := syncTracker.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load sync status from %s: %w", statusFile, err)
	}
	logger.Infof("Loaded %d sync records from %s", syncTracker.Total(), statusFile)

	retryOpts := cfg.Sync.GetRetryOptions()
	retryOpts.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warnf("Attempt %d failed, retrying in %s: %v", attempt, delay, err)
	}

	deps := pkgsync.Dependencies{
		Fetcher:     b.fetcher,
		Parser:      markdown.NewParser(cfg.Repository.GetContentRoot()),
		Renderer:    markdown.NewRenderer(cfg.Site.GetSiteName()),
		Storage:     b.storage,
		Notifier:    b.notifier,
		Invalidator: b.invalidator,
		Tracker:     syncTracker,
		Retry:       retry.New(retryOpts),
		ContentRoot: cfg.Repository.GetContentRoot(),
		Workers:     cfg.Sync.GetWorkers(),
	}

	coordOpts := []coordinator.Option{
		coordinator.WithQueueSize(cfg.Sync.GetQueueSize()),
		coordinator.WithSchedule(cfg.Sync.GetScheduleInterval(), cfg.Repository.GetBranch()),
	}

	// Create sync metrics and tracer if telemetry is configured
	if b.telemetry != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		deps.Metrics = syncMetrics
		deps.Tracer = b.telemetry.Tracer(syncTracerName)
		coordOpts = append(coordOpts, coordinator.WithSyncMetrics(syncMetrics))
	}

	orchestrator, err := pkgsync.New(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync orchestrator: %w", err)
	}

	syncCoordinator := coordinator.New(orchestrator, syncTracker, coordOpts...)
	logger.Info("Publish components initialized successfully")

	return &AppComponents{
		SyncCoordinator: syncCoordinator,
		Orchestrator:    orchestrator,
		Tracker:         syncTracker,
		Storage:         b.storage,
	}, nil
}

func buildStorage(ctx context.Context, b *publisherAppConfig) (storage.Storage, error) {
	sc := b.config.Storage
	switch sc.GetType() {
	case config.StorageTypeFile:
		path := sc.GetFilePath()
		logger.Infof("Publishing to directory %s", path)
		return storage.NewFileStorage(path), nil
	case config.StorageTypeS3:
		awsCfg, err := b.awsLoader(ctx, sc.S3.Region)
		if err != nil {
			return nil, err
		}
		s3Store := storage.NewS3StorageFromConfig(awsCfg, sc.S3.Bucket, sc.S3.Prefix)
		logger.Infof("Publishing to %s", s3Store)
		return s3Store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sc.Type)
	}
}

func buildNotifier(ctx context.Context, b *publisherAppConfig) (notify.Notifier, error) {
	nc := b.config.Notifications
	switch nc.GetType() {
	case config.NotificationTypeLog:
		return notify.NewLogNotifier(), nil
	case config.NotificationTypeSNS:
		awsCfg, err := b.awsLoader(ctx, nc.SNS.Region)
		if err != nil {
			return nil, err
		}
		logger.Infof("Sending notifications to %s", nc.SNS.TopicARN)
		return notify.NewSNSNotifierFromConfig(awsCfg, nc.SNS.TopicARN), nil
	default:
		return nil, fmt.Errorf("unsupported notification type: %s", nc.Type)
	}
}

func buildInvalidator(ctx context.Context, b *publisherAppConfig) (cdn.Invalidator, error) {
	cc := b.config.CDN
	switch cc.GetType() {
	case config.CDNTypeNone:
		return cdn.NoopInvalidator{}, nil
	case config.CDNTypeCloudFront:
		awsCfg, err := b.awsLoader(ctx, cc.CloudFront.Region)
		if err != nil {
			return nil, err
		}
		logger.Infof("Invalidating CloudFront distribution %s", cc.CloudFront.DistributionID)
		return cdn.NewCloudFrontInvalidatorFromConfig(awsCfg, cc.CloudFront.DistributionID), nil
	default:
		return nil, fmt.Errorf("unsupported CDN type: %s", cc.Type)
	}
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *publisherAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	logger.Info("Initializing HTTP server")
	cfg := b.config

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	serverOpts := []api.ServerOption{}

	// Metrics and tracing wrap everything, including requests rejected by auth
	if b.telemetry != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{
			metricsMiddleware,
			telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
		}, b.middlewares...)

		if h := b.telemetry.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(h))
			logger.Info("Prometheus metrics exposed on /metrics")
		}
	}

	// Create auth middleware that bypasses public paths
	authMw := b.authMiddleware
	if authMw == nil {
		authMw = func(next http.Handler) http.Handler { return next }
	}
	publicPaths := append([]string{}, auth.DefaultPublicPaths...)
	if cfg.Auth != nil {
		publicPaths = append(publicPaths, cfg.Auth.PublicPaths...)
	}
	b.middlewares = append(b.middlewares, auth.WrapWithPublicPaths(authMw, publicPaths))

	secret, err := cfg.Webhook.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}
	webhookRouter, err := webhook.Router(components.SyncCoordinator, webhook.Config{
		Secret:       []byte(secret),
		Branch:       cfg.Repository.GetBranch(),
		ContentRoot:  cfg.Repository.GetContentRoot(),
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook router: %w", err)
	}

	adminRouter, err := admin.Router(
		components.SyncCoordinator,
		components.Orchestrator,
		components.Tracker,
		admin.WithDefaultRef(cfg.Repository.GetBranch()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin router: %w", err)
	}

	serverOpts = append(serverOpts,
		api.WithMiddlewares(b.middlewares...),
		api.WithWebhook(webhookRouter),
		api.WithAdmin(adminRouter),
		api.WithReadinessCheck(storageReadiness(components.Storage)),
	)
	router := api.NewServer(serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	logger.Infof("HTTP server configured on %s", b.address)
	return server, nil
}

// storageReadiness reports the publisher ready once the publish store answers
func storageReadiness(store storage.Storage) api.ReadinessCheck {
	return func(ctx context.Context) error {
		if _, err := store.Exists(ctx, readinessKey); err != nil {
			return fmt.Errorf("storage unavailable: %w", err)
		}
		return nil
	}
}
