// Package config provides configuration loading and management for the publisher.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jgchk/blog-sub001/internal/retry"
	"github.com/jgchk/blog-sub001/internal/telemetry"
)

const (
	// RepositoryTypeGit reads content from a remote git repository
	RepositoryTypeGit = "git"

	// RepositoryTypeFilesystem reads content from a local checkout
	RepositoryTypeFilesystem = "filesystem"
)

const (
	// StorageTypeFile publishes into a local directory
	StorageTypeFile = "file"

	// StorageTypeS3 publishes into an S3 bucket
	StorageTypeS3 = "s3"
)

const (
	// NotificationTypeLog writes notifications to the log
	NotificationTypeLog = "log"

	// NotificationTypeSNS publishes notifications to an SNS topic
	NotificationTypeSNS = "sns"
)

const (
	// CDNTypeNone disables cache invalidation
	CDNTypeNone = "none"

	// CDNTypeCloudFront invalidates a CloudFront distribution
	CDNTypeCloudFront = "cloudfront"
)

const (
	// AuthModeAnonymous leaves the admin API open
	AuthModeAnonymous = "anonymous"

	// AuthModeToken requires a static bearer token on the admin API
	AuthModeToken = "token"
)

// Environment variables consulted when the matching *File setting is empty
const (
	EnvWebhookSecret      = "BLOG_WEBHOOK_SECRET"
	EnvRepositoryPassword = "BLOG_REPOSITORY_PASSWORD"
	EnvAdminToken         = "BLOG_ADMIN_TOKEN"
)

const (
	defaultBranch      = "main"
	defaultContentRoot = "posts"
	defaultSiteName    = "Blog"
	defaultStoragePath = "./public"
	defaultStatusFile  = "./data/sync-status.json"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Site          SiteConfig           `yaml:"site,omitempty"`
	Repository    RepositoryConfig     `yaml:"repository"`
	Webhook       WebhookConfig        `yaml:"webhook"`
	Storage       StorageConfig        `yaml:"storage"`
	Notifications *NotificationsConfig `yaml:"notifications,omitempty"`
	CDN           *CDNConfig           `yaml:"cdn,omitempty"`
	Sync          *SyncConfig          `yaml:"sync,omitempty"`
	Tracker       *TrackerConfig       `yaml:"tracker,omitempty"`
	Auth          *AuthConfig          `yaml:"auth,omitempty"`
	Telemetry     *telemetry.Config    `yaml:"telemetry,omitempty"`
	Logging       *LoggingConfig       `yaml:"logging,omitempty"`
}

// SiteConfig describes the published site
type SiteConfig struct {
	// Name is used in page titles. Defaults to "Blog".
	Name string `yaml:"name,omitempty"`
}

// RepositoryConfig describes where blog posts are read from
type RepositoryConfig struct {
	// Type is "git" (default) or "filesystem"
	Type string `yaml:"type,omitempty"`

	// URL is the git repository URL, required for git repositories
	URL string `yaml:"url,omitempty"`

	// Path is the local checkout, required for filesystem repositories
	Path string `yaml:"path,omitempty"`

	// Branch is the branch whose pushes are published. Defaults to "main".
	Branch string `yaml:"branch,omitempty"`

	// ContentRoot is the directory holding one folder per post. Defaults to "posts".
	ContentRoot string `yaml:"contentRoot,omitempty"`

	Auth *RepositoryAuthConfig `yaml:"auth,omitempty"`
}

// RepositoryAuthConfig holds HTTP basic credentials for a private repository
type RepositoryAuthConfig struct {
	Username string `yaml:"username"`

	// PasswordFile contains the password or access token
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// WebhookConfig configures push intake
type WebhookConfig struct {
	// SecretFile contains the shared HMAC secret
	SecretFile string `yaml:"secretFile,omitempty"`

	// MaxBodyBytes limits the accepted payload size
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty"`
}

// StorageConfig selects the publish store
type StorageConfig struct {
	// Type is "file" (default) or "s3"
	Type string             `yaml:"type,omitempty"`
	File *FileStorageConfig `yaml:"file,omitempty"`
	S3   *S3StorageConfig   `yaml:"s3,omitempty"`
}

// FileStorageConfig publishes into a local directory
type FileStorageConfig struct {
	Path string `yaml:"path"`
}

// S3StorageConfig publishes into an S3 bucket
type S3StorageConfig struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// NotificationsConfig selects where operator notifications go
type NotificationsConfig struct {
	// Type is "log" (default) or "sns"
	Type string     `yaml:"type,omitempty"`
	SNS  *SNSConfig `yaml:"sns,omitempty"`
}

// SNSConfig publishes notifications to a topic
type SNSConfig struct {
	TopicARN string `yaml:"topicArn"`
	Region   string `yaml:"region,omitempty"`
}

// CDNConfig selects the cache invalidated after a publish
type CDNConfig struct {
	// Type is "none" (default) or "cloudfront"
	Type       string            `yaml:"type,omitempty"`
	CloudFront *CloudFrontConfig `yaml:"cloudfront,omitempty"`
}

// CloudFrontConfig names the distribution to invalidate
type CloudFrontConfig struct {
	DistributionID string `yaml:"distributionId"`
	Region         string `yaml:"region,omitempty"`
}

// SyncConfig tunes the publish pipeline
type SyncConfig struct {
	// Workers bounds per-article parallelism
	Workers int `yaml:"workers,omitempty"`

	// QueueSize bounds the number of syncs waiting to run
	QueueSize int `yaml:"queueSize,omitempty"`

	Retry    *RetryConfig    `yaml:"retry,omitempty"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
}

// RetryConfig tunes retries of infrastructure operations
type RetryConfig struct {
	MaxRetries        *int    `yaml:"maxRetries,omitempty"`
	InitialDelay      string  `yaml:"initialDelay,omitempty"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier,omitempty"`
	MaxDelay          string  `yaml:"maxDelay,omitempty"`
}

// ScheduleConfig enables periodic full syncs
type ScheduleConfig struct {
	// Interval between full syncs (e.g., "6h")
	Interval string `yaml:"interval"`
}

// TrackerConfig configures sync status persistence
type TrackerConfig struct {
	// StatusFile keeps sync history across restarts. Defaults to ./data/sync-status.json.
	StatusFile string `yaml:"statusFile,omitempty"`
}

// AuthConfig protects the admin API
type AuthConfig struct {
	// Mode is "anonymous" (default) or "token"
	Mode string `yaml:"mode,omitempty"`

	// TokenFile contains the bearer token required in token mode
	TokenFile string `yaml:"tokenFile,omitempty"`

	// Realm is reported in WWW-Authenticate challenges
	Realm string `yaml:"realm,omitempty"`

	// PublicPaths bypass authentication in addition to the built-in ones
	PublicPaths []string `yaml:"publicPaths,omitempty"`
}

// LoggingConfig configures the global logger
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// readSecret returns the trimmed content of file, or the value of env when
// file is empty
func readSecret(file, env, what string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read %s from file %s: %w", what, file, err)
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			return "", fmt.Errorf("%s file %s is empty", what, file)
		}
		return value, nil
	}

	if value := os.Getenv(env); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("no %s configured: set the file option or the %s environment variable", what, env)
}

// GetSiteName returns the site name, using "Blog" if not specified
func (s *SiteConfig) GetSiteName() string {
	if s.Name == "" {
		return defaultSiteName
	}
	return s.Name
}

// GetType returns the repository type, using git if not specified
func (r *RepositoryConfig) GetType() string {
	if r.Type == "" {
		return RepositoryTypeGit
	}
	return r.Type
}

// GetBranch returns the published branch, using "main" if not specified
func (r *RepositoryConfig) GetBranch() string {
	if r.Branch == "" {
		return defaultBranch
	}
	return r.Branch
}

// GetContentRoot returns the content root, using "posts" if not specified
func (r *RepositoryConfig) GetContentRoot() string {
	if r.ContentRoot == "" {
		return defaultContentRoot
	}
	return r.ContentRoot
}

// GetPassword returns the repository password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from BLOG_REPOSITORY_PASSWORD environment variable
func (a *RepositoryAuthConfig) GetPassword() (string, error) {
	return readSecret(a.PasswordFile, EnvRepositoryPassword, "repository password")
}

// GetSecret returns the webhook secret from SecretFile or BLOG_WEBHOOK_SECRET
func (w *WebhookConfig) GetSecret() (string, error) {
	return readSecret(w.SecretFile, EnvWebhookSecret, "webhook secret")
}

// GetType returns the storage type, using file if not specified
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeFile
	}
	return s.Type
}

// GetFilePath returns the directory for file storage
func (s *StorageConfig) GetFilePath() string {
	if s.File == nil || s.File.Path == "" {
		return defaultStoragePath
	}
	return s.File.Path
}

// GetType returns the notification type, using log if not specified
func (n *NotificationsConfig) GetType() string {
	if n == nil || n.Type == "" {
		return NotificationTypeLog
	}
	return n.Type
}

// GetType returns the CDN type, using none if not specified
func (c *CDNConfig) GetType() string {
	if c == nil || c.Type == "" {
		return CDNTypeNone
	}
	return c.Type
}

// GetWorkers returns the configured worker count, zero for the default
func (s *SyncConfig) GetWorkers() int {
	if s == nil {
		return 0
	}
	return s.Workers
}

// GetQueueSize returns the configured queue size, zero for the default
func (s *SyncConfig) GetQueueSize() int {
	if s == nil {
		return 0
	}
	return s.QueueSize
}

// GetScheduleInterval returns the periodic sync interval, zero when disabled.
// Validation should be performed before calling this method.
func (s *SyncConfig) GetScheduleInterval() time.Duration {
	if s == nil || s.Schedule == nil || s.Schedule.Interval == "" {
		return 0
	}
	d, _ := time.ParseDuration(s.Schedule.Interval)
	return d
}

// GetRetryOptions overlays the configured retry settings on retry.DefaultOptions.
// Validation should be performed before calling this method.
func (s *SyncConfig) GetRetryOptions() retry.Options {
	opts := retry.DefaultOptions()
	if s == nil || s.Retry == nil {
		return opts
	}
	r := s.Retry
	if r.MaxRetries != nil {
		opts.MaxRetries = *r.MaxRetries
	}
	if d, err := time.ParseDuration(r.InitialDelay); err == nil {
		opts.InitialDelay = d
	}
	if r.BackoffMultiplier != 0 {
		opts.BackoffMultiplier = r.BackoffMultiplier
	}
	if d, err := time.ParseDuration(r.MaxDelay); err == nil {
		opts.MaxDelay = d
	}
	return opts
}

// GetStatusFile returns the status file path
func (t *TrackerConfig) GetStatusFile() string {
	if t == nil || t.StatusFile == "" {
		return defaultStatusFile
	}
	return t.StatusFile
}

// GetMode returns the auth mode, using anonymous if not specified
func (a *AuthConfig) GetMode() string {
	if a == nil || a.Mode == "" {
		return AuthModeAnonymous
	}
	return a.Mode
}

// GetToken returns the admin token from TokenFile or BLOG_ADMIN_TOKEN
func (a *AuthConfig) GetToken() (string, error) {
	return readSecret(a.TokenFile, EnvAdminToken, "admin token")
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	validators := []func() error{
		c.validateRepository,
		c.validateStorage,
		c.validateNotifications,
		c.validateCDN,
		c.validateSync,
		c.validateAuth,
		c.Telemetry.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRepository() error {
	repo := &c.Repository
	switch repo.GetType() {
	case RepositoryTypeGit:
		if repo.URL == "" {
			return fmt.Errorf("repository: url is required for git repositories")
		}
	case RepositoryTypeFilesystem:
		if repo.Path == "" {
			return fmt.Errorf("repository: path is required for filesystem repositories")
		}
	default:
		return fmt.Errorf("repository: unsupported type %q", repo.Type)
	}

	if repo.Auth != nil && repo.Auth.Username == "" {
		return fmt.Errorf("repository.auth: username is required")
	}
	if strings.HasPrefix(filepath.ToSlash(repo.GetContentRoot()), "../") {
		return fmt.Errorf("repository: contentRoot must stay inside the repository")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.GetType() {
	case StorageTypeFile:
		return nil
	case StorageTypeS3:
		if c.Storage.S3 == nil || c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage: s3.bucket is required for s3 storage")
		}
		return nil
	default:
		return fmt.Errorf("storage: unsupported type %q", c.Storage.Type)
	}
}

func (c *Config) validateNotifications() error {
	switch c.Notifications.GetType() {
	case NotificationTypeLog:
		return nil
	case NotificationTypeSNS:
		if c.Notifications.SNS == nil || c.Notifications.SNS.TopicARN == "" {
			return fmt.Errorf("notifications: sns.topicArn is required for sns notifications")
		}
		return nil
	default:
		return fmt.Errorf("notifications: unsupported type %q", c.Notifications.Type)
	}
}

func (c *Config) validateCDN() error {
	switch c.CDN.GetType() {
	case CDNTypeNone:
		return nil
	case CDNTypeCloudFront:
		if c.CDN.CloudFront == nil || c.CDN.CloudFront.DistributionID == "" {
			return fmt.Errorf("cdn: cloudfront.distributionId is required for cloudfront")
		}
		return nil
	default:
		return fmt.Errorf("cdn: unsupported type %q", c.CDN.Type)
	}
}

func (c *Config) validateSync() error {
	s := c.Sync
	if s == nil {
		return nil
	}
	if s.Workers < 0 {
		return fmt.Errorf("sync: workers must not be negative")
	}
	if s.QueueSize < 0 {
		return fmt.Errorf("sync: queueSize must not be negative")
	}

	if s.Schedule != nil {
		d, err := time.ParseDuration(s.Schedule.Interval)
		if err != nil {
			return fmt.Errorf("sync: schedule.interval must be a valid duration (e.g., '30m', '6h'): %w", err)
		}
		if d < time.Minute {
			return fmt.Errorf("sync: schedule.interval must be at least 1m")
		}
	}

	if s.Retry != nil {
		if err := s.Retry.validate(); err != nil {
			return fmt.Errorf("sync.retry: %w", err)
		}
	}
	return nil
}

func (r *RetryConfig) validate() error {
	var errs []error
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		errs = append(errs, errors.New("maxRetries must not be negative"))
	}
	if r.BackoffMultiplier != 0 && r.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("backoffMultiplier must be at least 1"))
	}
	for name, v := range map[string]string{"initialDelay": r.InitialDelay, "maxDelay": r.MaxDelay} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s must be a valid non-negative duration", name))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateAuth() error {
	switch c.Auth.GetMode() {
	case AuthModeAnonymous:
		return nil
	case AuthModeToken:
		if c.Auth.TokenFile == "" && os.Getenv(EnvAdminToken) == "" {
			return fmt.Errorf("auth: tokenFile or %s is required in token mode", EnvAdminToken)
		}
		return nil
	default:
		return fmt.Errorf("auth: unsupported mode %q", c.Auth.Mode)
	}
}
