// Package app provides the command line interface of the blog publisher.
package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jgchk/blog-sub001/internal/config"
	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/versions"
)

// EnvPrefix is prepended to the environment variables backing command line flags
const EnvPrefix = "BLOG"

// NewRootCmd creates a new root command for the publisher.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "blog-publisher",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Publishes a git-hosted blog as a static site",
		Long: `blog-publisher turns markdown posts in a git repository into a static site.

It listens for push webhooks, renders the changed posts, maintains tag pages,
uploads the result to a file or S3 store and invalidates the CDN.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return logger.Initialize(logger.Options{Level: v.GetString("log-level")})
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			// If no subcommand is provided, print help
			return cmd.Help()
		},
	}

	// Add persistent flags
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format)")
	rootCmd.PersistentFlags().String("log-level", logger.LevelInfo, "Log level (debug, info, warn, error, none)")
	for _, name := range []string{"config", "log-level"} {
		if err := v.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", name, err)
		}
	}

	// Add subcommands
	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newSyncCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig reads the configuration file named by --config and applies its
// logging settings unless the log level was set on the command line
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("a configuration file is required (--config or %s_CONFIG)", EnvPrefix)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Logging != nil {
		level := v.GetString("log-level")
		explicit := cmd.Flags().Changed("log-level") || os.Getenv(EnvPrefix+"_LOG_LEVEL") != ""
		if !explicit && cfg.Logging.Level != "" {
			level = cfg.Logging.Level
		}
		if err := logger.Initialize(logger.Options{Level: level, File: cfg.Logging.File}); err != nil {
			return nil, fmt.Errorf("failed to configure logging: %w", err)
		}
	}

	logger.Infof("Loaded configuration from %s (repository: %s, storage: %s)",
		path, cfg.Repository.GetType(), cfg.Storage.GetType())
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
