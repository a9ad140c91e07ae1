package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jgchk/blog-sub001/internal/app"
	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
)

func newSyncCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full sync and exit",
		Long: `Rebuild the published site from the repository without starting the server.

Every post is re-rendered, tag pages are regenerated, published posts that no
longer exist are removed and the CDN is invalidated. The result is printed as
JSON. The command fails when the sync fails or any article could not be
published.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, v)
		},
	}

	cmd.Flags().String("ref", "", "Commit, branch or tag to publish (defaults to the configured branch)")
	return cmd
}

func runSync(cmd *cobra.Command, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}

	ref, err := cmd.Flags().GetString("ref")
	if err != nil {
		return err
	}
	if ref == "" {
		ref = cfg.Repository.GetBranch()
	}

	components, err := app.BuildComponents(ctx, app.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build publisher: %w", err)
	}

	result, syncErr := components.Orchestrator.Sync(ctx, pkgsync.Request{
		Kind:          pkgsync.KindFull,
		RepositoryRef: ref,
	})
	if result != nil {
		if err := printResult(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}
	return syncOutcome(result, syncErr)
}

func printResult(w io.Writer, result *pkgsync.Result) error {
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format sync result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// syncOutcome turns a sync result into the command's exit status
func syncOutcome(result *pkgsync.Result, err error) error {
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if result == nil || !result.Success {
		failed := 0
		if result != nil {
			failed = len(result.ArticlesFailed)
		}
		return fmt.Errorf("sync finished with %d failed articles", failed)
	}
	return nil
}
