package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roseram/previewd/internal/poll"
	"github.com/roseram/previewd/internal/preview"
	"github.com/roseram/previewd/internal/types"
)

var (
	statusProject string
	statusWait    bool
	statusDryRun  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a preview's status",
	Long: `Show the current status of a project's preview.

With --wait the command polls until the preview reaches a terminal
state (running or error) or the poll budget is exhausted.

Examples:
  previewd status --project p1
  previewd status --project p1 --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := buildStack(ctx, statusDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		if !statusWait {
			current, err := st.previews.GetPreviewStatus(ctx, statusProject)
			if err != nil {
				return err
			}
			printStatus(current)
			return nil
		}

		final, err := poll.WaitForPreview(ctx, st.previews, statusProject, poll.Options{
			Interval:    cfg.Poll.Interval,
			MaxAttempts: cfg.Poll.MaxAttempts,
			Logger:      logger,
			OnStatus: func(attempt int, s *preview.Status) {
				fmt.Printf("  [%d] %s\n", attempt, colorStatus(s.Status))
			},
		})
		if err != nil {
			return err
		}
		if final == nil {
			color.Red("✗ No status could be read for %s", statusProject)
			return fmt.Errorf("status unavailable for %s", statusProject)
		}
		printStatus(final)
		if !final.Status.IsTerminal() {
			color.Yellow("Poll budget exhausted before a terminal status.")
		}
		return nil
	},
}

func printStatus(s *preview.Status) {
	fmt.Printf("Project: %s\n", s.ProjectID)
	fmt.Printf("Status:  %s\n", colorStatus(s.Status))
	if s.PreviewURL != "" {
		fmt.Printf("URL:     %s\n", color.CyanString(s.PreviewURL))
	}
	if s.SandboxName != "" {
		fmt.Printf("Sandbox: %s (port %d)\n", s.SandboxName, s.Port)
	}
	if s.UptimeMS > 0 {
		fmt.Printf("Uptime:  %s\n", (time.Duration(s.UptimeMS) * time.Millisecond).Round(time.Second))
	}
	if s.Status == types.PreviewStatusNotFound {
		fmt.Println("No preview exists for this project.")
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusProject, "project", "", "project ID (required)")
	statusCmd.Flags().BoolVar(&statusWait, "wait", false, "poll until the status is terminal")
	statusCmd.Flags().BoolVar(&statusDryRun, "dry-run", false, "use the in-memory sandbox fake instead of Fly")
	statusCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(statusCmd)
}
