package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roseram/previewd/internal/preview"
	"github.com/roseram/previewd/internal/setup"
)

var (
	createProject string
	createRepo    string
	createBranch  string
	createDryRun  bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a preview environment",
	Long: `Provision a preview for a repository: create a sandbox, clone the
code, install dependencies, and boot the dev server.

The command blocks until the preview is serving or provisioning fails.

Examples:
  previewd create --project p1 --repo octo/demo
  previewd create --project p1 --repo octo/demo --branch feature/nav
  previewd create --project p1 --repo octo/demo --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, err := setup.SplitRepo(createRepo)
		if err != nil {
			return err
		}

		ctx := context.Background()
		st, err := buildStack(ctx, createDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		fmt.Printf("Provisioning preview for %s/%s", owner, repo)
		if createBranch != "" {
			fmt.Printf(" (branch %s)", createBranch)
		}
		fmt.Println("...")

		instance, err := st.previews.CreatePreview(ctx, createProject, owner, repo, createBranch, defaultCredential(), preview.CreateOptions{})
		if err != nil {
			color.Red("✗ Provisioning failed: %v", err)
			return err
		}

		color.Green("✓ Preview running")
		fmt.Printf("  URL:     %s\n", color.CyanString(instance.PreviewURL))
		fmt.Printf("  Sandbox: %s\n", instance.SandboxName)
		fmt.Printf("  Port:    %d (pid %d)\n", instance.Port, instance.ProcessID)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createProject, "project", "", "project ID (required)")
	createCmd.Flags().StringVar(&createRepo, "repo", "", "repository as owner/name (required)")
	createCmd.Flags().StringVar(&createBranch, "branch", "", "branch to clone (default: main)")
	createCmd.Flags().BoolVar(&createDryRun, "dry-run", false, "use the in-memory sandbox fake instead of Fly")
	createCmd.MarkFlagRequired("project")
	createCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(createCmd)
}
