package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	destroyProject string
	destroyDryRun  bool
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down a preview environment",
	Long: `Destroy the sandbox behind a project's preview and drop it from the
registry. Destroying a project with no preview is a no-op.

If the provider rejects the teardown the registry entry is kept, so the
command can be retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := buildStack(ctx, destroyDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		if err := st.previews.DestroyPreview(ctx, destroyProject); err != nil {
			color.Red("✗ Teardown failed: %v", err)
			return err
		}
		color.Green("✓ Preview for %s destroyed", destroyProject)
		return nil
	},
}

func init() {
	destroyCmd.Flags().StringVar(&destroyProject, "project", "", "project ID (required)")
	destroyCmd.Flags().BoolVar(&destroyDryRun, "dry-run", false, "use the in-memory sandbox fake instead of Fly")
	destroyCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(destroyCmd)
}
