package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	logsProject string
	logsLimit   int
	logsDryRun  bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Fetch dev-server logs from a preview",
	Long: `Fetch recent dev-server output from a project's sandbox.

Log retrieval is best-effort: when the sandbox is unreachable the
command prints an explanatory message instead of failing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := buildStack(ctx, logsDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		logs, err := st.previews.FetchLogs(ctx, logsProject, logsLimit)
		if err != nil {
			return err
		}
		fmt.Print(logs)
		if len(logs) > 0 && logs[len(logs)-1] != '\n' {
			fmt.Println()
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsProject, "project", "", "project ID (required)")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 100, "maximum lines to fetch")
	logsCmd.Flags().BoolVar(&logsDryRun, "dry-run", false, "use the in-memory sandbox fake instead of Fly")
	logsCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(logsCmd)
}
