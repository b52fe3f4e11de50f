package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roseram/previewd/internal/setup"
	"github.com/roseram/previewd/internal/types"
)

var listDryRun bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active previews",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := buildStack(ctx, listDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		instances, err := st.previews.ListPreviews(ctx)
		if err != nil {
			return err
		}
		if len(instances) == 0 {
			fmt.Println("No active previews.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROJECT\tREPO\tBRANCH\tSTATUS\tUPTIME\tURL")
		for _, p := range instances {
			fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\t%s\t%s\n",
				p.ProjectID, p.Owner, p.Repo, p.Branch,
				colorStatus(p.Status),
				setup.FormatDuration(p.CreatedAt, nil),
				p.PreviewURL)
		}
		return w.Flush()
	},
}

func colorStatus(s types.PreviewStatus) string {
	switch s {
	case types.PreviewStatusRunning:
		return color.GreenString(string(s))
	case types.PreviewStatusError:
		return color.RedString(string(s))
	case types.PreviewStatusPending, types.PreviewStatusInitializing:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func init() {
	listCmd.Flags().BoolVar(&listDryRun, "dry-run", false, "use the in-memory sandbox fake instead of Fly")
	rootCmd.AddCommand(listCmd)
}
