package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roseram/previewd/internal/setup"
	"github.com/roseram/previewd/internal/types"
)

var (
	sessionsProject string
	sessionsRepo    string
	sessionsBranch  string
	sessionsLimit   int
	sessionsDryRun  bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage setup sessions",
	Long: `Inspect and drive step-by-step setup sessions.

A session breaks provisioning into four resumable steps: detect the
repository, allocate a machine, configure it, and boot the dev server.
Each step persists before the next runs, so a failed session resumes
where it broke.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := buildStack(ctx, sessionsDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		sessions, err := st.store.ListSessions(ctx, sessionsLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROJECT\tSTATUS\tPROGRESS\tAGE")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n",
				s.ID, s.ProjectID, colorSessionStatus(s.OverallStatus),
				setup.CalculateProgress(s.CompletedSteps),
				setup.FormatDuration(s.CreatedAt, s.CompletedAt))
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := buildStack(ctx, sessionsDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		session, err := st.setup.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		printSession(session)
		return nil
	},
}

var sessionsStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start (or resume) a session for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := buildStack(ctx, sessionsDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		session, err := st.setup.InitializeSetupSession(ctx, sessionsProject, sessionsRepo, sessionsBranch, "")
		if err != nil {
			return err
		}
		printSession(session)
		fmt.Printf("\nNext: previewd sessions step %s %d\n", session.ID, session.CurrentStep)
		return nil
	},
}

var sessionsStepCmd = &cobra.Command{
	Use:   "step <session-id> <step>",
	Short: "Execute one setup step",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("step must be a number: %w", err)
		}

		ctx := context.Background()
		st, err := buildStack(ctx, sessionsDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		outcome, err := st.setup.ExecuteSetupStep(ctx, args[0], step, defaultCredential())
		if err != nil {
			color.Red("✗ Step %d failed: %v", step, err)
			return err
		}

		color.Green("✓ Step %d (%s) completed", step, setup.StepName(step))
		printSession(outcome.Session)
		return nil
	},
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := buildStack(ctx, sessionsDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		session, err := st.setup.CancelSession(ctx, args[0])
		if err != nil {
			return err
		}
		color.Yellow("Session %s cancelled.", session.ID)
		return nil
	},
}

func printSession(s *types.SetupSession) {
	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("Project:  %s\n", s.ProjectID)
	fmt.Printf("Repo:     %s (%s)\n", s.GitHubRepoURL, s.GitHubBranch)
	fmt.Printf("Status:   %s\n", colorSessionStatus(s.OverallStatus))
	fmt.Printf("Progress: %d%%\n", setup.CalculateProgress(s.CompletedSteps))
	for step := 1; step <= types.TotalSetupSteps; step++ {
		mark := color.HiBlackString("·")
		if s.HasCompleted(step) {
			mark = color.GreenString("✓")
		} else if s.OverallStatus == types.SessionFailed && s.ErrorStep == step {
			mark = color.RedString("✗")
		}
		fmt.Printf("  %s %d. %s\n", mark, step, setup.StepName(step))
	}
	if s.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", color.RedString(s.ErrorMessage))
	}
	if s.PreviewURL != "" {
		fmt.Printf("URL:      %s\n", color.CyanString(s.PreviewURL))
	}
	fmt.Printf("Elapsed:  %s\n", setup.FormatDuration(s.CreatedAt, s.CompletedAt))
}

func colorSessionStatus(s types.SessionStatus) string {
	switch s {
	case types.SessionCompleted:
		return color.GreenString(string(s))
	case types.SessionFailed:
		return color.RedString(string(s))
	case types.SessionInProgress:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func init() {
	sessionsCmd.PersistentFlags().BoolVar(&sessionsDryRun, "dry-run", false, "use the in-memory sandbox fake instead of Fly")
	sessionsListCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "number of sessions to show")
	sessionsStartCmd.Flags().StringVar(&sessionsProject, "project", "", "project ID (required)")
	sessionsStartCmd.Flags().StringVar(&sessionsRepo, "repo", "", "repository as owner/name (required)")
	sessionsStartCmd.Flags().StringVar(&sessionsBranch, "branch", "", "branch (default: main)")
	sessionsStartCmd.MarkFlagRequired("project")
	sessionsStartCmd.MarkFlagRequired("repo")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsStartCmd, sessionsStepCmd, sessionsCancelCmd)
	rootCmd.AddCommand(sessionsCmd)
}
