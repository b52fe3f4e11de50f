// previewd provisions ephemeral preview environments: it creates a
// sandbox, clones a repository, installs its dependencies, boots the dev
// server, and exposes the result at a public URL.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roseram/previewd/internal/config"
)

var (
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "previewd",
	Short: "Provision ephemeral preview environments",
	Long: `previewd provisions ephemeral preview environments for web projects.

Given a repository, it creates a sandbox machine, clones the code,
installs dependencies with the repository's own package manager, boots
the dev server, and reports a public preview URL.

Examples:
  previewd serve                                  # run the HTTP API
  previewd create --project p1 --repo octo/demo   # provision a preview
  previewd status --project p1 --wait             # poll until running
  previewd destroy --project p1                   # tear it down`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
