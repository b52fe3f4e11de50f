package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roseram/previewd/internal/ai"
	"github.com/roseram/previewd/internal/server"
)

var serveDryRun bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the previewd HTTP API",
	Long: `Start the HTTP API and serve until interrupted.

The server exposes preview CRUD, setup-session steps, log retrieval,
page generation, and a websocket status stream. SIGINT/SIGTERM drain
in-flight requests before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := buildStack(ctx, serveDryRun)
		if err != nil {
			return err
		}
		defer st.close()

		var generator *ai.Generator
		if os.Getenv("ANTHROPIC_API_KEY") != "" {
			generator, err = ai.NewGenerator(ai.Config{Logger: logger})
			if err != nil {
				return err
			}
		} else {
			logger.Info().Msg("ANTHROPIC_API_KEY not set, /api/generate disabled")
		}

		srv, err := server.New(server.Config{
			Previews:  st.previews,
			Setup:     st.setup,
			Store:     st.store,
			Generator: generator,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		return srv.Run(ctx, cfg.ListenAddr)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "use the in-memory sandbox fake instead of Fly")
	rootCmd.AddCommand(serveCmd)
}
