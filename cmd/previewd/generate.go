package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roseram/previewd/internal/ai"
)

var (
	generateOut   string
	generateModel string
)

var generateCmd = &cobra.Command{
	Use:   "generate <brief...>",
	Short: "Generate a web page from a description",
	Long: `Generate a self-contained HTML page from a natural-language brief.

Requires ANTHROPIC_API_KEY. The document is written to --out, or stdout
when no output path is given.

Examples:
  previewd generate "a dark-mode landing page for a coffee shop"
  previewd generate --out index.html "a personal portfolio with a project grid"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		generator, err := ai.NewGenerator(ai.Config{
			Model:  generateModel,
			Logger: logger,
		})
		if err != nil {
			return err
		}

		brief := strings.Join(args, " ")
		fmt.Fprintln(os.Stderr, "Generating page...")
		page, err := generator.GeneratePage(context.Background(), brief)
		if err != nil {
			return err
		}

		if generateOut == "" {
			fmt.Println(page)
			return nil
		}
		if err := os.WriteFile(generateOut, []byte(page+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", generateOut, err)
		}
		color.Green("✓ Wrote %s (%d bytes)", generateOut, len(page))
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateOut, "out", "", "output file (default: stdout)")
	generateCmd.Flags().StringVar(&generateModel, "model", "", "model override")
	rootCmd.AddCommand(generateCmd)
}
