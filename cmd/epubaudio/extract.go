package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/ui"
	"github.com/jackzampolin/epubaudio/internal/workflow"
)

var extractOut string

var extractCmd = &cobra.Command{
	Use:   "extract <book.epub>",
	Short: "Extract an EPUB's text without converting it",
	Long: `Extract the text of an EPUB through the backend and save it for review.

The text is written to the exports directory as <book>.txt unless --out is
given. Use --out - to print it. Edit the file and pass it to
"epubaudio convert --text" to narrate the edited version.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		cm, h, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := cm.Get()

		payload, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		reporter := ui.NewReporter(ui.Err)
		defer reporter.Close()
		client := backend.NewClient(backend.Config{
			BaseURL: backendURL(cfg),
			Timeout: cfg.Server.Timeout,
			Logger:  logger,
		})
		if err := checkBackend(cmd.Context(), client, backendURL(cfg)); err != nil {
			return err
		}

		ctrl, err := workflow.New(workflow.Config{
			Backend: client,
			Extension: cfg.Workflow.Extension,
			Logger:    logger,
			OnChange:  reporter.Update,
		})
		if err != nil {
			return err
		}
		defer ctrl.Close()

		if err := ctrl.SelectFile(filepath.Base(args[0]), payload); err != nil {
			return err
		}
		if err := ctrl.Extract(cmd.Context()); err != nil {
			return err
		}

		if extractOut == "-" {
			return ctrl.ExportText(cmd.OutOrStdout())
		}

		path := extractOut
		if path == "" {
			if err := h.EnsureExists(); err != nil {
				return err
			}
			path = filepath.Join(h.ExportsDir(), ctrl.ExportFileName())
		}
		if err := exportText(ctrl, path); err != nil {
			return err
		}
		ui.Success("Text saved to %s", path)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractOut, "out", "", "Where to save the text (default: exports dir; - for stdout)")
	extractCmd.Flags().StringVar(&serverURL, "server", "", "Server URL (default: server.url from config)")

	rootCmd.AddCommand(extractCmd)
}
