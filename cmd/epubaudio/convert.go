package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/config"
	"github.com/jackzampolin/epubaudio/internal/desktop"
	"github.com/jackzampolin/epubaudio/internal/home"
	"github.com/jackzampolin/epubaudio/internal/ui"
	"github.com/jackzampolin/epubaudio/internal/workflow"
)

var (
	convertTextFile string
	convertExport   bool
	convertDest     string
	convertReveal   bool
	convertOpen     bool
)

// ConvertResult is printed when a conversion finishes.
type ConvertResult struct {
	JobID    string            `json:"job_id" yaml:"job_id"`
	File     string            `json:"file" yaml:"file"`
	Bytes    int64             `json:"bytes" yaml:"bytes"`
	Text     string            `json:"text_export,omitempty" yaml:"text_export,omitempty"`
	Delivery workflow.Delivery `json:"delivery" yaml:"delivery"`
}

var convertCmd = &cobra.Command{
	Use:   "convert <book.epub>",
	Short: "Convert an EPUB into an audiobook",
	Long: `Convert an EPUB into an audiobook using the configured backend.

The book's text is extracted by the backend, optionally exported or replaced,
then submitted for conversion. Progress is polled until the job finishes and
the audio is saved to output.dir (default ~/.epubaudio/downloads).

Press Ctrl+C to stop monitoring; the backend job is left running.

Examples:
  epubaudio convert book.epub
  epubaudio convert book.epub --export            # also save the extracted text
  epubaudio convert book.epub --text edited.txt   # convert edited text instead
  epubaudio convert book.epub --reveal            # show the result in the file manager
  epubaudio convert book.epub --open              # play the result when done`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.Default()

		cm, h, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := cm.Get()
		if err := h.EnsureExists(); err != nil {
			return err
		}

		payload, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		client := backend.NewClient(backend.Config{
			BaseURL: backendURL(cfg),
			Timeout: cfg.Server.Timeout,
			Logger:  logger,
		})
		if err := checkBackend(ctx, client, backendURL(cfg)); err != nil {
			return err
		}

		reporter := ui.NewReporter(ui.Err)
		defer reporter.Close()
		changes := make(chan struct{}, 1)

		ctrl, err := workflow.New(workflow.Config{
			Backend:      client,
			PollInterval: cfg.Workflow.PollInterval,
			Extension:    cfg.Workflow.Extension,
			Logger:       logger,
			OnChange: func(st workflow.State) {
				reporter.Update(st)
				select {
				case changes <- struct{}{}:
				default:
				}
			},
		})
		if err != nil {
			return err
		}
		defer ctrl.Close()

		// Upload
		if err := ctrl.SelectFile(filepath.Base(args[0]), payload); err != nil {
			return err
		}
		if err := ctrl.Extract(ctx); err != nil {
			return err
		}

		// Review
		var result ConvertResult
		if convertExport {
			path := filepath.Join(h.ExportsDir(), ctrl.ExportFileName())
			if err := exportText(ctrl, path); err != nil {
				return err
			}
			result.Text = path
			ui.Info("Text saved to %s", path)
		}
		if convertTextFile != "" {
			text, err := os.ReadFile(convertTextFile)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", convertTextFile, err)
			}
			if err := ctrl.EditText(string(text)); err != nil {
				return err
			}
		}

		// Converting
		if err := ctrl.Convert(ctx); err != nil {
			return err
		}
		st, err := waitForJob(ctx, ctrl, changes)
		if err != nil {
			if errors.Is(err, context.Canceled) && st.ActiveJob != nil {
				ui.Warning("Stopped monitoring job %s", st.ActiveJob.ID)
			}
			return err
		}
		if st.ActiveJob.Status != backend.StatusCompleted {
			if st.LastError != nil {
				return st.LastError
			}
			return fmt.Errorf("conversion failed")
		}
		result.JobID = st.ActiveJob.ID

		locator, err := ctrl.DownloadLocation()
		if err != nil {
			return err
		}
		dest := filepath.Join(outputDir(cfg, h), ctrl.OutputFileName())
		n, err := saveDownload(ctx, client, locator, dest)
		if err != nil {
			return err
		}
		result.File, result.Bytes = dest, n

		host := desktop.FromConfig(convertOpen || convertReveal || cfg.Desktop.Reveal, logger)
		if convertOpen {
			result.Delivery, err = ctrl.DeliverOpen(host, dest)
		} else {
			result.Delivery, err = ctrl.Deliver(host, dest)
		}
		if err != nil {
			return err
		}
		if result.Delivery.RevealError != "" {
			ui.Warning("Could not %s the file: %s", deliveryVerb(convertOpen), result.Delivery.RevealError)
		}

		ui.Success("Saved %s", dest)
		return api.Output(result)
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertTextFile, "text", "", "Convert the text in this file instead of the extracted text")
	convertCmd.Flags().BoolVar(&convertExport, "export", false, "Save the extracted text to the exports directory")
	convertCmd.Flags().StringVar(&convertDest, "dest", "", "Directory for the audiobook (default: output.dir)")
	convertCmd.Flags().BoolVar(&convertReveal, "reveal", false, "Show the audiobook in the file manager when done")
	convertCmd.Flags().BoolVar(&convertOpen, "open", false, "Play the audiobook with the default application when done")
	convertCmd.Flags().StringVar(&serverURL, "server", "", "Server URL (default: server.url from config)")

	rootCmd.AddCommand(convertCmd)
}

// waitForJob blocks until the active job reaches a terminal status. On
// cancellation the poller is stopped and the workflow returns to Review.
func waitForJob(ctx context.Context, ctrl *workflow.Controller, changes <-chan struct{}) (workflow.State, error) {
	for {
		st := ctrl.State()
		if st.Stage != workflow.StageConverting || st.ActiveJob == nil {
			return st, errors.New("the conversion was abandoned")
		}
		if st.ActiveJob.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			if err := ctrl.Back(); err != nil {
				slog.Default().Debug("failed to leave converting stage", "error", err)
			}
			return st, ctx.Err()
		case <-changes:
		}
	}
}

// checkBackend fails fast when the backend cannot answer /health, before any
// upload is attempted.
func checkBackend(ctx context.Context, client *backend.Client, url string) error {
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("backend at %s is unreachable: %w", url, err)
	}
	return nil
}

func deliveryVerb(open bool) string {
	if open {
		return "open"
	}
	return "reveal"
}

// backendURL prefers --server over server.url.
func backendURL(cfg *config.Config) string {
	if serverURL != "" {
		return serverURL
	}
	return cfg.Server.URL
}

func exportText(ctrl *workflow.Controller, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := ctrl.ExportText(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func outputDir(cfg *config.Config, h *home.Dir) string {
	switch {
	case convertDest != "":
		return convertDest
	case cfg.Output.Dir != "":
		return cfg.Output.Dir
	default:
		return h.DownloadsDir()
	}
}

// saveDownload writes the artifact to a temporary file next to dest and
// renames it into place once complete.
func saveDownload(ctx context.Context, client *backend.Client, locator, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create download file: %w", err)
	}
	defer os.Remove(tmp.Name())

	spin := ui.NewSpinner(ui.Err, "Downloading...")
	spin.Start()
	n, err := client.Download(ctx, locator, tmp)
	spin.Stop()
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write download: %w", cerr)
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("failed to save %s: %w", dest, err)
	}
	return n, nil
}
