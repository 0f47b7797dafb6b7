package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/server"
)

var (
	serveHost  string
	servePort  int
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversion backend",
	Long: `Start the epubaudio conversion backend.

The backend extracts text from uploaded EPUBs, converts text to speech with
the configured TTS provider (backend.tts_provider) and serves finished audio
from ~/.epubaudio/output.

Routes:
  POST /extract              - Upload an EPUB, get its text
  POST /convert              - Start a conversion job
  GET  /progress/{task_id}   - Poll a job
  GET  /download/{file}      - Fetch finished audio
  GET  /health, /ready       - Health checks

Examples:
  epubaudio serve                    # Start on backend.port (default 8080)
  epubaudio serve --port 3000        # Start on custom port
  epubaudio serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.Default()

		cm, h, err := loadConfig()
		if err != nil {
			return err
		}
		if path := cm.ConfigFileUsed(); path != "" {
			logger.Info("loaded config", "path", path)
			if serveWatch {
				cm.WatchConfig()
			}
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: cm,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: backend.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: backend.port)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload providers when the config file changes")

	rootCmd.AddCommand(serveCmd)
}
