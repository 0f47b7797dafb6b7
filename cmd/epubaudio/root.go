package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/config"
	"github.com/jackzampolin/epubaudio/internal/home"
	"github.com/jackzampolin/epubaudio/internal/ui"
	"github.com/jackzampolin/epubaudio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "epubaudio",
	Short: "Turn EPUB books into audiobooks",
	Long: `epubaudio converts EPUB books into audiobooks.

The workflow has three stages:
  - Upload: pick an .epub file and extract its text
  - Review: check or replace the text before converting
  - Converting: a backend synthesizes speech while progress is polled

Run "epubaudio serve" for a local backend, then "epubaudio convert book.epub".`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.epubaudio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "epubaudio home directory (default: ~/.epubaudio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "warn", "log level: debug, info, warn or error",
	)
	rootCmd.PersistentFlags().BoolVar(
		&noColor, "no-color", false, "disable colored output",
	)

	// Set up output, logging and .env before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal.
		_ = godotenv.Load()

		api.SetOutputFormat(outputFormat)
		ui.Init(noColor)

		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: %w", s, err)
	}
	return level, nil
}

// loadConfig resolves the home directory and loads configuration from
// --config, ./config.yaml or the home directory, in that order.
func loadConfig() (*config.Manager, *home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	cm, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cm, h, nil
}
