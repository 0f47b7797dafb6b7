// Package desktop exposes optional host integration: revealing a finished
// audiobook in the system file manager or opening it with the default
// application.
package desktop

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/skratchdot/open-golang/open"
)

// Result reports the outcome of a host action.
type Result struct {
	Success bool   `json:"success" yaml:"success"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Revealer is the host capability used to surface output files.
type Revealer interface {
	ShowItemInFolder(path string) Result
	Open(path string) Result
}

// Shell implements Revealer with the platform's default opener.
type Shell struct {
	logger *slog.Logger
	run    func(input string) error
}

// NewShell creates a Shell.
func NewShell(logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{logger: logger, run: open.Run}
}

// FromConfig returns a Shell when reveal is enabled, or nil when the host
// capability should be treated as absent.
func FromConfig(enabled bool, logger *slog.Logger) Revealer {
	if !enabled {
		return nil
	}
	return NewShell(logger)
}

// ShowItemInFolder opens the directory containing path.
func (s *Shell) ShowItemInFolder(path string) Result {
	abs, err := localPath(path)
	if err != nil {
		return failed(err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return failed(fmt.Errorf("cannot reveal %s: %w", abs, err))
	}

	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	if err := s.run(dir); err != nil {
		s.logger.Warn("failed to reveal file", "path", abs, "error", err)
		return failed(fmt.Errorf("failed to open file manager: %w", err))
	}
	s.logger.Info("revealed file", "path", abs)
	return Result{Success: true}
}

// Open opens path, or a URL, with the default application.
func (s *Shell) Open(path string) Result {
	target := path
	if !isURL(path) {
		abs, err := localPath(path)
		if err != nil {
			return failed(err)
		}
		if _, err := os.Stat(abs); err != nil {
			return failed(fmt.Errorf("cannot open %s: %w", abs, err))
		}
		target = abs
	}
	if err := s.run(target); err != nil {
		s.logger.Warn("failed to open file", "target", target, "error", err)
		return failed(fmt.Errorf("failed to open: %w", err))
	}
	return Result{Success: true}
}

func localPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("no path given")
	}
	if isURL(path) {
		return "", fmt.Errorf("%s is not a local file", path)
	}
	return filepath.Abs(path)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
