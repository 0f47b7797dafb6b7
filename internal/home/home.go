package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the epubaudio home directory.
	DefaultDirName = ".epubaudio"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the epubaudio home directory structure:
//
//	~/.epubaudio/
//	  config.yaml
//	  downloads/   audiobooks saved by the client
//	  exports/     extracted text saved by the client
//	  output/      audio produced by the local conversion server
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.epubaudio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DownloadsDir returns the directory finished audiobooks are saved to.
func (d *Dir) DownloadsDir() string {
	return filepath.Join(d.path, "downloads")
}

// ExportsDir returns the directory exported text is saved to.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, "exports")
}

// OutputDir returns the directory the conversion server writes audio to.
func (d *Dir) OutputDir() string {
	return filepath.Join(d.path, "output")
}

// OutputPath returns the path of a produced audio file. name must be a bare
// file name; anything with a directory component is rejected.
func (d *Dir) OutputPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid output file name %q", name)
	}
	return filepath.Join(d.OutputDir(), name), nil
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.DownloadsDir(), d.ExportsDir(), d.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
