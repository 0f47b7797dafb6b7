package workflow

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/desktop"
	"github.com/jackzampolin/epubaudio/internal/failure"
)

const defaultExportName = "extracted_text.txt"

// ExportText writes the current text to w. It makes no remote call and is
// only available in Review.
func (c *Controller) ExportText(w io.Writer) error {
	c.mu.Lock()
	if err := c.checkLocked(ActionExportText, StageReview); err != nil {
		c.mu.Unlock()
		return err
	}
	text := c.state.ExtractedText
	c.mu.Unlock()

	if _, err := io.WriteString(w, text); err != nil {
		return fmt.Errorf("failed to export text: %w", err)
	}
	return nil
}

// ExportFileName suggests a file name for exported text, derived from the
// selected document.
func (c *Controller) ExportFileName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.SelectedFile == nil {
		return defaultExportName
	}
	return stem(c.state.SelectedFile.Name) + ".txt"
}

// DownloadLocation resolves where the completed audiobook can be fetched.
func (c *Controller) DownloadLocation() (string, error) {
	c.mu.Lock()
	if err := c.checkLocked(ActionDownload, StageConverting); err != nil {
		c.mu.Unlock()
		return "", err
	}
	job := c.state.ActiveJob
	if job == nil || job.Status != backend.StatusCompleted || job.OutputFile == "" {
		c.mu.Unlock()
		return "", failure.New(failure.InvalidInput, "the audiobook is not ready yet")
	}
	output := job.OutputFile
	c.mu.Unlock()

	return c.backend.ResolveDownloadLocation(output)
}

// DeliveryMethod is how a finished audiobook was handed to the user.
type DeliveryMethod string

const (
	DeliveryReveal   DeliveryMethod = "reveal"
	DeliveryOpen     DeliveryMethod = "open"
	DeliveryDownload DeliveryMethod = "download"
)

// Delivery describes the outcome of Deliver.
type Delivery struct {
	Method  DeliveryMethod `json:"method" yaml:"method"`
	Locator string         `json:"locator" yaml:"locator"`
	Path    string         `json:"path,omitempty" yaml:"path,omitempty"`

	// RevealError is set when the host capability was tried and failed.
	RevealError string `json:"reveal_error,omitempty" yaml:"reveal_error,omitempty"`
}

// Deliver hands the completed audiobook to the user. When host is non-nil
// and localPath names a saved copy, the file is revealed in the file
// manager; otherwise, or if revealing fails, the plain download locator is
// returned. Workflow state is not changed.
func (c *Controller) Deliver(host desktop.Revealer, localPath string) (Delivery, error) {
	return c.deliver(host, localPath, DeliveryReveal)
}

// DeliverOpen is Deliver, but plays the saved copy with the default
// application instead of revealing it.
func (c *Controller) DeliverOpen(host desktop.Revealer, localPath string) (Delivery, error) {
	return c.deliver(host, localPath, DeliveryOpen)
}

func (c *Controller) deliver(host desktop.Revealer, localPath string, method DeliveryMethod) (Delivery, error) {
	locator, err := c.DownloadLocation()
	if err != nil {
		return Delivery{}, err
	}

	d := Delivery{Method: DeliveryDownload, Locator: locator}
	if host == nil || localPath == "" {
		return d, nil
	}

	var res desktop.Result
	if method == DeliveryOpen {
		res = host.Open(localPath)
	} else {
		res = host.ShowItemInFolder(localPath)
	}
	if !res.Success {
		c.logger.Warn("host delivery failed, falling back to download", "method", method, "path", localPath, "error", res.Error)
		d.RevealError = res.Error
		return d, nil
	}

	d.Method = method
	d.Path = localPath
	return d, nil
}

// OutputFileName suggests a local file name for the audiobook.
func (c *Controller) OutputFileName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job := c.state.ActiveJob; job != nil && job.OutputFile != "" {
		return filepath.Base(job.OutputFile)
	}
	if c.state.SelectedFile != nil {
		return stem(c.state.SelectedFile.Name) + ".mp3"
	}
	return "audiobook.mp3"
}

func stem(name string) string {
	base := filepath.Base(name)
	s := strings.TrimSuffix(base, filepath.Ext(base))
	if s == "" || s == "." {
		return "extracted_text"
	}
	return s
}
