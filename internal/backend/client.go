// Package backend implements the remote operations the workflow depends on:
// text extraction, conversion start, progress checks and artifact location.
//
// Every error returned from this package is a *failure.Error so callers can
// branch on category without inspecting transport details. There are no
// retries here; the poller owns retry policy for progress checks.
package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/failure"
)

// File is a user-selected document.
type File struct {
	Name    string
	Payload []byte
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the conversion backend.
type Client struct {
	http   *api.Client
	logger *slog.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = api.DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   api.NewClientWithHTTP(cfg.BaseURL, httpClient),
		logger: logger,
	}
}

// BaseURL returns the backend URL.
func (c *Client) BaseURL() string {
	return c.http.BaseURL()
}

// ExtractResponse is the body of POST /extract.
type ExtractResponse struct {
	Text     string `json:"text,omitempty"`
	Content  string `json:"content,omitempty"`
	Filename string `json:"filename,omitempty"`
	Title    string `json:"title,omitempty"`
	Chapters int    `json:"chapters,omitempty"`
}

// ConvertRequest is the body of POST /convert.
type ConvertRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// ConvertResponse is the body returned by POST /convert.
type ConvertResponse struct {
	TaskID TaskID `json:"task_id"`
}

// ExtractText uploads the file and returns the text the server extracted.
func (c *Client) ExtractText(ctx context.Context, f File) (string, error) {
	if len(f.Payload) == 0 {
		return "", failure.New(failure.InvalidInput, "the selected file is empty")
	}

	var resp ExtractResponse
	if err := c.http.PostFile(ctx, "/extract", "file", f.Name, f.Payload, &resp); err != nil {
		c.logger.Warn("extract failed", "file", f.Name, "error", err)
		return "", categorize(err)
	}

	text := resp.Text
	if text == "" {
		text = resp.Content
	}
	if strings.TrimSpace(text) == "" {
		return "", failure.New(failure.RemoteRejected, "no text could be extracted from the file")
	}
	return text, nil
}

// StartConversion submits text for synthesis and returns the job identifier.
func (c *Client) StartConversion(ctx context.Context, text, filename string) (string, error) {
	var resp ConvertResponse
	if err := c.http.Post(ctx, "/convert", ConvertRequest{Text: text, Filename: filename}, &resp); err != nil {
		c.logger.Warn("convert failed", "filename", filename, "error", err)
		return "", categorize(err)
	}
	if resp.TaskID == "" {
		return "", failure.New(failure.RemoteRejected, "the server did not return a task id")
	}
	return string(resp.TaskID), nil
}

// CheckProgress fetches the current state of a job. It is safe to call
// repeatedly. A job the server no longer knows about is reported as a Failed
// progress rather than an error.
func (c *Client) CheckProgress(ctx context.Context, jobID string) (Progress, error) {
	var resp progressResponse
	err := c.http.Get(ctx, "/progress/"+url.PathEscape(jobID), &resp)
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return Progress{
				Status:        StatusFailed,
				FailureReason: "the conversion job is no longer known to the server",
			}, nil
		}
		return Progress{}, categorize(err)
	}
	return resp.normalize(), nil
}

// ResolveDownloadLocation returns the URL of a completed artifact. It does
// not contact the server.
func (c *Client) ResolveDownloadLocation(outputFile string) (string, error) {
	outputFile = strings.TrimSpace(outputFile)
	if outputFile == "" {
		return "", failure.New(failure.InvalidInput, "no output file to download")
	}
	return c.http.BaseURL() + "/download/" + url.PathEscape(outputFile), nil
}

// Download copies the artifact at locator into w.
func (c *Client) Download(ctx context.Context, locator string, w io.Writer) (int64, error) {
	n, err := c.http.Stream(ctx, locator, w)
	if err != nil {
		return n, categorize(err)
	}
	return n, nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	if err := c.http.Get(ctx, "/health", nil); err != nil {
		return categorize(err)
	}
	return nil
}

// categorize maps an HTTP layer error onto the failure taxonomy.
func categorize(err error) error {
	var se *api.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return failure.Wrap(failure.NetworkFailure, "the server is temporarily unavailable", err)
		}
		return failure.Wrap(failure.RemoteRejected, se.Message, err)
	}
	return failure.Report(err)
}
