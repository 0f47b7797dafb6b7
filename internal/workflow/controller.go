// Package workflow owns the EPUB to audiobook session: which stage the user
// is in, the selected file, the extracted text, the conversion job and the
// last error. It is the only component that mutates that state.
//
// Controller methods are safe for concurrent use. The state mutex is never
// held across a remote call; while a one-shot call (extract or convert) is
// outstanding, Busy is set and every other action is rejected with a Busy
// error. Progress updates arrive from the poller goroutine and are applied
// only while the poll session that produced them is still current.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/failure"
	"github.com/jackzampolin/epubaudio/internal/poller"
)

// DefaultExtension is the file extension accepted by SelectFile.
const DefaultExtension = ".epub"

// Backend is the set of remote operations the controller needs.
type Backend interface {
	ExtractText(ctx context.Context, f backend.File) (string, error)
	StartConversion(ctx context.Context, text, filename string) (string, error)
	CheckProgress(ctx context.Context, jobID string) (backend.Progress, error)
	ResolveDownloadLocation(outputFile string) (string, error)
}

// Config configures a Controller.
type Config struct {
	Backend      Backend
	PollInterval time.Duration
	Extension    string
	Logger       *slog.Logger

	// OnChange, if set, receives a snapshot after state changes. It may be
	// called from the poller goroutine. Snapshots arrive in order; one that
	// is superseded before delivery is skipped. OnChange may read State but
	// must not call methods that change it.
	OnChange func(State)
}

// Controller is the workflow state machine.
type Controller struct {
	backend   Backend
	poller    *poller.Poller
	extension string
	logger    *slog.Logger
	onChange  func(State)

	// ctx bounds background polling; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	version uint64
	session uint64
	handle  *poller.Handle

	notifyMu sync.Mutex
	notified uint64
}

// New creates a controller in the Upload stage.
func New(cfg Config) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}

	ext := strings.ToLower(strings.TrimSpace(cfg.Extension))
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		backend:   cfg.Backend,
		poller:    poller.New(poller.Options{Interval: cfg.PollInterval, Logger: logger}),
		extension: ext,
		logger:    logger,
		onChange:  cfg.OnChange,
		ctx:       ctx,
		cancel:    cancel,
		state:     State{Stage: StageUpload},
	}, nil
}

// Extension returns the accepted file extension, including the dot.
func (c *Controller) Extension() string {
	return c.extension
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// SelectFile chooses the document to convert. Files without the expected
// extension are refused and clear any previous selection.
func (c *Controller) SelectFile(name string, payload []byte) error {
	c.mu.Lock()
	if err := c.checkLocked(ActionSelectFile, StageUpload); err != nil {
		c.mu.Unlock()
		return err
	}

	var err *failure.Error
	switch {
	case !strings.EqualFold(filepath.Ext(name), c.extension):
		err = failure.Newf(failure.InvalidInput, "please choose a %s file", c.extension)
	case len(payload) == 0:
		err = failure.New(failure.InvalidInput, "the selected file is empty")
	}

	if err != nil {
		c.state.SelectedFile = nil
		c.state.LastError = err
		c.logger.Info("file rejected", "file", name, "reason", err.Message)
	} else {
		c.state.SelectedFile = &File{Name: name, Payload: append([]byte(nil), payload...)}
		c.state.LastError = nil
		c.logger.Info("file selected", "file", name, "bytes", len(payload))
	}
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	if err != nil {
		return err
	}
	return nil
}

// Extract uploads the selected file and moves to Review with the extracted
// text. On failure the stage stays Upload and LastError is set.
func (c *Controller) Extract(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(ActionExtract, StageUpload); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.SelectedFile == nil {
		return c.failLocked(failure.New(failure.InvalidInput, "select a file before extracting"))
	}
	file := *c.state.SelectedFile
	c.state.Busy = true
	c.state.LastError = nil
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.logger.Info("extracting text", "file", file.Name)
	text, err := c.backend.ExtractText(ctx, file)

	c.mu.Lock()
	c.state.Busy = false
	if err != nil {
		return c.failLocked(err)
	}
	c.state.ExtractedText = text
	c.state.Stage = StageReview
	c.logger.Info("text extracted", "file", file.Name, "chars", len(text))
	snap = c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// EditText replaces the extracted text.
func (c *Controller) EditText(s string) error {
	c.mu.Lock()
	if err := c.checkLocked(ActionEditText, StageReview); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.ExtractedText = s
	c.state.LastError = nil
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Convert submits the text for synthesis. On success it creates the job,
// starts polling and moves to Converting before returning.
func (c *Controller) Convert(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(ActionConvert, StageReview); err != nil {
		c.mu.Unlock()
		return err
	}
	if strings.TrimSpace(c.state.ExtractedText) == "" {
		return c.failLocked(failure.New(failure.InvalidInput, "there is no text to convert"))
	}
	text := c.state.ExtractedText
	filename := ""
	if c.state.SelectedFile != nil {
		filename = c.state.SelectedFile.Name
	}
	c.state.Busy = true
	c.state.LastError = nil
	c.state.ActiveJob = nil
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.logger.Info("starting conversion", "file", filename, "chars", len(text))
	jobID, err := c.backend.StartConversion(ctx, text, filename)

	c.mu.Lock()
	c.state.Busy = false
	if err != nil {
		return c.failLocked(err)
	}

	c.session++
	session := c.session
	handle, err := c.poller.Start(c.ctx, jobID, c.backend.CheckProgress, c.onUpdate(session), c.onTerminal(session))
	if err != nil {
		return c.failLocked(err)
	}
	c.handle = handle
	c.state.ActiveJob = &Job{ID: jobID, Status: backend.StatusRunning}
	c.state.Stage = StageConverting
	c.logger.Info("conversion started", "job_id", jobID)
	snap = c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Back returns to the previous stage. From Converting it stops monitoring
// the job and discards it.
func (c *Controller) Back() error {
	c.mu.Lock()
	if err := c.checkLocked(ActionBack, StageReview, StageConverting); err != nil {
		c.mu.Unlock()
		return err
	}

	var handle *poller.Handle
	switch c.state.Stage {
	case StageReview:
		c.state.Stage = StageUpload
	case StageConverting:
		handle = c.endSessionLocked()
		c.state.ActiveJob = nil
		c.state.Stage = StageReview
	}
	c.state.LastError = nil
	c.logger.Info("moved back", "stage", c.state.Stage)
	snap := c.changedLocked()
	c.mu.Unlock()

	c.stopPoll(handle)
	c.notify(snap)
	return nil
}

// Reset discards the whole session and returns to an empty Upload stage.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.state.Busy {
		c.mu.Unlock()
		return busyError(ActionReset)
	}
	handle := c.endSessionLocked()
	c.state = State{Stage: StageUpload}
	c.logger.Info("workflow reset")
	snap := c.changedLocked()
	c.mu.Unlock()

	c.stopPoll(handle)
	c.notify(snap)
	return nil
}

// Close stops any active poll. The controller should not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	handle := c.endSessionLocked()
	c.mu.Unlock()

	c.stopPoll(handle)
	c.cancel()
}

// Polling reports whether a job is currently being monitored.
func (c *Controller) Polling() bool {
	return c.poller.Active()
}

// onUpdate merges a progress observation into the active job.
func (c *Controller) onUpdate(session uint64) poller.Callback {
	return func(p backend.Progress) {
		c.mu.Lock()
		if c.session != session || c.state.ActiveJob == nil {
			c.mu.Unlock()
			return
		}
		c.state.ActiveJob.merge(p)
		snap := c.changedLocked()
		c.mu.Unlock()

		c.notify(snap)
	}
}

// onTerminal records the final job outcome.
func (c *Controller) onTerminal(session uint64) poller.Callback {
	return func(p backend.Progress) {
		c.mu.Lock()
		if c.session != session || c.state.ActiveJob == nil {
			c.mu.Unlock()
			return
		}
		job := c.state.ActiveJob
		job.merge(p)
		c.state.Busy = false
		c.handle = nil

		switch job.Status {
		case backend.StatusCompleted:
			c.logger.Info("conversion completed", "job_id", job.ID, "output_file", job.OutputFile)
		case backend.StatusFailed:
			reason := job.FailureReason
			if reason == "" {
				reason = "the conversion failed"
			}
			c.state.LastError = failure.New(failure.RemoteRejected, reason)
			c.logger.Warn("conversion failed", "job_id", job.ID, "reason", reason)
		}
		snap := c.changedLocked()
		c.mu.Unlock()

		c.notify(snap)
	}
}

// checkLocked rejects an action when busy or outside the allowed stages.
// Rejections do not change state.
func (c *Controller) checkLocked(a Action, stages ...Stage) error {
	if c.state.Busy {
		return busyError(a)
	}
	for _, s := range stages {
		if c.state.Stage == s {
			return nil
		}
	}
	return failure.Newf(failure.InvalidInput, "cannot %s during the %s stage", a, c.state.Stage)
}

// failLocked records err as LastError, releases the lock and notifies.
func (c *Controller) failLocked(err error) error {
	reported := failure.Report(err)
	c.state.LastError = reported
	if reported.Category == failure.InvalidInput {
		c.logger.Info("action refused", "reason", reported.Message)
	} else {
		c.logger.Warn("action failed", "category", reported.Category, "error", err)
	}
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return reported
}

// stopPoll cancels a poll returned by endSessionLocked. The backend job is
// left running.
func (c *Controller) stopPoll(h *poller.Handle) {
	if h == nil {
		return
	}
	h.Cancel()
	c.logger.Info("stopped monitoring job", "job_id", h.JobID())
}

// endSessionLocked invalidates the current poll session and returns its
// handle so the caller can cancel it after releasing the lock.
func (c *Controller) endSessionLocked() *poller.Handle {
	c.session++
	h := c.handle
	c.handle = nil
	return h
}

// changedLocked bumps the state version and returns a snapshot for notify.
func (c *Controller) changedLocked() snapshot {
	c.version++
	return snapshot{state: c.state.clone(), version: c.version}
}

type snapshot struct {
	state   State
	version uint64
}

func (c *Controller) notify(s snapshot) {
	if c.onChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if s.version <= c.notified {
		return
	}
	c.notified = s.version
	c.onChange(s.state)
}

func busyError(a Action) error {
	return failure.Newf(failure.Busy, "cannot %s while another operation is in progress", a)
}
