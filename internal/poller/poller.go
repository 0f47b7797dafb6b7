// Package poller turns a one-shot progress check into a running feed of
// updates for a single conversion job.
//
// Ticks run on one goroutine, so they never overlap and callbacks are
// delivered in tick order. Transient network failures are logged and
// skipped. Any other failure ends the poll with a synthesized Failed
// progress. Once Handle.Cancel returns, no callback for that poll will run.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/failure"
)

// DefaultInterval is the delay between ticks when none is configured.
const DefaultInterval = time.Second

// ErrAlreadyPolling is returned by Start while another poll is active.
var ErrAlreadyPolling = failure.New(failure.AlreadyPolling, "a conversion job is already being monitored")

// CheckFunc fetches the current progress of a job.
type CheckFunc func(ctx context.Context, jobID string) (backend.Progress, error)

// Callback receives a progress observation.
type Callback func(backend.Progress)

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Poller runs at most one poll at a time.
type Poller struct {
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// New creates a poller.
func New(opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		interval: interval,
		logger:   logger,
	}
}

// Interval returns the configured tick interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Active reports whether a poll is currently running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && !p.active.stopped.Load()
}

// Start begins polling jobID with an immediate first tick, then one tick per
// interval. onUpdate receives every observation, including the final one;
// onTerminal receives the final observation exactly once. Either callback may
// be nil. Callbacks must not call Cancel on their own handle.
//
// The poll ends on a terminal status, on Cancel, or when ctx is done.
func (p *Poller) Start(ctx context.Context, jobID string, check CheckFunc, onUpdate, onTerminal Callback) (*Handle, error) {
	if jobID == "" {
		return nil, failure.New(failure.InvalidInput, "job id is required")
	}
	if check == nil {
		return nil, failure.New(failure.InvalidInput, "check function is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil && !p.active.stopped.Load() {
		return nil, ErrAlreadyPolling
	}

	pollCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.active = h

	p.logger.Debug("poll started", "job_id", jobID, "interval", p.interval)
	go p.run(pollCtx, h, check, onUpdate, onTerminal)

	return h, nil
}

func (p *Poller) run(ctx context.Context, h *Handle, check CheckFunc, onUpdate, onTerminal Callback) {
	defer close(h.done)
	defer p.release(h)
	defer h.cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	tick := 0
	for {
		tick++
		if p.tick(ctx, h, tick, check, onUpdate, onTerminal) {
			return
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("poll stopped", "job_id", h.jobID, "reason", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

// tick performs one check and delivers its result. It returns true when the
// poll is over.
func (p *Poller) tick(ctx context.Context, h *Handle, n int, check CheckFunc, onUpdate, onTerminal Callback) bool {
	// A ticker fire can win the select against a cancellation.
	if h.stopped.Load() || ctx.Err() != nil {
		return true
	}
	progress, err := check(ctx, h.jobID)
	if h.stopped.Load() || ctx.Err() != nil {
		return true
	}

	if err != nil {
		reported := failure.Report(err)
		if reported.Category == failure.NetworkFailure {
			p.logger.Debug("poll tick failed, will retry", "job_id", h.jobID, "tick", n, "error", err)
			return false
		}
		p.logger.Warn("poll tick rejected, ending poll", "job_id", h.jobID, "tick", n, "error", err)
		progress = backend.Progress{
			Status:        backend.StatusFailed,
			FailureReason: reported.Message,
		}
	}

	terminal := progress.Status.IsTerminal()
	p.logger.Debug("poll tick", "job_id", h.jobID, "tick", n, "status", progress.Status, "progress", progress.Percent)

	delivered := h.deliver(func() {
		if onUpdate != nil {
			onUpdate(progress)
		}
		if terminal {
			h.stopped.Store(true)
			if onTerminal != nil {
				onTerminal(progress)
			}
		}
	})
	return !delivered || terminal
}

func (p *Poller) release(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == h {
		p.active = nil
	}
}

// Handle controls a running poll.
type Handle struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	// deliverMu is held while callbacks run so Cancel can wait them out.
	deliverMu sync.Mutex
	stopped   atomic.Bool
}

// JobID returns the job being polled.
func (h *Handle) JobID() string {
	return h.jobID
}

// Cancel stops the poll. It is idempotent and safe after the poll has ended
// on its own. When Cancel returns, no further callbacks will run.
func (h *Handle) Cancel() {
	h.stopped.Store(true)
	h.cancel()

	// Wait out a delivery that started before stopped was set.
	h.deliverMu.Lock()
	h.deliverMu.Unlock()
}

// Done is closed when the polling goroutine exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) deliver(fn func()) bool {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if h.stopped.Load() {
		return false
	}
	fn()
	return true
}
