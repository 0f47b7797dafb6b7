package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for an unknown job ID.
	ErrNotFound = errors.New("job not found")
	// ErrQueueFull is returned when Submit cannot enqueue more work.
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by Submit after the manager has shut down.
	ErrStopped = errors.New("job manager stopped")
)

// Manager tracks job records in memory and executes submitted jobs on a
// fixed pool of workers.
type Manager struct {
	logger *slog.Logger
	pool   *pool

	mu      sync.RWMutex
	records map[string]*Record
	cancels map[string]context.CancelFunc
	stopped bool
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Workers   int // Concurrent jobs (default 2)
	QueueSize int // Pending jobs before Submit fails (default 100)
	Logger    *slog.Logger
}

// NewManager creates a new job manager. Call Start to begin executing jobs.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:  logger,
		records: make(map[string]*Record),
		cancels: make(map[string]context.CancelFunc),
	}
	m.pool = newPool(cfg.Workers, cfg.QueueSize, m.run, logger)
	return m
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Wait
// blocks until they have.
func (m *Manager) Start(ctx context.Context) {
	m.pool.start(ctx)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
	}()
}

// Wait blocks until all workers have exited.
func (m *Manager) Wait() {
	m.pool.wait()
}

// Submit queues job and returns its ID.
func (m *Manager) Submit(job Job, metadata map[string]any) (string, error) {
	id := uuid.NewString()
	record := NewRecord(id, job.Type(), metadata)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return "", ErrStopped
	}
	m.records[id] = record
	m.mu.Unlock()

	if err := m.pool.submit(&task{id: id, job: job}); err != nil {
		m.mu.Lock()
		delete(m.records, id)
		m.mu.Unlock()
		return "", err
	}

	m.logger.Info("job created", "id", id, "type", job.Type())
	return id, nil
}

// Get returns a snapshot of a job record by ID.
func (m *Manager) Get(jobID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return r.clone(), nil
}

// ListFilter specifies criteria for listing jobs.
type ListFilter struct {
	Status  Status // Filter by status (empty = all)
	JobType string // Filter by job type (empty = all)
	Limit   int    // Max results (0 = default 100)
}

// List returns jobs matching the filter, newest first.
func (m *Manager) List(filter ListFilter) []*Record {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.JobType != "" && r.JobType != filter.JobType {
			continue
		}
		out = append(out, r.clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Counts returns the number of jobs in each status.
func (m *Manager) Counts() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Status]int)
	for _, r := range m.records {
		counts[r.Status]++
	}
	return counts
}

// Cancel stops a queued or running job. Cancelling a finished job is a no-op.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	r, ok := m.records[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if r.Status.IsTerminal() {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancels[jobID]
	if r.Status == StatusQueued {
		m.finishLocked(r, StatusCancelled, "", "cancelled before it started")
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.logger.Info("job cancelled", "id", jobID)
	return nil
}

// run executes one task on a worker goroutine.
func (m *Manager) run(ctx context.Context, t *task) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	r, ok := m.records[t.id]
	if !ok || r.Status != StatusQueued {
		m.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	r.Status = StatusRunning
	r.StartedAt = &now
	r.Message = "started"
	m.cancels[t.id] = cancel
	m.mu.Unlock()

	logger := m.logger.With("id", t.id, "type", t.job.Type())
	logger.Info("job started")

	output, err := t.job.Execute(ctx, func(percent int, message string) {
		m.updateProgress(t.id, percent, message)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, t.id)

	switch {
	case err == nil:
		m.finishLocked(r, StatusCompleted, output, "")
		logger.Info("job completed", "output_file", output)
	case errors.Is(err, context.Canceled):
		m.finishLocked(r, StatusCancelled, "", "the job was cancelled")
		logger.Info("job cancelled")
	default:
		m.finishLocked(r, StatusFailed, "", err.Error())
		logger.Warn("job failed", "error", err)
	}
}

func (m *Manager) updateProgress(jobID string, percent int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[jobID]
	if !ok || r.Status != StatusRunning {
		return
	}
	if percent < 0 {
		percent = 0
	}
	// 100 is reserved for completion.
	if percent > 99 {
		percent = 99
	}
	if percent > r.Progress {
		r.Progress = percent
	}
	if message != "" {
		r.Message = message
	}
}

func (m *Manager) finishLocked(r *Record, status Status, output, errMsg string) {
	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
	r.Error = errMsg
	switch status {
	case StatusCompleted:
		r.Progress = 100
		r.OutputFile = output
		r.Message = "finished"
	case StatusCancelled:
		r.Message = "cancelled"
	case StatusFailed:
		r.Message = "failed"
	}
}
