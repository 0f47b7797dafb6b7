package jobs

import (
	"context"
	"time"
)

// Job is the interface that all job types must implement.
type Job interface {
	// Type returns the job type identifier.
	Type() string

	// Execute runs the job. It should respect context cancellation and
	// report progress through report. On success it returns the name of the
	// artifact it produced, if any.
	Execute(ctx context.Context, report ProgressFunc) (string, error)
}

// ProgressFunc receives a job's completion percentage (0-100) and a short
// human-readable message.
type ProgressFunc func(percent int, message string)

// Status represents the current state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions will happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Record is a snapshot of a job tracked by the Manager.
type Record struct {
	ID          string         `json:"id"`
	JobType     string         `json:"job_type"`
	Status      Status         `json:"status"`
	Progress    int            `json:"progress"`
	Message     string         `json:"message,omitempty"`
	OutputFile  string         `json:"output_file,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewRecord creates a new job record for submission.
func NewRecord(id, jobType string, metadata map[string]any) *Record {
	return &Record{
		ID:        id,
		JobType:   jobType,
		Status:    StatusQueued,
		Message:   "waiting for a worker",
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
}

func (r *Record) clone() *Record {
	out := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
