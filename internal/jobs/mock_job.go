package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const MockJobType = "mock"

// MockJob is a simple job for testing the job system. It reports Steps
// progress updates spread over Duration.
type MockJob struct {
	Duration   time.Duration
	Steps      int
	ShouldFail bool
	Output     string

	// Gate, if set, must be closed before the job starts working.
	Gate chan struct{}
}

// NewMockJob creates a new mock job with default settings.
func NewMockJob() *MockJob {
	return &MockJob{
		Duration: 20 * time.Millisecond,
		Steps:    4,
		Output:   "mock.mp3",
	}
}

// Type returns the job type identifier.
func (j *MockJob) Type() string {
	return MockJobType
}

// Execute steps through the job, reporting progress after each step.
func (j *MockJob) Execute(ctx context.Context, report ProgressFunc) (string, error) {
	if j.Gate != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-j.Gate:
		}
	}

	steps := j.Steps
	if steps <= 0 {
		steps = 1
	}
	interval := j.Duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
		report(i*100/steps, fmt.Sprintf("step %d of %d", i, steps))
	}

	if j.ShouldFail {
		return "", errors.New("mock job failed")
	}
	return j.Output, nil
}

var _ Job = (*MockJob)(nil)
