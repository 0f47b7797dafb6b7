package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/workflow"
)

// Reporter turns workflow snapshots into terminal output: a spinner while a
// one-shot call is outstanding and a progress bar while a job converts.
// Update may be called from any goroutine.
type Reporter struct {
	w io.Writer

	mu      sync.Mutex
	spinner *Spinner
	bar     *ProgressBar
	lastErr string
	lastPct int
}

// NewReporter creates a reporter that writes to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w, lastPct: -1}
}

// Update renders st.
func (r *Reporter) Update(st workflow.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.Busy {
		msg := "Working..."
		switch st.Stage {
		case workflow.StageUpload:
			msg = "Extracting text..."
		case workflow.StageReview:
			msg = "Starting conversion..."
		}
		if r.spinner == nil {
			r.spinner = NewSpinner(r.w, msg)
			r.spinner.Start()
		} else {
			r.spinner.UpdateMessage(msg)
		}
	} else if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}

	if job := st.ActiveJob; job != nil && st.Stage == workflow.StageConverting {
		r.renderJob(job)
	} else if r.bar != nil {
		r.bar.Abandon()
		r.bar = nil
		r.lastPct = -1
	}

	if st.LastError != nil {
		if msg := st.LastError.Error(); msg != r.lastErr {
			r.lastErr = msg
			fmt.Fprintf(r.w, "%s %s\n", errorMark("✗"), msg)
		}
	} else {
		r.lastErr = ""
	}
}

func (r *Reporter) renderJob(job *workflow.Job) {
	if r.bar == nil {
		if job.Terminal() {
			return
		}
		desc := job.StatusMessage
		if desc == "" {
			desc = "Converting"
		}
		r.bar = NewProgressBar(r.w, desc)
	} else if job.StatusMessage != "" {
		r.bar.Describe(job.StatusMessage)
	}
	if job.ProgressPercent != r.lastPct {
		r.bar.Set(job.ProgressPercent)
		r.lastPct = job.ProgressPercent
	}

	switch job.Status {
	case backend.StatusCompleted:
		r.bar.Finish()
		r.bar = nil
	case backend.StatusFailed:
		r.bar.Abandon()
		r.bar = nil
	}
}

// Close stops any animation still running.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}
	if r.bar != nil {
		r.bar.Abandon()
		r.bar = nil
	}
}
