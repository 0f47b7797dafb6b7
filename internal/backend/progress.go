package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Status is the lifecycle state of a conversion job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further progress updates follow this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus normalizes a status reported by the server. Anything that is
// neither completed nor failed counts as running.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete", "done", "succeeded", "success":
		return StatusCompleted
	case "failed", "failure", "error", "cancelled", "canceled":
		return StatusFailed
	default:
		return StatusRunning
	}
}

// Progress is one observation of a conversion job.
type Progress struct {
	Status        Status `json:"status" yaml:"status"`
	Percent       int    `json:"progress" yaml:"progress"`
	Message       string `json:"message,omitempty" yaml:"message,omitempty"`
	OutputFile    string `json:"output_file,omitempty" yaml:"output_file,omitempty"`
	FailureReason string `json:"error,omitempty" yaml:"error,omitempty"`
}

// progressResponse is the wire format of GET /progress/{task_id}.
type progressResponse struct {
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
	Message    string  `json:"message"`
	OutputFile string  `json:"output_file"`
	Error      string  `json:"error"`
}

func (r progressResponse) normalize() Progress {
	p := Progress{
		Status:  ParseStatus(r.Status),
		Percent: clampPercent(r.Progress),
		Message: r.Message,
	}
	switch p.Status {
	case StatusCompleted:
		p.OutputFile = r.OutputFile
	case StatusFailed:
		p.FailureReason = r.Error
		if p.FailureReason == "" {
			p.FailureReason = r.Message
		}
	}
	return p
}

func clampPercent(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

// TaskID accepts a job identifier encoded as either a JSON string or number.
type TaskID string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TaskID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task_id must be a string or number: %w", err)
	}
	*t = TaskID(n.String())
	return nil
}
