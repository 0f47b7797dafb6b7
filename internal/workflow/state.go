package workflow

import (
	"strings"

	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/failure"
)

// Stage is one of the three mutually exclusive phases of the workflow.
type Stage int

const (
	StageUpload Stage = iota
	StageReview
	StageConverting
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageReview:
		return "review"
	case StageConverting:
		return "converting"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// File is a user-selected document.
type File = backend.File

// Job is the conversion job created by a successful Convert.
type Job struct {
	ID              string         `json:"id" yaml:"id"`
	Status          backend.Status `json:"status" yaml:"status"`
	ProgressPercent int            `json:"progress" yaml:"progress"`
	StatusMessage   string         `json:"message,omitempty" yaml:"message,omitempty"`
	OutputFile      string         `json:"output_file,omitempty" yaml:"output_file,omitempty"`
	FailureReason   string         `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
}

// Terminal reports whether the job has finished.
func (j *Job) Terminal() bool {
	return j != nil && j.Status.IsTerminal()
}

func (j *Job) merge(p backend.Progress) {
	j.Status = p.Status
	j.ProgressPercent = p.Percent
	j.StatusMessage = p.Message
	switch p.Status {
	case backend.StatusCompleted:
		j.OutputFile = p.OutputFile
		j.FailureReason = ""
	case backend.StatusFailed:
		j.FailureReason = p.FailureReason
		j.OutputFile = ""
	}
}

// State is a snapshot of the workflow. Snapshots are copies; mutating one
// has no effect on the controller.
type State struct {
	Stage         Stage          `json:"stage" yaml:"stage"`
	SelectedFile  *File          `json:"-" yaml:"-"`
	ExtractedText string         `json:"-" yaml:"-"`
	ActiveJob     *Job           `json:"job,omitempty" yaml:"job,omitempty"`
	LastError     *failure.Error `json:"error,omitempty" yaml:"error,omitempty"`
	Busy          bool           `json:"busy" yaml:"busy"`
}

func (s State) clone() State {
	out := s
	if s.SelectedFile != nil {
		f := *s.SelectedFile
		out.SelectedFile = &f
	}
	if s.ActiveJob != nil {
		j := *s.ActiveJob
		out.ActiveJob = &j
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

// Action is something the user may ask the workflow to do.
type Action int

const (
	ActionSelectFile Action = iota
	ActionExtract
	ActionEditText
	ActionExportText
	ActionConvert
	ActionBack
	ActionReset
	ActionDownload
)

var actionNames = map[Action]string{
	ActionSelectFile: "select file",
	ActionExtract:    "extract",
	ActionEditText:   "edit text",
	ActionExportText: "export text",
	ActionConvert:    "convert",
	ActionBack:       "back",
	ActionReset:      "reset",
	ActionDownload:   "download",
}

// String returns the action name.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Allowed reports whether action would be accepted in this state.
func (s State) Allowed(a Action) bool {
	if s.Busy {
		return false
	}
	switch a {
	case ActionSelectFile:
		return s.Stage == StageUpload
	case ActionExtract:
		return s.Stage == StageUpload && s.SelectedFile != nil
	case ActionEditText, ActionExportText:
		return s.Stage == StageReview
	case ActionConvert:
		return s.Stage == StageReview && strings.TrimSpace(s.ExtractedText) != ""
	case ActionBack:
		return s.Stage == StageReview || s.Stage == StageConverting
	case ActionReset:
		return true
	case ActionDownload:
		return s.Stage == StageConverting && s.ActiveJob != nil &&
			s.ActiveJob.Status == backend.StatusCompleted && s.ActiveJob.OutputFile != ""
	default:
		return false
	}
}
