package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/failure"
	"github.com/jackzampolin/epubaudio/internal/workflow"
)

func init() {
	color.NoColor = true
}

func TestReporter_ProgressBar(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	job := &workflow.Job{ID: "1", Status: backend.StatusRunning, ProgressPercent: 40, StatusMessage: "segment 2/5"}
	r.Update(workflow.State{Stage: workflow.StageConverting, ActiveJob: job})
	require.NotNil(t, r.bar)
	assert.Contains(t, buf.String(), "segment 2/5")

	done := *job
	done.Status = backend.StatusCompleted
	done.ProgressPercent = 100
	r.Update(workflow.State{Stage: workflow.StageConverting, ActiveJob: &done})
	assert.Nil(t, r.bar)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"), "finished bar should end its line")
}

func TestReporter_TerminalJobWithoutBar(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	job := &workflow.Job{ID: "1", Status: backend.StatusCompleted, ProgressPercent: 100}
	r.Update(workflow.State{Stage: workflow.StageConverting, ActiveJob: job})
	assert.Nil(t, r.bar)
	assert.Empty(t, buf.String())
}

func TestReporter_ErrorsPrintedOnce(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	st := workflow.State{
		Stage:     workflow.StageUpload,
		LastError: failure.New(failure.NetworkFailure, "backend unreachable"),
	}
	r.Update(st)
	r.Update(st)
	assert.Equal(t, 1, strings.Count(buf.String(), "backend unreachable"))

	r.Update(workflow.State{Stage: workflow.StageUpload})
	r.Update(st)
	assert.Equal(t, 2, strings.Count(buf.String(), "backend unreachable"))
}

func TestReporter_LeavingConvertingDropsBar(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	job := &workflow.Job{ID: "1", Status: backend.StatusRunning, ProgressPercent: 10}
	r.Update(workflow.State{Stage: workflow.StageConverting, ActiveJob: job})
	require.NotNil(t, r.bar)

	r.Update(workflow.State{Stage: workflow.StageReview})
	assert.Nil(t, r.bar)
	r.Close()
}

func TestMessages(t *testing.T) {
	var out, errOut bytes.Buffer
	prevOut, prevErr := Out, Err
	Out, Err = &out, &errOut
	defer func() { Out, Err = prevOut, prevErr }()

	Success("saved %s", "book.mp3")
	Error("failed: %d", 3)
	assert.Equal(t, "✓ saved book.mp3\n", out.String())
	assert.Equal(t, "✗ failed: 3\n", errOut.String())
}
