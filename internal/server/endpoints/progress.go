package endpoints

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/jobs"
	"github.com/jackzampolin/epubaudio/internal/svcctx"
)

// ProgressResponse is the wire form of a job's progress.
type ProgressResponse struct {
	Status     string `json:"status" yaml:"status"`
	Progress   int    `json:"progress" yaml:"progress"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
	OutputFile string `json:"output_file,omitempty" yaml:"output_file,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// progressFromRecord maps a job record onto the progress wire form.
func progressFromRecord(r *jobs.Record) ProgressResponse {
	resp := ProgressResponse{
		Status:   string(r.Status),
		Progress: r.Progress,
		Message:  r.Message,
	}
	switch r.Status {
	case jobs.StatusCompleted:
		resp.OutputFile = r.OutputFile
	case jobs.StatusFailed, jobs.StatusCancelled:
		resp.Error = r.Error
	}
	return resp
}

// ProgressEndpoint handles GET /progress/{task_id}.
type ProgressEndpoint struct{}

func (e *ProgressEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/progress/{task_id}", e.handler
}

func (e *ProgressEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get conversion progress
//	@Tags		conversion
//	@Produce	json
//	@Param		task_id	path		string	true	"Task ID"
//	@Success	200		{object}	ProgressResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/progress/{task_id} [get]
func (e *ProgressEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("task_id")
	jm := svcctx.JobManagerFrom(r.Context())

	record, err := jm.Get(id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown task id")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, progressFromRecord(record))
}

func (e *ProgressEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <task_id>",
		Short: "Check a conversion job once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ProgressResponse
			if err := client.Get(cmd.Context(), "/progress/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
