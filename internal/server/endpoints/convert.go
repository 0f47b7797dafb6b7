package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/backend"
	"github.com/jackzampolin/epubaudio/internal/jobs"
	"github.com/jackzampolin/epubaudio/internal/jobs/tts_convert"
	"github.com/jackzampolin/epubaudio/internal/svcctx"
)

// ConvertEndpoint handles POST /convert.
type ConvertEndpoint struct{}

var _ api.Endpoint = (*ConvertEndpoint)(nil)

func (e *ConvertEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/convert", e.handler
}

func (e *ConvertEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start a text to speech conversion
//	@Description	Queue a conversion job and return its task id for progress polling
//	@Tags			conversion
//	@Accept			json
//	@Produce		json
//	@Param			request	body		backend.ConvertRequest	true	"Text to convert"
//	@Success		202		{object}	backend.ConvertResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/convert [post]
func (e *ConvertEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)

	var req backend.ConvertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	cfg := svcctx.ConfigFrom(ctx)
	registry := svcctx.RegistryFrom(ctx)
	jm := svcctx.JobManagerFrom(ctx)
	homeDir := svcctx.HomeFrom(ctx)
	if cfg == nil || registry == nil || jm == nil || homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "server not fully initialized")
		return
	}

	name := cfg.Backend.TTSProvider
	provider, err := registry.GetTTS(name)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("text to speech is unavailable: %v", err))
		return
	}

	job, err := tts_convert.NewJob(tts_convert.Config{
		Provider:     provider,
		Limiter:      registry.Limiter(name),
		Voice:        registry.Voice(name),
		Format:       registry.Format(name),
		OutputDir:    homeDir.OutputDir(),
		SegmentChars: cfg.Backend.SegmentChars,
		UseFFmpeg:    cfg.Backend.FFmpeg,
		Logger:       logger,
	}, req.Text, req.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := jm.Submit(job, map[string]any{
		"filename": req.Filename,
		"chars":    len(req.Text),
		"segments": job.Segments(),
		"provider": name,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrQueueFull) || errors.Is(err, jobs.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, fmt.Sprintf("failed to queue conversion: %v", err))
		return
	}

	writeJSON(w, http.StatusAccepted, backend.ConvertResponse{TaskID: backend.TaskID(id)})
}

func (e *ConvertEndpoint) Command(getServerURL func() string) *cobra.Command {
	var filename string
	cmd := &cobra.Command{
		Use:   "convert <file.txt>",
		Short: "Start converting a text file to audio",
		Long: `Submit the contents of a text file for conversion and print the task id.
Use "-" to read from stdin. Poll the job with "epubaudio api progress".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
				if filename == "" {
					filename = filepath.Base(args[0])
				}
			}
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			client := api.NewClient(getServerURL())
			var resp backend.ConvertResponse
			req := backend.ConvertRequest{Text: string(data), Filename: filename}
			if err := client.Post(cmd.Context(), "/convert", req, &resp); err != nil {
				return err
			}
			return api.Output(map[string]string{"task_id": string(resp.TaskID)})
		},
	}
	cmd.Flags().StringVar(&filename, "filename", "", "Source name used for the output file")
	return cmd
}
