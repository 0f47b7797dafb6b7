package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/jobs"
	"github.com/jackzampolin/epubaudio/internal/providers"
	"github.com/jackzampolin/epubaudio/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status      string `json:"status" yaml:"status"`
	TTSProvider string `json:"tts_provider,omitempty" yaml:"tts_provider,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Liveness check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready. The backend is ready when jobs can be
// accepted and the configured TTS provider is registered.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Readiness check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{Status: "ok"}

	cfg := svcctx.ConfigFrom(ctx)
	registry := svcctx.RegistryFrom(ctx)
	if svcctx.JobManagerFrom(ctx) == nil || registry == nil || cfg == nil {
		resp.Status = "not_initialized"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.TTSProvider = cfg.Backend.TTSProvider
	if _, err := registry.GetTTS(cfg.Backend.TTSProvider); err != nil {
		resp.Status = "tts_unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check backend readiness (includes the TTS provider)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			if resp.TTSProvider != "" {
				fmt.Printf("TTS:    %s\n", resp.TTSProvider)
			}
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server      string                     `json:"server" yaml:"server"`
	TTSProvider string                     `json:"tts_provider" yaml:"tts_provider"`
	Providers   []providers.ProviderStatus `json:"providers" yaml:"providers"`
	Jobs        map[jobs.Status]int        `json:"jobs" yaml:"jobs"`
	Pool        jobs.PoolStatus            `json:"pool" yaml:"pool"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Detailed backend status
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Server: "running"}

	if cfg := svcctx.ConfigFrom(ctx); cfg != nil {
		resp.TTSProvider = cfg.Backend.TTSProvider
	}
	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Providers = registry.Status()
	}
	if jm := svcctx.JobManagerFrom(ctx); jm != nil {
		resp.Jobs = jm.Counts()
		resp.Pool = jm.PoolStatus()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed backend status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
