package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/svcctx"
	"github.com/jackzampolin/epubaudio/internal/voices"
)

// ListVoicesResponse contains the voices of one provider.
type ListVoicesResponse struct {
	Provider string         `json:"provider" yaml:"provider"`
	Voices   []voices.Voice `json:"voices" yaml:"voices"`
}

// ListVoicesEndpoint handles GET /voices.
type ListVoicesEndpoint struct{}

func (e *ListVoicesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/voices", e.handler
}

func (e *ListVoicesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List TTS voices
//	@Description	List the voices of a provider (default: the configured one)
//	@Tags			voices
//	@Produce		json
//	@Param			provider	query		string	false	"Provider name"
//	@Param			refresh		query		bool	false	"Bypass the cache"
//	@Success		200			{object}	ListVoicesResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		502			{object}	ErrorResponse
//	@Router			/voices [get]
func (e *ListVoicesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	catalog := svcctx.VoicesFrom(ctx)
	registry := svcctx.RegistryFrom(ctx)
	cfg := svcctx.ConfigFrom(ctx)
	if catalog == nil || registry == nil || cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "server not fully initialized")
		return
	}

	name := r.URL.Query().Get("provider")
	if name == "" {
		name = cfg.Backend.TTSProvider
	}
	if _, err := registry.GetTTS(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	list := catalog.List
	if r.URL.Query().Get("refresh") == "true" {
		list = catalog.Sync
	}
	vs, err := list(ctx, name)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListVoicesResponse{Provider: name, Voices: vs})
}

func (e *ListVoicesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List TTS voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if provider != "" {
				q.Set("provider", provider)
			}
			if refresh {
				q.Set("refresh", "true")
			}
			path := "/voices"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			client := api.NewClient(getServerURL())
			var resp ListVoicesResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name (default: backend.tts_provider)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch the list again instead of using the cache")
	return cmd
}
