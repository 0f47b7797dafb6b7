package endpoints

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/svcctx"
)

// DownloadEndpoint handles GET /download/{output_file}.
type DownloadEndpoint struct{}

func (e *DownloadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/download/{output_file}", e.handler
}

func (e *DownloadEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Download a finished audiobook
//	@Tags		conversion
//	@Produce	audio/mpeg
//	@Param		output_file	path	string	true	"Output file name from the progress response"
//	@Success	200
//	@Failure	404	{object}	ErrorResponse
//	@Router		/download/{output_file} [get]
func (e *DownloadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	homeDir := svcctx.HomeFrom(r.Context())
	if homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not initialized")
		return
	}

	path, err := homeDir.OutputPath(r.PathValue("output_file"))
	if err != nil {
		writeError(w, http.StatusNotFound, "no such file")
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "no such file")
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" || filepath.Ext(path) == ".mp3" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}))
	http.ServeFile(w, r, path)
}

func (e *DownloadEndpoint) Command(getServerURL func() string) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "download <output_file>",
		Short: "Download a finished audiobook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				dest = filepath.Base(args[0])
			}
			f, err := os.Create(dest)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", dest, err)
			}

			client := api.NewClient(getServerURL())
			n, err := client.Stream(cmd.Context(), client.BaseURL()+"/download/"+url.PathEscape(args[0]), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(dest)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", dest, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "Where to save the file (default: the output file name)")
	return cmd
}
