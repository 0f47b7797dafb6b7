package endpoints

import (
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
	"github.com/jackzampolin/epubaudio/internal/epub"
	"github.com/jackzampolin/epubaudio/internal/svcctx"
)

// MaxUploadBytes bounds the size of an uploaded document.
const MaxUploadBytes = 200 << 20

// ExtractEndpoint handles POST /extract with a multipart "file" upload.
type ExtractEndpoint struct{}

var _ api.Endpoint = (*ExtractEndpoint)(nil)

func (e *ExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/extract", e.handler
}

func (e *ExtractEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Extract text from an EPUB
//	@Description	Upload an EPUB and receive its readable text in spine order
//	@Tags			conversion
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"EPUB document"
//	@Success		200		{object}	backend.ExtractResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/extract [post]
func (e *ExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	logger := svcctx.LoggerFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "the uploaded file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	src, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	doc, err := epub.Read(data)
	if err != nil {
		logger.Info("extract rejected", "file", fh.Filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("could not read %s: %v", fh.Filename, err))
		return
	}

	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s contains no readable text", fh.Filename))
		return
	}

	logger.Info("text extracted", "file", fh.Filename, "chapters", len(doc.Chapters), "chars", len(text))
	writeJSON(w, http.StatusOK, backend.ExtractResponse{
		Text:     text,
		Filename: fh.Filename,
		Title:    doc.Book.Title,
		Chapters: len(doc.Chapters),
	})
}

func (e *ExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	var textOnly bool
	cmd := &cobra.Command{
		Use:   "extract <file.epub>",
		Short: "Extract text from an EPUB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			client := api.NewClient(getServerURL())
			var resp backend.ExtractResponse
			if err := client.PostFile(cmd.Context(), "/extract", "file", filepath.Base(args[0]), data, &resp); err != nil {
				return err
			}
			if textOnly {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&textOnly, "text", false, "Print only the extracted text")
	return cmd
}
