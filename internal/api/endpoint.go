package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint pairs a backend HTTP route with the CLI command that calls it.
type Endpoint interface {
	// Route returns the HTTP method, path, and handler for this endpoint.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit returns true if the endpoint needs the job manager and
	// TTS providers to be ready.
	RequiresInit() bool

	// Command returns a Cobra command that calls this endpoint via HTTP, or
	// nil if the endpoint has no CLI counterpart.
	// getServerURL is called at runtime so the --server flag is honored.
	Command(getServerURL func() string) *cobra.Command
}
