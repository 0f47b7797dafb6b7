package main

import (
	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/config"
	"github.com/jackzampolin/epubaudio/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
// --server wins over server.url from config.
func getServerURL() string {
	if serverURL != "" {
		return serverURL
	}
	if cm, _, err := loadConfig(); err == nil {
		return cm.Get().Server.URL
	}
	return config.DefaultConfig().Server.URL
}

func init() {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All() {
		registry.Register(ep)
	}

	apiCmd := registry.BuildCommands(getServerURL)
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "", "Server URL (default: server.url from config)",
	)
	rootCmd.AddCommand(apiCmd)
}
