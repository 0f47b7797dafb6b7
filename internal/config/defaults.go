package config

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry is a single documented configuration key.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns the default value of every scalar key. Provider
// maps under tts are defaulted as a whole; see DefaultConfig.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// Client
		{
			Key:         "server.url",
			Value:       d.Server.URL,
			Description: "Base URL of the conversion backend",
		},
		{
			Key:         "server.timeout",
			Value:       d.Server.Timeout.String(),
			Description: "Timeout for one-shot requests (extract, convert)",
		},
		{
			Key:         "workflow.poll_interval",
			Value:       d.Workflow.PollInterval.String(),
			Description: "How often a running conversion is checked",
		},
		{
			Key:         "workflow.extension",
			Value:       d.Workflow.Extension,
			Description: "File extension accepted for conversion",
		},
		{
			Key:         "desktop.reveal",
			Value:       d.Desktop.Reveal,
			Description: "Show the finished audiobook in the file manager",
		},
		{
			Key:         "output.dir",
			Value:       d.Output.Dir,
			Description: "Where downloads and exports are saved (empty = home downloads dir)",
		},

		// Backend
		{
			Key:         "backend.host",
			Value:       d.Backend.Host,
			Description: "Interface the conversion server listens on",
		},
		{
			Key:         "backend.port",
			Value:       d.Backend.Port,
			Description: "Port the conversion server listens on",
		},
		{
			Key:         "backend.workers",
			Value:       d.Backend.Workers,
			Description: "Conversion jobs run concurrently",
		},
		{
			Key:         "backend.segment_chars",
			Value:       d.Backend.SegmentChars,
			Description: "Maximum characters per TTS request",
		},
		{
			Key:         "backend.tts_provider",
			Value:       d.Backend.TTSProvider,
			Description: "Name of the TTS provider under tts used for conversions",
		},
		{
			Key:         "backend.ffmpeg",
			Value:       d.Backend.FFmpeg,
			Description: "Join audio segments with ffmpeg instead of byte concatenation",
		},
		{
			Key:         "backend.cors_origins",
			Value:       d.Backend.CORSOrigins,
			Description: "Browser origins allowed to call the backend (\"*\" for any, empty to disable)",
		},
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}
