package config

import "time"

// Config holds epubaudio configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Server   ServerCfg                 `mapstructure:"server" yaml:"server" json:"server"`
	Workflow WorkflowCfg               `mapstructure:"workflow" yaml:"workflow" json:"workflow"`
	Desktop  DesktopCfg                `mapstructure:"desktop" yaml:"desktop" json:"desktop"`
	Output   OutputCfg                 `mapstructure:"output" yaml:"output" json:"output"`
	Backend  BackendCfg                `mapstructure:"backend" yaml:"backend" json:"backend"`
	TTS      map[string]TTSProviderCfg `mapstructure:"tts" yaml:"tts" json:"tts"`
}

// ServerCfg is how the client reaches the conversion backend.
type ServerCfg struct {
	URL     string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// WorkflowCfg tunes the conversion workflow.
type WorkflowCfg struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	Extension    string        `mapstructure:"extension" yaml:"extension" json:"extension"`
}

// DesktopCfg enables host integrations.
type DesktopCfg struct {
	Reveal bool `mapstructure:"reveal" yaml:"reveal" json:"reveal"` // Show finished files in the file manager
}

// OutputCfg controls where the client saves files.
type OutputCfg struct {
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"` // Empty = {home}/downloads
}

// BackendCfg configures the reference conversion server.
type BackendCfg struct {
	Host         string `mapstructure:"host" yaml:"host" json:"host"`
	Port         int    `mapstructure:"port" yaml:"port" json:"port"`
	Workers      int    `mapstructure:"workers" yaml:"workers" json:"workers"`             // Concurrent conversion jobs
	SegmentChars int    `mapstructure:"segment_chars" yaml:"segment_chars" json:"segment_chars"` // Max characters per TTS request
	TTSProvider  string `mapstructure:"tts_provider" yaml:"tts_provider" json:"tts_provider"` // Key into tts
	FFmpeg       bool   `mapstructure:"ffmpeg" yaml:"ffmpeg" json:"ffmpeg"`                // Join segments with ffmpeg

	// CORSOrigins lists browser origins allowed to call the API. "*" allows
	// any origin; empty disables CORS headers.
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
}

// TTSProviderCfg configures a TTS provider.
type TTSProviderCfg struct {
	Type       string  `mapstructure:"type" yaml:"type" json:"type"`                // "openai", "elevenlabs", "mock"
	Model      string  `mapstructure:"model" yaml:"model" json:"model"`             // Model name
	Voice      string  `mapstructure:"voice" yaml:"voice" json:"voice"`             // Voice ID
	Format     string  `mapstructure:"format" yaml:"format" json:"format"`          // Audio format
	APIKey     string  `mapstructure:"api_key" yaml:"api_key" json:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"` // Requests per second
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			URL:     "http://localhost:8080",
			Timeout: 5 * time.Minute,
		},
		Workflow: WorkflowCfg{
			PollInterval: time.Second,
			Extension:    ".epub",
		},
		Backend: BackendCfg{
			Host:         "127.0.0.1",
			Port:         8080,
			Workers:      2,
			SegmentChars: 4096,
			TTSProvider:  "openai",
			CORSOrigins:  []string{"*"},
		},
		TTS: map[string]TTSProviderCfg{
			"openai": {
				Type:       "openai",
				Model:      "tts-1",
				Voice:      "alloy",
				Format:     "mp3",
				APIKey:     "${OPENAI_API_KEY}",
				RateLimit:  5,
				MaxRetries: 5,
				Enabled:    true,
			},
			"elevenlabs": {
				Type:       "elevenlabs",
				Model:      "eleven_turbo_v2_5",
				Voice:      "21m00Tcm4TlvDq8ikWAM",
				Format:     "mp3",
				APIKey:     "${ELEVENLABS_API_KEY}",
				RateLimit:  2,
				MaxRetries: 5,
				Enabled:    true,
			},
			"mock": {
				Type:    "mock",
				Format:  "mp3",
				Enabled: true,
			},
		},
	}
}

// GetTTSProvider returns a TTS provider config by name.
func (c *Config) GetTTSProvider(name string) (TTSProviderCfg, bool) {
	cfg, ok := c.TTS[name]
	return cfg, ok
}

// EnabledTTSProviders returns all enabled TTS providers.
func (c *Config) EnabledTTSProviders() map[string]TTSProviderCfg {
	result := make(map[string]TTSProviderCfg)
	for name, cfg := range c.TTS {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
