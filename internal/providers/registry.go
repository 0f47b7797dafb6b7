package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrMissingAPIKey marks a provider that is enabled but has no credentials.
// NewRegistryFromConfig skips such providers instead of failing.
var ErrMissingAPIKey = errors.New("api_key is required")

// TTSProviderConfig configures one TTS provider.
type TTSProviderConfig struct {
	Type       string
	Model      string
	Voice      string
	Format     string
	APIKey     string
	RateLimit  float64
	MaxRetries int
	Enabled    bool
}

// RegistryConfig holds provider configuration for the registry.
type RegistryConfig struct {
	TTSProviders map[string]TTSProviderConfig
}

// Registry holds TTS providers by name along with their rate limiters.
type Registry struct {
	mu       sync.RWMutex
	tts      map[string]TTSProvider
	limiters map[string]*RateLimiter
	voices   map[string]string
	formats  map[string]string
	logger   *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		tts:      make(map[string]TTSProvider),
		limiters: make(map[string]*RateLimiter),
		voices:   make(map[string]string),
		formats:  make(map[string]string),
		logger:   slog.Default(),
	}
}

// NewRegistryFromConfig creates providers for every enabled entry.
func NewRegistryFromConfig(cfg RegistryConfig, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	if err := r.Reload(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the registered providers with those built from cfg.
// On error the registry is left unchanged.
func (r *Registry) Reload(cfg RegistryConfig) error {
	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()

	names := make([]string, 0, len(cfg.TTSProviders))
	for name := range cfg.TTSProviders {
		names = append(names, name)
	}
	sort.Strings(names)

	tts := make(map[string]TTSProvider)
	limiters := make(map[string]*RateLimiter)
	voices := make(map[string]string)
	formats := make(map[string]string)
	for _, name := range names {
		pc := cfg.TTSProviders[name]
		if !pc.Enabled {
			continue
		}
		p, err := newTTSProvider(pc)
		if errors.Is(err, ErrMissingAPIKey) {
			logger.Warn("skipping TTS provider without credentials", "name", name, "type", pc.Type)
			continue
		}
		if err != nil {
			return fmt.Errorf("tts provider %s: %w", name, err)
		}
		tts[name] = p
		limiters[name] = NewRateLimiter(p.RequestsPerSecond())
		voices[name] = pc.Voice
		formats[name] = pc.Format
		logger.Info("registered TTS provider", "name", name, "type", p.Name())
	}

	r.mu.Lock()
	r.tts = tts
	r.limiters = limiters
	r.voices = voices
	r.formats = formats
	r.mu.Unlock()
	return nil
}

func newTTSProvider(pc TTSProviderConfig) (TTSProvider, error) {
	switch pc.Type {
	case "openai":
		if pc.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewOpenAITTSClient(OpenAITTSConfig{
			APIKey:     pc.APIKey,
			Model:      pc.Model,
			Voice:      pc.Voice,
			RateLimit:  pc.RateLimit,
			MaxRetries: pc.MaxRetries,
		}), nil
	case "elevenlabs":
		if pc.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewElevenLabsTTSClient(ElevenLabsTTSConfig{
			APIKey:     pc.APIKey,
			Model:      pc.Model,
			Voice:      pc.Voice,
			RateLimit:  pc.RateLimit,
			MaxRetries: pc.MaxRetries,
		}), nil
	case "mock", "":
		m := NewMockTTSProvider()
		if pc.RateLimit > 0 {
			m.RPS = pc.RateLimit
		}
		if pc.MaxRetries > 0 {
			m.Retries = pc.MaxRetries
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterTTS registers a TTS provider by name.
func (r *Registry) RegisterTTS(name string, p TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = p
	r.limiters[name] = NewRateLimiter(p.RequestsPerSecond())
	r.logger.Info("registered TTS provider", "name", name, "type", p.Name())
}

// GetTTS returns a TTS provider by name.
func (r *Registry) GetTTS(name string) (TTSProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.tts[name]
	if !ok {
		return nil, fmt.Errorf("TTS provider not found: %s", name)
	}
	return p, nil
}

// Limiter returns the rate limiter for a provider.
func (r *Registry) Limiter(name string) *RateLimiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[name]
}

// Voice returns the configured voice for a provider, if any.
func (r *Registry) Voice(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.voices[name]
}

// Format returns the configured audio format for a provider, if any.
func (r *Registry) Format(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formats[name]
}

// ListTTS returns registered provider names in sorted order.
func (r *Registry) ListTTS() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tts))
	for name := range r.tts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderStatus summarizes a provider for status endpoints.
type ProviderStatus struct {
	Name      string            `json:"name" yaml:"name"`
	Type      string            `json:"type" yaml:"type"`
	RateLimit RateLimiterStatus `json:"rate_limit" yaml:"rate_limit"`
}

// Status reports every registered provider.
func (r *Registry) Status() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderStatus, 0, len(r.tts))
	for name, p := range r.tts {
		out = append(out, ProviderStatus{
			Name:      name,
			Type:      p.Name(),
			RateLimit: r.limiters[name].Status(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
