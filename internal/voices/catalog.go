// Package voices keeps a cached catalog of the voices each configured TTS
// provider offers.
package voices

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/epubaudio/internal/providers"
)

// DefaultTTL is how long a provider's voice list is reused before it is
// fetched again.
const DefaultTTL = 15 * time.Minute

// Voice is a voice offered by a TTS provider.
type Voice struct {
	VoiceID     string    `json:"voice_id" yaml:"voice_id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Provider    string    `json:"provider" yaml:"provider"`
	IsDefault   bool      `json:"is_default" yaml:"is_default"`
	SyncedAt    time.Time `json:"synced_at" yaml:"synced_at"`
}

// Config holds configuration for a Catalog.
type Config struct {
	Registry *providers.Registry
	TTL      time.Duration
	Logger   *slog.Logger
}

type entry struct {
	voices  []Voice
	fetched time.Time
}

// Catalog caches voice lists per provider name.
type Catalog struct {
	registry *providers.Registry
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]entry
}

// NewCatalog creates a voice catalog backed by the registry.
func NewCatalog(cfg Config) *Catalog {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Catalog{
		registry: cfg.Registry,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		now:      time.Now,
		cache:    make(map[string]entry),
	}
}

// List returns the voices of the named provider, using the cache when it
// is fresh.
func (c *Catalog) List(ctx context.Context, provider string) ([]Voice, error) {
	c.mu.Lock()
	e, ok := c.cache[provider]
	c.mu.Unlock()
	if ok && c.now().Sub(e.fetched) < c.ttl {
		return markDefault(e.voices, c.registry.Voice(provider)), nil
	}
	return c.Sync(ctx, provider)
}

// Sync fetches the named provider's voices and replaces the cached list.
func (c *Catalog) Sync(ctx context.Context, provider string) ([]Voice, error) {
	p, err := c.registry.GetTTS(provider)
	if err != nil {
		return nil, err
	}
	lister, ok := p.(providers.VoicesLister)
	if !ok {
		return nil, fmt.Errorf("provider %s cannot list voices", provider)
	}

	list, err := lister.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s voices: %w", provider, err)
	}

	now := c.now()
	out := make([]Voice, 0, len(list))
	for _, v := range list {
		out = append(out, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Description: v.Description,
			Provider:    provider,
			SyncedAt:    now,
		})
	}

	c.mu.Lock()
	c.cache[provider] = entry{voices: out, fetched: now}
	c.mu.Unlock()

	c.logger.Debug("voices synced", "provider", provider, "count", len(out))
	return markDefault(out, c.registry.Voice(provider)), nil
}

// Invalidate drops every cached list. Called when provider config changes.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]entry)
	c.mu.Unlock()
}

func markDefault(list []Voice, def string) []Voice {
	out := make([]Voice, len(list))
	for i, v := range list {
		v.IsDefault = def != "" && v.VoiceID == def
		out[i] = v
	}
	return out
}
