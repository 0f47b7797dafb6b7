package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:8080", cfg.Server.URL)
	assert.Equal(t, time.Second, cfg.Workflow.PollInterval)
	assert.Equal(t, ".epub", cfg.Workflow.Extension)
	assert.Equal(t, "${OPENAI_API_KEY}", cfg.TTS["openai"].APIKey)
	assert.NoError(t, Validate(cfg))
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")
		assert.Equal(t, "secret123", ResolveEnvVars("${TEST_API_KEY}"))
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		assert.Equal(t, "", ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"))
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		assert.Equal(t, "literal-value", ResolveEnvVars("literal-value"))
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-123")
	cfg := DefaultConfig()
	openai := cfg.TTS["openai"]
	openai.APIKey = "${TEST_OPENAI_KEY}"
	cfg.TTS["openai"] = openai

	rc := cfg.ToProviderRegistryConfig()
	require.Len(t, rc.TTSProviders, 3)
	assert.Equal(t, "sk-123", rc.TTSProviders["openai"].APIKey)
	assert.Equal(t, "alloy", rc.TTSProviders["openai"].Voice)
	assert.Equal(t, "mock", rc.TTSProviders["mock"].Type)
	assert.Equal(t, "elevenlabs", rc.TTSProviders["elevenlabs"].Type)
}

func TestNewManager(t *testing.T) {
	t.Run("uses defaults without a file", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir())
		require.NoError(t, err)

		cfg := mgr.Get()
		assert.Equal(t, 5*time.Minute, cfg.Server.Timeout)
		assert.Equal(t, 4096, cfg.Backend.SegmentChars)
		assert.True(t, cfg.TTS["mock"].Enabled)
	})

	t.Run("loads from config file", func(t *testing.T) {
		path := writeConfig(t, `
server:
  url: http://backend:9000
workflow:
  poll_interval: 250ms
backend:
  tts_provider: mock
tts:
  mock:
    voice: narrator
`)
		mgr, err := NewManager(path)
		require.NoError(t, err)

		cfg := mgr.Get()
		assert.Equal(t, "http://backend:9000", cfg.Server.URL)
		assert.Equal(t, 250*time.Millisecond, cfg.Workflow.PollInterval)
		assert.Equal(t, "mock", cfg.Backend.TTSProvider)
		assert.Equal(t, "narrator", cfg.TTS["mock"].Voice)
		assert.Equal(t, "mock", cfg.TTS["mock"].Type, "defaults fill unspecified provider fields")
		assert.Equal(t, path, mgr.ConfigFileUsed())
	})

	t.Run("finds config in search path", func(t *testing.T) {
		path := writeConfig(t, "workflow:\n  extension: .kepub\n")
		mgr, err := NewManager("", filepath.Dir(path))
		require.NoError(t, err)
		assert.Equal(t, ".kepub", mgr.Get().Workflow.Extension)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("EPUBAUDIO_SERVER_URL", "http://from-env:1234")
		path := writeConfig(t, "server:\n  url: http://from-file:1\n")
		mgr, err := NewManager(path)
		require.NoError(t, err)
		assert.Equal(t, "http://from-env:1234", mgr.Get().Server.URL)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		path := writeConfig(t, "backend:\n  port: 70000\n")
		_, err := NewManager(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("rejects unknown provider selection", func(t *testing.T) {
		path := writeConfig(t, "backend:\n  tts_provider: espeak\n")
		_, err := NewManager(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "espeak")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad url", func(c *Config) { c.Server.URL = "localhost:8080" }},
		{"poll too fast", func(c *Config) { c.Workflow.PollInterval = time.Millisecond }},
		{"bad extension", func(c *Config) { c.Workflow.Extension = ".e pub" }},
		{"no workers", func(c *Config) { c.Backend.Workers = 0 }},
		{"segments too long", func(c *Config) { c.Backend.SegmentChars = 5000 }},
		{"unknown provider type", func(c *Config) {
			c.TTS["x"] = TTSProviderCfg{Type: "espeak"}
		}},
		{"negative rate limit", func(c *Config) {
			m := c.TTS["mock"]
			m.RateLimit = -1
			c.TTS["mock"] = m
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestManager_ValueSetReset(t *testing.T) {
	path := writeConfig(t, "backend:\n  workers: 4\n")
	mgr, err := NewManager(path)
	require.NoError(t, err)

	v, err := mgr.Value("backend.workers")
	require.NoError(t, err)
	assert.EqualValues(t, 4, v)

	var notified atomic.Int32
	mgr.OnChange(func(*Config) { notified.Add(1) })

	require.NoError(t, mgr.Set("backend.workers", 8))
	assert.Equal(t, 8, mgr.Get().Backend.Workers)
	assert.EqualValues(t, 1, notified.Load())

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 8, reloaded.Get().Backend.Workers, "Set persists to the file")

	require.Error(t, mgr.Set("backend.workers", 0), "invalid values are refused")
	assert.Equal(t, 8, mgr.Get().Backend.Workers)

	require.NoError(t, mgr.Reset("backend.workers"))
	assert.Equal(t, 2, mgr.Get().Backend.Workers)

	assert.True(t, errors.Is(mgr.Reset("tts.mock.voice"), ErrNoDefault))
	assert.True(t, errors.Is(mgr.Set("bad key!", 1), ErrInvalidKey))
	_, err = mgr.Value("nope.missing")
	assert.True(t, errors.Is(err, ErrInvalidKey))
}

func TestManager_SetWithoutFile(t *testing.T) {
	mgr, err := NewManager("", t.TempDir())
	require.NoError(t, err)
	assert.Error(t, mgr.Set("backend.workers", 3))
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# epubaudio configuration")
	assert.Contains(t, string(data), "${OPENAI_API_KEY}")

	mgr, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, *DefaultConfig(), *mgr.Get())
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("tts.openai.api_key"))
	assert.Error(t, ValidateKey(""))
	assert.Error(t, ValidateKey(".server"))
	assert.Error(t, ValidateKey("server."))
	assert.Error(t, ValidateKey("server url"))
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager("", t.TempDir())
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Server.URL
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	path := writeConfig(t, "workflow:\n  extension: .epub\n")
	mgr, err := NewManager(path)
	require.NoError(t, err)

	var callbackCount atomic.Int32
	var lastValue atomic.Value
	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Workflow.Extension)
	})

	mgr.WatchConfig()
	// Give fsnotify time to set up the watcher.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  extension: .kepub\n"), 0o644))

	require.Eventually(t, func() bool {
		return callbackCount.Load() > 0 && lastValue.Load() == ".kepub"
	}, 2*time.Second, 50*time.Millisecond)
	assert.Equal(t, ".kepub", mgr.Get().Workflow.Extension)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "${OPENAI_API_KEY}", MaskSecret("${OPENAI_API_KEY}"))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "sk-a****wxyz", MaskSecret("sk-abcdefghijklmnopqrstuvwxyz"))

	assert.True(t, IsSecretKey("tts.openai.api_key"))
	assert.False(t, IsSecretKey("tts.openai.voice"))
}
