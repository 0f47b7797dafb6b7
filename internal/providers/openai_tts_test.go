package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// speechServer records every /audio/speech payload and answers with status
// and body.
func speechServer(t *testing.T, status int, body string) (*httptest.Server, *[]map[string]any, *atomic.Int32) {
	t.Helper()
	var payloads []map[string]any
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var p map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		payloads = append(payloads, p)
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "3")
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &payloads, &calls
}

func TestNewOpenAITTSClient_Defaults(t *testing.T) {
	c := NewOpenAITTSClient(OpenAITTSConfig{APIKey: "sk-test"})

	assert.Equal(t, "tts-1", c.model)
	assert.Equal(t, "alloy", c.voice)
	assert.Equal(t, 1.0, c.speed)
	assert.Equal(t, 3, c.MaxRetries())
	assert.Equal(t, 2*time.Second, c.RetryDelayBase())
	assert.Equal(t, 8.0, c.RequestsPerSecond())
	assert.Equal(t, OpenAITTSName, c.Name())
}

func TestOpenAITTS_DefaultRequest(t *testing.T) {
	srv, payloads, _ := speechServer(t, http.StatusOK, "mp3-bytes")
	c := NewOpenAITTSClient(OpenAITTSConfig{APIKey: "sk-test", BaseURL: srv.URL})

	res, err := c.Generate(context.Background(), &TTSRequest{Text: "  Chapter one.  ", Instructions: "ignored"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "mp3-bytes", string(res.Audio))
	assert.Equal(t, "mp3", res.Format)
	assert.Equal(t, len("Chapter one."), res.CharCount)

	require.Len(t, *payloads, 1)
	p := (*payloads)[0]
	assert.Equal(t, "tts-1", p["model"])
	assert.Equal(t, "alloy", p["voice"])
	assert.Equal(t, "Chapter one.", p["input"], "input is trimmed")
	assert.NotContains(t, p, "instructions", "tts-1 does not take instructions")
}

func TestOpenAITTS_RequestOverrides(t *testing.T) {
	srv, payloads, _ := speechServer(t, http.StatusOK, "opus-bytes")
	c := NewOpenAITTSClient(OpenAITTSConfig{
		APIKey:       "sk-test",
		Model:        "gpt-4o-mini-tts",
		Voice:        "onyx",
		Instructions: "Default instructions",
		BaseURL:      srv.URL,
	})

	res, err := c.Generate(context.Background(), &TTSRequest{
		Text:         "Hello.",
		Voice:        "nova",
		Format:       "OPUS",
		Instructions: "Narrate calmly.",
	})
	require.NoError(t, err)
	assert.Equal(t, "opus", res.Format)

	p := (*payloads)[0]
	assert.Equal(t, "nova", p["voice"])
	assert.Equal(t, "opus", p["response_format"])
	assert.Equal(t, "Narrate calmly.", p["instructions"])
}

func TestOpenAITTS_SDKDoesNotRetry(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, _, calls := speechServer(t, status, `{"error":{"message":"nope","type":"server_error"}}`)
			c := NewOpenAITTSClient(OpenAITTSConfig{APIKey: "sk-test", BaseURL: srv.URL, MaxRetries: 5})

			_, err := c.Generate(context.Background(), &TTSRequest{Text: "Hello."})
			require.Error(t, err)
			assert.Equal(t, int32(1), calls.Load(), "retries belong to the conversion job")
		})
	}
}

func TestOpenAITTS_RateLimitError(t *testing.T) {
	srv, _, _ := speechServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
	c := NewOpenAITTSClient(OpenAITTSConfig{APIKey: "sk-test", BaseURL: srv.URL})

	_, err := c.Generate(context.Background(), &TTSRequest{Text: "Hello."})
	rle, ok := IsRateLimitError(err)
	require.True(t, ok, "got %T: %v", err, err)
	assert.Equal(t, http.StatusTooManyRequests, rle.StatusCode)
	assert.Equal(t, 3*time.Second, rle.RetryAfter)
}

func TestOpenAITTS_CharacterLimit(t *testing.T) {
	srv, _, calls := speechServer(t, http.StatusOK, "audio")
	c := NewOpenAITTSClient(OpenAITTSConfig{APIKey: "sk-test", BaseURL: srv.URL})
	ctx := context.Background()

	t.Run("limit counts characters, not bytes", func(t *testing.T) {
		text := strings.Repeat("é", MaxOpenAIInputChars)
		require.Greater(t, len(text), MaxOpenAIInputChars)

		res, err := c.Generate(ctx, &TTSRequest{Text: text})
		require.NoError(t, err)
		assert.Equal(t, MaxOpenAIInputChars, res.CharCount)
	})

	t.Run("over the limit is rejected locally", func(t *testing.T) {
		before := calls.Load()
		res, err := c.Generate(ctx, &TTSRequest{Text: strings.Repeat("日", MaxOpenAIInputChars+1)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds 4096 characters")
		assert.Equal(t, MaxOpenAIInputChars+1, res.CharCount)
		assert.Equal(t, before, calls.Load())
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := c.Generate(ctx, &TTSRequest{Text: "   "})
		assert.ErrorContains(t, err, "text is required")
	})

	t.Run("accented text under the limit is accepted", func(t *testing.T) {
		text := strings.Repeat("Ça été déjà éprouvé. ", 190)
		require.Greater(t, len(text), MaxOpenAIInputChars)
		require.LessOrEqual(t, utf8.RuneCountInString(strings.TrimSpace(text)), MaxOpenAIInputChars)

		_, err := c.Generate(ctx, &TTSRequest{Text: text})
		assert.NoError(t, err)
	})
}

func TestOpenAITTS_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"tts-1","object":"model","created":1,"owned_by":"openai"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAITTSClient(OpenAITTSConfig{APIKey: "sk-test", BaseURL: srv.URL})
	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestOpenAITTS_ListVoices(t *testing.T) {
	c := NewOpenAITTSClient(OpenAITTSConfig{APIKey: "sk-test"})

	voices, err := c.ListVoices(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(voices))
	for _, v := range voices {
		ids = append(ids, v.VoiceID)
	}
	assert.Contains(t, ids, "alloy")
	assert.Contains(t, ids, "onyx")
}
