package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabsFormat(t *testing.T) {
	tests := []struct {
		in, outputFormat, container string
	}{
		{"", "mp3_44100_128", "mp3"},
		{"mp3", "mp3_44100_128", "mp3"},
		{"wav", "pcm_44100", "wav"},
		{"opus", "opus_48000_128", "opus"},
		{"mp3_22050_32", "mp3_22050_32", "mp3"},
		{"pcm_16000", "pcm_16000", "wav"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			of, c := elevenLabsFormat(tt.in)
			assert.Equal(t, tt.outputFormat, of)
			assert.Equal(t, tt.container, c)
		})
	}
}

func TestElevenLabsGenerate(t *testing.T) {
	var got elevenLabsTTSRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	c := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "key", BaseURL: srv.URL, Voice: "voice-1"})
	res, err := c.Generate(context.Background(), &TTSRequest{Text: "Hello there."})
	require.NoError(t, err)
	assert.Equal(t, "ID3audio", string(res.Audio))
	assert.Equal(t, "mp3", res.Format)
	assert.Equal(t, "Hello there.", got.Text)
	assert.Equal(t, ElevenLabsDefaultModel, got.ModelID)
}

func TestElevenLabsGenerate_CountsCharacters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	c := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "key", BaseURL: srv.URL, Voice: "v"})
	res, err := c.Generate(context.Background(), &TTSRequest{Text: "Déjà vu"})
	require.NoError(t, err)
	assert.Equal(t, 7, res.CharCount)
}

func TestElevenLabsGenerate_Errors(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"detail":{"status":"too_many","message":"slow down"}}`))
		}))
		defer srv.Close()

		c := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "key", BaseURL: srv.URL, Voice: "v"})
		_, err := c.Generate(context.Background(), &TTSRequest{Text: "hi"})
		rle, ok := IsRateLimitError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, 3*time.Second, rle.RetryAfter)
	})

	t.Run("no voice", func(t *testing.T) {
		c := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "key", BaseURL: "http://unused"})
		_, err := c.Generate(context.Background(), &TTSRequest{Text: "hi"})
		assert.Error(t, err, "a voice is required")
	})
}

func TestElevenLabsListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"voices":[{"voice_id":"a","name":"Rachel","category":"premade"}]}`))
	}))
	defer srv.Close()

	c := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "key", BaseURL: srv.URL})
	voices, err := c.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "Rachel", voices[0].Name)
	assert.Equal(t, "premade", voices[0].Description)
}
