package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	ElevenLabsTTSName      = "elevenlabs"
	ElevenLabsAPIBaseURL   = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultModel = "eleven_turbo_v2_5"

	// MaxElevenLabsInputChars is the per-request limit of the turbo models.
	MaxElevenLabsInputChars = 40000
)

// ElevenLabsTTSConfig holds configuration for the ElevenLabs TTS client.
type ElevenLabsTTSConfig struct {
	APIKey     string
	BaseURL    string  // Default: ElevenLabsAPIBaseURL
	Model      string  // e.g., "eleven_multilingual_v2", "eleven_turbo_v2_5"
	Voice      string  // Default voice ID
	Stability  float64 // 0.0-1.0, default 0.5
	Similarity float64 // 0.0-1.0, default 0.75
	Timeout    time.Duration
	RateLimit  float64 // Requests per second
	MaxRetries int
	RetryDelay time.Duration
}

// ElevenLabsTTSClient implements TTSProvider using the ElevenLabs REST API.
type ElevenLabsTTSClient struct {
	apiKey     string
	baseURL    string
	model      string
	voice      string
	stability  float64
	similarity float64
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// NewElevenLabsTTSClient creates a new ElevenLabs TTS client.
func NewElevenLabsTTSClient(cfg ElevenLabsTTSConfig) *ElevenLabsTTSClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ElevenLabsAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ElevenLabsDefaultModel
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.75
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	return &ElevenLabsTTSClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		voice:      cfg.Voice,
		stability:  cfg.Stability,
		similarity: cfg.Similarity,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (c *ElevenLabsTTSClient) Name() string {
	return ElevenLabsTTSName
}

// RequestsPerSecond returns the rate limit.
func (c *ElevenLabsTTSClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (c *ElevenLabsTTSClient) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay for exponential backoff.
func (c *ElevenLabsTTSClient) RetryDelayBase() time.Duration {
	return c.retryDelay
}

// HealthCheck verifies the API key against the /user endpoint.
func (c *ElevenLabsTTSClient) HealthCheck(ctx context.Context) error {
	resp, err := c.get(ctx, "/user")
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("invalid API key")
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// Generate converts one segment of text to audio.
func (c *ElevenLabsTTSClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	chars := utf8.RuneCountInString(req.Text)
	if chars > MaxElevenLabsInputChars {
		return nil, fmt.Errorf("text exceeds %d characters", MaxElevenLabsInputChars)
	}

	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}
	if voice == "" {
		return nil, fmt.Errorf("voice_id is required")
	}
	outputFormat, container := elevenLabsFormat(req.Format)

	body, err := json.Marshal(elevenLabsTTSRequest{
		Text:    req.Text,
		ModelID: c.model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		c.baseURL, url.PathEscape(voice), url.QueryEscape(outputFormat))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(audio)
		var errResp elevenLabsErrorResponse
		if json.Unmarshal(audio, &errResp) == nil && errResp.Detail.Message != "" {
			msg = errResp.Detail.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &RateLimitError{
				Message:    "ElevenLabs rate limited: " + msg,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("ElevenLabs TTS error (status %d): %s", resp.StatusCode, msg)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned no audio")
	}

	return &TTSResult{
		Success: true,
		Audio:   audio,
		Format:  container,
		// Roughly 150 words per minute at 5 characters per word.
		DurationMS:    chars * 60 * 1000 / (150 * 5),
		CharCount:     chars,
		CostUSD:       float64(chars) * 0.0003,
		ExecutionTime: time.Since(start),
	}, nil
}

// ListVoices retrieves the voices available to the account.
func (c *ElevenLabsTTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	resp, err := c.get(ctx, "/voices")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list voices (status %d): %s", resp.StatusCode, string(body))
	}

	var result elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		desc := v.Description
		if desc == "" {
			desc = v.Category
		}
		voices = append(voices, Voice{VoiceID: v.VoiceID, Name: v.Name, Description: desc})
	}
	return voices, nil
}

func (c *ElevenLabsTTSClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	return c.client.Do(req)
}

// elevenLabsFormat maps a container name onto an ElevenLabs output_format.
// Values that already name an output_format (e.g. "mp3_22050_32") pass
// through; the container is the part before the first underscore.
func elevenLabsFormat(format string) (outputFormat, container string) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "", "mp3":
		return "mp3_44100_128", "mp3"
	case "wav", "pcm":
		return "pcm_44100", "wav"
	case "opus":
		return "opus_48000_128", "opus"
	}
	container, _, _ = strings.Cut(format, "_")
	if container == "pcm" {
		container = "wav"
	}
	return format, container
}

type elevenLabsTTSRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

type elevenLabsVoicesResponse struct {
	Voices []struct {
		VoiceID     string `json:"voice_id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Category    string `json:"category,omitempty"`
	} `json:"voices"`
}

var (
	_ TTSProvider   = (*ElevenLabsTTSClient)(nil)
	_ VoicesLister  = (*ElevenLabsTTSClient)(nil)
	_ HealthChecker = (*ElevenLabsTTSClient)(nil)
)
