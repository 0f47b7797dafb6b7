package providers

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const MockTTSName = "mock"

// mockFrame is a minimal MPEG-1 Layer III frame header so concatenated mock
// output still looks like an mp3 stream to simple sniffers.
var mockFrame = []byte{0xFF, 0xFB, 0x90, 0x64}

// MockTTSProvider is a TTSProvider that needs no network. It is used by
// tests and as the default provider of the reference backend.
type MockTTSProvider struct {
	Latency    time.Duration
	FailAfter  int // Fail every request after N successes (0 = never)
	FailTimes  int // Fail the first N requests, then succeed
	RPS        float64
	Retries    int
	RetryDelay time.Duration

	requestCount atomic.Int64
}

// NewMockTTSProvider creates a mock provider with small delays.
func NewMockTTSProvider() *MockTTSProvider {
	return &MockTTSProvider{
		Latency:    5 * time.Millisecond,
		RPS:        100,
		Retries:    3,
		RetryDelay: 10 * time.Millisecond,
	}
}

// Name returns the provider identifier.
func (m *MockTTSProvider) Name() string {
	return MockTTSName
}

// RequestsPerSecond returns the configured rate limit.
func (m *MockTTSProvider) RequestsPerSecond() float64 {
	return m.RPS
}

// MaxRetries returns the maximum retry attempts.
func (m *MockTTSProvider) MaxRetries() int {
	return m.Retries
}

// RetryDelayBase returns the base delay between retries.
func (m *MockTTSProvider) RetryDelayBase() time.Duration {
	return m.RetryDelay
}

// Requests returns the number of Generate calls so far.
func (m *MockTTSProvider) Requests() int64 {
	return m.requestCount.Load()
}

// Generate returns a deterministic audio payload derived from the text.
func (m *MockTTSProvider) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	n := m.requestCount.Add(1)

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	if (m.FailTimes > 0 && n <= int64(m.FailTimes)) || (m.FailAfter > 0 && n > int64(m.FailAfter)) {
		err := fmt.Errorf("mock synthesis failure on request %d", n)
		return &TTSResult{ErrorMessage: err.Error(), ExecutionTime: time.Since(start)}, err
	}

	audio := append(append([]byte{}, mockFrame...), []byte(req.Text)...)
	chars := utf8.RuneCountInString(req.Text)
	return &TTSResult{
		Success:       true,
		Audio:         audio,
		Format:        "mp3",
		DurationMS:    chars * 80,
		CharCount:     chars,
		ExecutionTime: time.Since(start),
	}, nil
}

// ListVoices returns a single mock voice.
func (m *MockTTSProvider) ListVoices(context.Context) ([]Voice, error) {
	return []Voice{{VoiceID: "mock", Name: "Mock Voice"}}, nil
}

var _ TTSProvider = (*MockTTSProvider)(nil)
