// Package tts_convert turns a block of text into a single audio file. The
// text is segmented, each segment is synthesized by a TTS provider under its
// rate limiter, and the segment audio is assembled into the output directory.
package tts_convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/jackzampolin/epubaudio/internal/jobs"
	"github.com/jackzampolin/epubaudio/internal/providers"
)

// JobType is the identifier for this job type.
const JobType = "tts-convert"

// DefaultSegmentChars matches the largest input the OpenAI speech endpoint
// accepts.
const DefaultSegmentChars = providers.MaxOpenAIInputChars

const defaultFormat = "mp3"

// Config configures a conversion job.
type Config struct {
	Provider     providers.TTSProvider
	Limiter      *providers.RateLimiter // optional
	Voice        string
	Format       string
	Instructions string

	OutputDir    string
	SegmentChars int
	UseFFmpeg    bool
	Logger       *slog.Logger
}

// Validate checks that the config has all required fields.
func (c Config) Validate() error {
	if c.Provider == nil {
		return fmt.Errorf("TTS provider is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.SegmentChars < 0 {
		return fmt.Errorf("segment size must not be negative")
	}
	return nil
}

// Job converts one text to one audio file.
type Job struct {
	cfg      Config
	text     string
	source   string
	output   string
	segments []string
	logger   *slog.Logger
}

// NewJob creates a conversion job. source is the name of the document the
// text came from and only shapes the output file name.
func NewJob(cfg Config, text, source string) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	if cfg.Format == "" {
		cfg.Format = defaultFormat
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	segments := Segment(text, cfg.SegmentChars)
	return &Job{
		cfg:      cfg,
		text:     text,
		source:   source,
		output:   OutputName(source, cfg.Format),
		segments: segments,
		logger:   logger.With("job_type", JobType, "provider", cfg.Provider.Name()),
	}, nil
}

// Type returns the job type identifier.
func (j *Job) Type() string {
	return JobType
}

// OutputFile is the base name of the file Execute produces.
func (j *Job) OutputFile() string {
	return j.output
}

// Segments returns the number of synthesis requests the job will make.
func (j *Job) Segments() int {
	return len(j.segments)
}

// OutputName derives a unique audio file name from the source document.
func OutputName(source, format string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "audiobook"
	}
	stem = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, stem)
	return fmt.Sprintf("%s-%s.%s", stem, uuid.NewString()[:8], format)
}

// Execute synthesizes every segment and assembles the result.
func (j *Job) Execute(ctx context.Context, report jobs.ProgressFunc) (string, error) {
	total := len(j.segments)
	workDir, err := os.MkdirTemp(j.cfg.OutputDir, ".work-")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	j.logger.Info("converting text", "source", j.source, "chars", len(j.text), "segments", total)
	report(0, fmt.Sprintf("synthesizing %d segments", total))

	files := make([]string, 0, total)
	var totalCost float64
	for i, seg := range j.segments {
		res, err := j.synthesize(ctx, seg)
		if err != nil {
			return "", fmt.Errorf("segment %d of %d: %w", i+1, total, err)
		}
		totalCost += res.CostUSD

		path := filepath.Join(workDir, fmt.Sprintf("segment_%04d.%s", i, j.cfg.Format))
		if err := os.WriteFile(path, res.Audio, 0644); err != nil {
			return "", fmt.Errorf("failed to write segment %d: %w", i+1, err)
		}
		files = append(files, path)

		report((i+1)*100/total, fmt.Sprintf("synthesized segment %d of %d", i+1, total))
	}

	report(99, "assembling audio")
	partial := filepath.Join(workDir, j.output)
	if err := assemble(ctx, files, partial, j.cfg.UseFFmpeg); err != nil {
		return "", err
	}
	final := filepath.Join(j.cfg.OutputDir, j.output)
	if err := os.Rename(partial, final); err != nil {
		return "", fmt.Errorf("failed to move output into place: %w", err)
	}

	j.logger.Info("conversion finished", "output_file", j.output, "segments", total, "cost_usd", totalCost)
	return j.output, nil
}

// synthesize makes one segment request, waiting on the provider's rate
// limiter before every attempt and backing off between failures.
func (j *Job) synthesize(ctx context.Context, text string) (*providers.TTSResult, error) {
	req := &providers.TTSRequest{
		Text:         text,
		Voice:        j.cfg.Voice,
		Format:       j.cfg.Format,
		Instructions: j.cfg.Instructions,
	}

	var result *providers.TTSResult
	attempts := uint(j.cfg.Provider.MaxRetries() + 1)
	err := retry.Do(
		func() error {
			if j.cfg.Limiter != nil {
				if err := j.cfg.Limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			res, err := j.cfg.Provider.Generate(ctx, req)
			if err != nil {
				if rle, ok := providers.IsRateLimitError(err); ok && j.cfg.Limiter != nil {
					j.cfg.Limiter.Record429(rle.RetryAfter)
				}
				return err
			}
			if res == nil || !res.Success || len(res.Audio) == 0 {
				msg := "provider returned no audio"
				if res != nil && res.ErrorMessage != "" {
					msg = res.ErrorMessage
				}
				return errors.New(msg)
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(j.retryDelay()),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(rateLimitAwareDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			j.logger.Debug("retrying segment", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (j *Job) retryDelay() time.Duration {
	if d := j.cfg.Provider.RetryDelayBase(); d > 0 {
		return d
	}
	return time.Second
}

// rateLimitAwareDelay honors a provider's Retry-After and otherwise backs
// off exponentially.
func rateLimitAwareDelay(n uint, err error, config *retry.Config) time.Duration {
	if rle, ok := providers.IsRateLimitError(err); ok && rle.RetryAfter > 0 {
		return rle.RetryAfter
	}
	return retry.BackOffDelay(n, err, config)
}
