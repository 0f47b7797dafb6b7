package tts_convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// FFmpegAvailable reports whether ffmpeg is on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// assemble joins the segment files into outputPath. MP3 streams survive
// plain concatenation, so ffmpeg is only used when asked for; it rewrites
// the container and drops per-segment headers.
func assemble(ctx context.Context, inputs []string, outputPath string, useFFmpeg bool) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no segments to assemble")
	}
	if useFFmpeg && len(inputs) > 1 {
		return concatenateWithFFmpeg(ctx, inputs, outputPath)
	}
	return concatenateBytes(inputs, outputPath)
}

func concatenateBytes(inputs []string, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	for _, path := range inputs {
		if err := appendFile(out, path); err != nil {
			out.Close()
			return err
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to append segment %s: %w", path, err)
	}
	return nil
}

// concatenateWithFFmpeg uses ffmpeg's concat demuxer with stream copy.
func concatenateWithFFmpeg(ctx context.Context, inputs []string, outputPath string) error {
	listPath := outputPath + ".list"
	lines := make([]string, 0, len(inputs))
	for _, f := range inputs {
		lines = append(lines, fmt.Sprintf("file '%s'", strings.ReplaceAll(f, "'", "'\\''")))
	}
	if err := os.WriteFile(listPath, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}
