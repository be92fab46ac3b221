package media

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Encoder normalizes acquired audio to a fixed-bitrate MP3.
type Encoder interface {
	ConvertToMP3(ctx context.Context, inputPath string) (string, error)
}

// FFmpegEncoder shells out to ffmpeg for the re-encode.
type FFmpegEncoder struct {
	binaryPath string
	bitrate    string
}

// NewFFmpegEncoder creates an encoder targeting the given bitrate
// (e.g. "320k"). An empty binary path means ffmpeg from PATH.
func NewFFmpegEncoder(binaryPath, bitrate string) *FFmpegEncoder {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "320k"
	}
	return &FFmpegEncoder{binaryPath: binaryPath, bitrate: bitrate}
}

// ConvertToMP3 encodes inputPath to an MP3 next to it. Inputs that are
// already MP3 are returned unchanged. On failure the partial output is
// removed and the input is left in place for the caller's cleanup policy.
func (e *FFmpegEncoder) ConvertToMP3(ctx context.Context, inputPath string) (string, error) {
	if strings.EqualFold(filepath.Ext(inputPath), ".mp3") {
		return inputPath, nil
	}

	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"

	cmd := exec.CommandContext(ctx, e.binaryPath,
		"-y",
		"-i", inputPath,
		"-b:a", e.bitrate,
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		return "", &TranscodeError{Stderr: stderrTail(stderr.String()), Err: err}
	}

	return outputPath, nil
}

// stderrTail keeps the last few lines of ffmpeg output; the interesting
// diagnostic is always at the end.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
