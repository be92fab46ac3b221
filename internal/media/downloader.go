package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DownloadResult is the local audio produced by a download plus best-effort
// metadata from the source page.
type DownloadResult struct {
	Path     string
	Uploader string
}

// Downloader obtains audio from a YouTube or generic video URL.
type Downloader interface {
	Download(ctx context.Context, videoURL, dir string) (*DownloadResult, error)
	Uploader(ctx context.Context, videoURL string) (string, error)
}

// YtdlpDownloader shells out to the yt-dlp binary.
type YtdlpDownloader struct {
	binaryPath string
}

// NewYtdlpDownloader creates a downloader using the given binary, or yt-dlp
// from PATH when empty.
func NewYtdlpDownloader(binaryPath string) *YtdlpDownloader {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &YtdlpDownloader{binaryPath: binaryPath}
}

// Download fetches the best audio stream into dir. Partial files are removed
// on failure so a failed acquisition leaves nothing behind.
func (d *YtdlpDownloader) Download(ctx context.Context, videoURL, dir string) (*DownloadResult, error) {
	template := filepath.Join(dir, "source.%(ext)s")

	cmd := exec.CommandContext(ctx, d.binaryPath,
		"--no-playlist",
		"--no-warnings",
		"-f", "bestaudio",
		"--print-json",
		"-o", template,
		videoURL,
	)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		removeDownloads(dir)
		return nil, &AcquisitionError{URL: videoURL, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	path, err := findDownload(dir)
	if err != nil {
		removeDownloads(dir)
		return nil, &AcquisitionError{URL: videoURL, Err: err}
	}

	result := &DownloadResult{Path: path}

	// yt-dlp prints the video's info json on stdout; the uploader name is a
	// hint only, so parse failures are ignored.
	var info struct {
		Uploader string `json:"uploader"`
		Channel  string `json:"channel"`
	}
	if err := json.Unmarshal(out.Bytes(), &info); err == nil {
		result.Uploader = info.Uploader
		if result.Uploader == "" {
			result.Uploader = info.Channel
		}
	}

	return result, nil
}

// Uploader fetches only the uploader/channel name, without downloading.
func (d *YtdlpDownloader) Uploader(ctx context.Context, videoURL string) (string, error) {
	cmd := exec.CommandContext(ctx, d.binaryPath,
		"--no-playlist",
		"--no-warnings",
		"--skip-download",
		"--print", "uploader",
		videoURL,
	)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &AcquisitionError{URL: videoURL, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	uploader := strings.TrimSpace(out.String())
	if uploader == "" {
		return "", &AcquisitionError{URL: videoURL, Err: fmt.Errorf("no uploader in metadata")}
	}
	return uploader, nil
}

func findDownload(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "source.*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("downloader produced no file")
	}
	return matches[0], nil
}

func removeDownloads(dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, "source.*"))
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
