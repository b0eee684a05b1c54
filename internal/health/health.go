// Package health verifies the pieces the workflows depend on before
// a run: the feed API, ffmpeg, the download directory and the WebDAV
// drive.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/vodarchiver/vod-archiver/internal/httpclient"
)

// CheckAPI fetches the feed base URL. Any HTTP response means the
// host is up; auth and shape problems surface later with more
// context.
func CheckAPI(ctx context.Context, baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("no API base URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := httpclient.WithTimeout(15 * time.Second).Do(req)
	if err != nil {
		return fmt.Errorf("api unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// CheckFFmpeg confirms the mux binary resolves.
func CheckFFmpeg(path string) error {
	if path == "" {
		path = "ffmpeg"
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	return nil
}

// CheckDownloadDir confirms the output directory exists (creating it
// when missing) and is writable.
func CheckDownloadDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("download dir: %w", err)
	}
	probe := filepath.Join(dir, ".writecheck")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("download dir not writable: %w", err)
	}
	os.Remove(probe)
	return nil
}
