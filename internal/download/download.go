// Package download runs the media fetch+mux collaborator: ffmpeg for
// HLS streams, a plain HTTP GET for covers, and the post-download
// locate step that finds what ffmpeg actually wrote.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vodarchiver/vod-archiver/internal/httpclient"
	"github.com/vodarchiver/vod-archiver/internal/record"
	"github.com/vodarchiver/vod-archiver/internal/safeurl"
)

// Downloader writes streams into a single output directory.
type Downloader struct {
	FFmpegPath string
	Dir        string
	Client     *http.Client
	Log        *log.Logger
}

func New(dir, ffmpegPath string, logger *log.Logger) *Downloader {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Downloader{
		FFmpegPath: ffmpegPath,
		Dir:        dir,
		Client:     httpclient.Default(),
		Log:        logger,
	}
}

// Fetch remuxes the record's HLS stream to an MP4 under the output
// directory and pulls the cover image next to it. The final filename
// embeds the identity key so Locate can find it unambiguously.
// ffmpeg writes to a partial name first; the rename happens only on
// success, so an interrupted run leaves no file that Locate or
// reconciliation would mistake for a finished download.
func (d *Downloader) Fetch(ctx context.Context, v record.Video) error {
	if v.IsPaid() {
		return fmt.Errorf("download %s: no stream URL", v.IdentityKey)
	}
	if !safeurl.IsHTTPOrHTTPS(v.SourceURL) {
		return fmt.Errorf("download %s: refusing stream URL %q", v.IdentityKey, v.SourceURL)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("download %s: %w", v.IdentityKey, err)
	}

	dest := filepath.Join(d.Dir, FileName(v))
	partial := dest + ".part.mp4"
	defer os.Remove(partial)

	args := []string{
		"-y",
		"-i", v.SourceURL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-movflags", "+faststart",
		partial,
	}
	cmd := exec.CommandContext(ctx, d.FFmpegPath, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("download %s: ffmpeg: %w", v.IdentityKey, err)
	}
	if err := os.Rename(partial, dest); err != nil {
		return fmt.Errorf("download %s: %w", v.IdentityKey, err)
	}

	if v.CoverURL != "" {
		if err := d.fetchCover(ctx, v); err != nil {
			d.Log.Printf("download: cover fetch failed key=%s err=%v", v.IdentityKey, err)
		}
	}
	return nil
}

func (d *Downloader) fetchCover(ctx context.Context, v record.Video) error {
	if !safeurl.IsHTTPOrHTTPS(v.CoverURL) {
		return fmt.Errorf("refusing cover URL %q", v.CoverURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.CoverURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get cover: %s", resp.Status)
	}

	base := strings.TrimSuffix(FileName(v), ".mp4")
	f, err := os.Create(filepath.Join(d.Dir, base+".jpg"))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

// ErrNotLocated is wrapped by Locate when a reported-successful
// download cannot be found on disk. Worth its own log line: it means
// the collaborator and the directory disagree.
var ErrNotLocated = errors.New("download: file not located")

// Locate finds the file a finished download produced. The identity
// key is checked first since keys are unambiguous; the sanitized
// title prefix is the fallback for files named before keys were
// embedded. Returns the path and size.
func Locate(dir string, v record.Video) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("locate %s: %w", v.IdentityKey, err)
	}

	key := strings.ToLower(Sanitize(v.IdentityKey))
	title := strings.ToLower(Sanitize(v.Title))

	var byTitle string
	for _, e := range entries {
		if e.IsDir() || !locatable(e.Name()) {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".part.mp4") {
			continue
		}
		if key != "" && strings.Contains(name, key) {
			return statEntry(dir, e.Name(), v)
		}
		if byTitle == "" && title != "" && strings.HasPrefix(name, title) {
			byTitle = e.Name()
		}
	}
	if byTitle != "" {
		return statEntry(dir, byTitle, v)
	}
	return "", 0, fmt.Errorf("locate %s in %s: %w", v.IdentityKey, dir, ErrNotLocated)
}

func locatable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mkv", ".avi":
		return true
	}
	return false
}

func statEntry(dir, name string, v record.Video) (string, int64, error) {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("locate %s: %w", v.IdentityKey, err)
	}
	return path, info.Size(), nil
}

// FileName is the canonical output name for a record:
// title_dateToken_key.mp4, all sanitized.
func FileName(v record.Video) string {
	token := v.DateToken
	if token == "" {
		token = record.UnknownDate
	}
	parts := []string{Sanitize(v.Title), token, Sanitize(v.IdentityKey)}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_") + ".mp4"
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// Sanitize makes s safe for a filename: runs of anything outside
// letters, digits, dot, underscore and dash collapse to one
// underscore, capped at 50 runes.
func Sanitize(s string) string {
	s = unsafeName.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_")
	runes := []rune(s)
	if len(runes) > 50 {
		s = string(runes[:50])
	}
	return s
}
