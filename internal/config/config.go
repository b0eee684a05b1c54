// Package config loads runtime settings from the environment. Call
// LoadEnvFile(".env") before Load() to pick up a local env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every injected setting; nothing here is hardcoded at
// call sites.
type Config struct {
	// Source API
	APIBaseURL string // e.g. https://api.example.com/v2
	APIToken   string // bearer token, optional
	AuthorID   string // keep only this author's feed items; empty keeps all
	PageSize   int
	FetchRPS   float64 // request pacing toward the API

	// Retry tuning for feed/detail fetches
	MaxRetries    int
	RetryDelay    time.Duration // base delay before the first retry
	BackoffFactor float64

	// Paths
	DownloadDir string
	DBPath      string
	PIDFile     string
	FFmpegPath  string

	// Scheduler cadence
	FetchInterval time.Duration
	UploadAt      string // daily "HH:MM"
	CleanupAt     string // daily "HH:MM"

	// Retention
	RetentionDays int // purge failed records older than this

	// WebDAV drive; uploads are disabled when URL is empty
	WebDAVURL    string
	WebDAVUser   string
	WebDAVPass   string
	WebDAVDir    string
	UploadDelete bool // remove the local file after a verified upload
}

// Load reads configuration from the environment with defaults fit
// for a single-user setup.
func Load() *Config {
	return &Config{
		APIBaseURL: getEnv("VOD_ARCHIVER_API_URL", "https://api.memefans.ai/v2"),
		APIToken:   os.Getenv("VOD_ARCHIVER_API_TOKEN"),
		AuthorID:   os.Getenv("VOD_ARCHIVER_AUTHOR_ID"),
		PageSize:   getEnvInt("VOD_ARCHIVER_PAGE_SIZE", 20),
		FetchRPS:   getEnvFloat("VOD_ARCHIVER_FETCH_RPS", 1),

		MaxRetries:    getEnvInt("VOD_ARCHIVER_MAX_RETRIES", 3),
		RetryDelay:    getEnvDuration("VOD_ARCHIVER_RETRY_DELAY", time.Second),
		BackoffFactor: getEnvFloat("VOD_ARCHIVER_BACKOFF_FACTOR", 2.0),

		DownloadDir: getEnv("VOD_ARCHIVER_DOWNLOAD_DIR", "./downloads"),
		DBPath:      getEnv("VOD_ARCHIVER_DB", "./videos.db"),
		PIDFile:     getEnv("VOD_ARCHIVER_PID_FILE", "./vod-archiver.pid"),
		FFmpegPath:  getEnv("VOD_ARCHIVER_FFMPEG", "ffmpeg"),

		FetchInterval: getEnvDuration("VOD_ARCHIVER_FETCH_INTERVAL", 30*time.Minute),
		UploadAt:      getEnv("VOD_ARCHIVER_UPLOAD_AT", "03:00"),
		CleanupAt:     getEnv("VOD_ARCHIVER_CLEANUP_AT", "04:00"),

		RetentionDays: getEnvInt("VOD_ARCHIVER_RETENTION_DAYS", 7),

		WebDAVURL:    os.Getenv("VOD_ARCHIVER_WEBDAV_URL"),
		WebDAVUser:   os.Getenv("VOD_ARCHIVER_WEBDAV_USER"),
		WebDAVPass:   os.Getenv("VOD_ARCHIVER_WEBDAV_PASS"),
		WebDAVDir:    getEnv("VOD_ARCHIVER_WEBDAV_DIR", "/videos"),
		UploadDelete: getEnvBool("VOD_ARCHIVER_UPLOAD_DELETE", false),
	}
}

// UploadEnabled reports whether a WebDAV target is configured.
func (c *Config) UploadEnabled() bool {
	return c.WebDAVURL != ""
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
