// Package record defines the video record model and the identity
// extraction that turns raw source items into store-ready records.
package record

import "time"

// Status is the download lifecycle state of a video record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusUploaded    Status = "uploaded"
)

// AllStatuses lists every lifecycle state, in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusCompleted,
	StatusFailed,
	StatusUploaded,
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusCompleted, StatusFailed, StatusUploaded:
		return true
	}
	return false
}

// Video is one row in the store, keyed by IdentityKey.
type Video struct {
	IdentityKey string
	Title       string
	DateToken   string
	SourceURL   string
	CoverURL    string
	Description string
	Status      Status
	FilePath    string
	FileSize    int64
	CloudPath   string
	DownloadAt  time.Time
	UploadAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPaid reports whether the item is access-restricted upstream.
// Paid items carry no stream URL and are never downloadable.
func (v Video) IsPaid() bool {
	return v.SourceURL == ""
}
