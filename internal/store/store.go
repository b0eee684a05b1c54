// Package store persists video records in a local SQLite database.
// Access is serialized by a per-store mutex; the file is owned by a
// single process.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vodarchiver/vod-archiver/internal/record"
)

// ErrNotFound is returned by point operations when no row matches
// the identity key.
var ErrNotFound = errors.New("store: record not found")

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	identity_key TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	date_token TEXT NOT NULL DEFAULT '0000',
	source_url TEXT,
	cover_url TEXT,
	description TEXT,
	file_path TEXT,
	file_size INTEGER,
	download_status TEXT DEFAULT 'pending' CHECK (download_status IN ('pending', 'downloading', 'completed', 'failed', 'uploaded')),
	download_time TEXT,
	upload_time TEXT,
	cloud_path TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	CONSTRAINT valid_file_size CHECK (file_size IS NULL OR file_size >= 0)
);
CREATE TABLE IF NOT EXISTS download_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_key TEXT NOT NULL,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_download_status ON videos(download_status);
CREATE INDEX IF NOT EXISTS idx_created_at ON videos(created_at);
CREATE INDEX IF NOT EXISTS idx_history_video_key ON download_history(video_key);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON download_history(timestamp);
CREATE VIEW IF NOT EXISTS video_summary AS
SELECT download_status, COUNT(*) AS count, COALESCE(SUM(file_size), 0) AS total_size
FROM videos GROUP BY download_status;
`

// Store is a mutex-guarded SQLite record store.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	log *log.Logger
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema.
// Failure here is the one fatal storage condition; callers should
// exit rather than run without persistence.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db, log: logger, now: time.Now}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Upsert inserts v or fully replaces the row with the same identity
// key. Replace semantics are intended: the source feed is
// authoritative and a re-scrape is last-write-wins. CreatedAt is
// preserved across replaces.
func (s *Store) Upsert(v record.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	created := now
	var prior string
	err := s.db.QueryRow(`SELECT created_at FROM videos WHERE identity_key = ?`, v.IdentityKey).Scan(&prior)
	if err == nil {
		if t, perr := time.Parse(time.RFC3339, prior); perr == nil {
			created = t
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.log.Printf("store: upsert lookup failed key=%s err=%v", v.IdentityKey, err)
		return fmt.Errorf("store: upsert %s: %w", v.IdentityKey, err)
	}

	status := v.Status
	if status == "" {
		status = record.StatusPending
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO videos
		(identity_key, title, date_token, source_url, cover_url, description,
		 file_path, file_size, download_status, download_time, upload_time,
		 cloud_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.IdentityKey, v.Title, tokenOrDefault(v.DateToken), v.SourceURL, v.CoverURL, v.Description,
		nullString(v.FilePath), nullInt(v.FileSize), string(status),
		nullTime(v.DownloadAt), nullTime(v.UploadAt), nullString(v.CloudPath),
		created.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		s.log.Printf("store: upsert failed key=%s err=%v", v.IdentityKey, err)
		return fmt.Errorf("store: upsert %s: %w", v.IdentityKey, err)
	}
	return nil
}

// Get returns the record for key, or ErrNotFound.
func (s *Store) Get(key string) (record.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

func (s *Store) get(key string) (record.Video, error) {
	row := s.db.QueryRow(`SELECT identity_key, title, date_token, source_url, cover_url,
		description, file_path, file_size, download_status, download_time, upload_time,
		cloud_path, created_at, updated_at
		FROM videos WHERE identity_key = ?`, key)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Video{}, ErrNotFound
	}
	if err != nil {
		return record.Video{}, fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, nil
}

// ListByStatus returns records in the given state, newest first.
// limit <= 0 means no limit.
func (s *Store) ListByStatus(status record.Status, limit int) ([]record.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `SELECT identity_key, title, date_token, source_url, cover_url,
		description, file_path, file_size, download_status, download_time, upload_time,
		cloud_path, created_at, updated_at
		FROM videos WHERE download_status = ? ORDER BY created_at DESC`
	args := []any{string(status)}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", status, err)
	}
	defer rows.Close()

	var out []record.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list %s: %w", status, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// All returns every record, newest first.
func (s *Store) All() ([]record.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT identity_key, title, date_token, source_url, cover_url,
		description, file_path, file_size, download_status, download_time, upload_time,
		cloud_path, created_at, updated_at
		FROM videos ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list all: %w", err)
	}
	defer rows.Close()

	var out []record.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list all: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateStatus moves the record at key into status, refreshing
// updated_at. File path and size are recorded only on the transition
// into completed; entering uploaded stamps upload_time. Returns
// ErrNotFound when the key does not exist.
func (s *Store) UpdateStatus(key string, status record.Status, filePath string, fileSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC().Format(time.RFC3339)
	var res sql.Result
	var err error
	switch status {
	case record.StatusCompleted:
		res, err = s.db.Exec(`UPDATE videos SET download_status = ?, file_path = ?, file_size = ?,
			download_time = ?, updated_at = ? WHERE identity_key = ?`,
			string(status), filePath, fileSize, now, now, key)
	case record.StatusUploaded:
		res, err = s.db.Exec(`UPDATE videos SET download_status = ?, upload_time = ?, updated_at = ?
			WHERE identity_key = ?`, string(status), now, now, key)
	default:
		res, err = s.db.Exec(`UPDATE videos SET download_status = ?, updated_at = ?
			WHERE identity_key = ?`, string(status), now, key)
	}
	if err != nil {
		s.log.Printf("store: update status failed key=%s status=%s err=%v", key, status, err)
		return fmt.Errorf("store: update status %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	s.appendHistory(key, "status_change", string(status), "")
	return nil
}

// SetCloudPath records the remote path for key and moves it to
// uploaded.
func (s *Store) SetCloudPath(key, cloudPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE videos SET cloud_path = ?, download_status = ?, upload_time = ?,
		updated_at = ? WHERE identity_key = ?`,
		cloudPath, string(record.StatusUploaded), now, now, key)
	if err != nil {
		s.log.Printf("store: set cloud path failed key=%s err=%v", key, err)
		return fmt.Errorf("store: set cloud path %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	s.appendHistory(key, "upload", string(record.StatusUploaded), "")
	return nil
}

// PurgeFailedOlderThan deletes failed records whose last update is
// older than the retention window. Destructive, no soft delete.
func (s *Store) PurgeFailedOlderThan(days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	res, err := s.db.Exec(`DELETE FROM videos WHERE download_status = ? AND updated_at < ?`,
		string(record.StatusFailed), cutoff)
	if err != nil {
		s.log.Printf("store: purge failed err=%v", err)
		return 0, fmt.Errorf("store: purge failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats aggregates record counts and sizes by status.
type Stats struct {
	ByStatus  map[record.Status]int
	Total     int
	TotalSize int64
}

// Statistics reports counts per status plus totals. Every status is
// present in the result even when its count is zero.
func (s *Store) Statistics() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{ByStatus: make(map[record.Status]int, len(record.AllStatuses))}
	for _, status := range record.AllStatuses {
		st.ByStatus[status] = 0
	}
	rows, err := s.db.Query(`SELECT download_status, count, total_size FROM video_summary`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		var size int64
		if err := rows.Scan(&status, &count, &size); err != nil {
			return Stats{}, fmt.Errorf("store: statistics: %w", err)
		}
		st.ByStatus[record.Status(status)] = count
		st.Total += count
		st.TotalSize += size
	}
	return st, rows.Err()
}

// AppendHistory records an audit row for key. Best effort: a history
// write failure is logged and never fails the calling operation.
func (s *Store) AppendHistory(key, action, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendHistory(key, action, status, errMsg)
}

func (s *Store) appendHistory(key, action, status, errMsg string) {
	_, err := s.db.Exec(`INSERT INTO download_history (video_key, action, status, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		key, action, status, nullString(errMsg), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		s.log.Printf("store: history append failed key=%s action=%s err=%v", key, action, err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (record.Video, error) {
	var v record.Video
	var status string
	var sourceURL, coverURL, description, filePath, cloudPath sql.NullString
	var fileSize sql.NullInt64
	var downloadTime, uploadTime sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&v.IdentityKey, &v.Title, &v.DateToken, &sourceURL, &coverURL,
		&description, &filePath, &fileSize, &status, &downloadTime, &uploadTime,
		&cloudPath, &createdAt, &updatedAt)
	if err != nil {
		return record.Video{}, err
	}
	v.SourceURL = sourceURL.String
	v.CoverURL = coverURL.String
	v.Description = description.String
	v.FilePath = filePath.String
	v.FileSize = fileSize.Int64
	v.CloudPath = cloudPath.String
	v.Status = record.Status(status)
	v.DownloadAt = parseTime(downloadTime.String)
	v.UploadAt = parseTime(uploadTime.String)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return v, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func tokenOrDefault(tok string) string {
	if tok == "" {
		return record.UnknownDate
	}
	return tok
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
