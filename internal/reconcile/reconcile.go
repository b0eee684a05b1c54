// Package reconcile resyncs the record store against the contents of
// the download directory. The filesystem is ground truth: downloads
// and deletions can happen out of band, so stored status and paths
// are corrected to match what is actually on disk.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/vodarchiver/vod-archiver/internal/record"
)

// Store is the slice of the record store reconciliation needs.
type Store interface {
	All() ([]record.Video, error)
	Upsert(v record.Video) error
	UpdateStatus(key string, status record.Status, filePath string, fileSize int64) error
}

var videoExtensions = map[string]bool{
	".mp4": true,
	".mkv": true,
	".avi": true,
	".mov": true,
	".flv": true,
	".ts":  true,
}

// Report counts the mutations of one reconciliation pass. A pass over
// an unchanged directory after a converged pass reports all zeros.
type Report struct {
	UpdatedToCompleted int
	UpdatedToMissing   int
	CreatedFromFiles   int
	FilesMatched       int
}

func (r Report) Zero() bool {
	return r == Report{}
}

// Reconciler matches store records to files under a download
// directory and corrects stored state.
type Reconciler struct {
	store Store
	log   *log.Logger
}

func New(st Store, logger *log.Logger) *Reconciler {
	return &Reconciler{store: st, log: logger}
}

// Run scans dir recursively and converges the store on it.
//
// Records whose recorded path still exists need no correction.
// Records without a live path are matched to files by identity key
// substring first, title substring second, both case-insensitive;
// a match records the path and promotes to completed. A completed
// record with no matching file is demoted to pending. Files matched
// to no record at all are registered as completed records keyed by a
// hash of their filename, so manually placed files become visible.
//
// Per-file stat errors are logged and skipped; they never abort the
// pass.
func (r *Reconciler) Run(dir string) (Report, error) {
	var rep Report

	files, err := r.scan(dir)
	if err != nil {
		return rep, err
	}

	records, err := r.store.All()
	if err != nil {
		return rep, err
	}

	claimed := make(map[string]bool, len(files))

	// Claim every live recorded path up front so substring matching
	// can never hand one record's file to another record.
	live := make(map[string]fs.FileInfo, len(records))
	for _, rec := range records {
		if rec.FilePath == "" {
			continue
		}
		if info, err := os.Stat(rec.FilePath); err == nil && !info.IsDir() {
			live[rec.IdentityKey] = info
			claimed[filepath.Clean(rec.FilePath)] = true
		}
	}

	for _, rec := range records {
		if info, ok := live[rec.IdentityKey]; ok {
			if rec.Status != record.StatusCompleted && rec.Status != record.StatusUploaded {
				if err := r.store.UpdateStatus(rec.IdentityKey, record.StatusCompleted, rec.FilePath, info.Size()); err != nil {
					r.log.Printf("reconcile: promote failed key=%s err=%v", rec.IdentityKey, err)
					continue
				}
				rep.UpdatedToCompleted++
			}
			continue
		}

		if path := matchFile(rec, files, claimed); path != "" {
			info, err := os.Stat(path)
			if err != nil {
				r.log.Printf("reconcile: stat failed path=%s key=%s err=%v", path, rec.IdentityKey, err)
				continue
			}
			claimed[filepath.Clean(path)] = true
			if err := r.store.UpdateStatus(rec.IdentityKey, record.StatusCompleted, path, info.Size()); err != nil {
				r.log.Printf("reconcile: match update failed key=%s err=%v", rec.IdentityKey, err)
				continue
			}
			rep.FilesMatched++
			continue
		}

		if rec.Status == record.StatusCompleted {
			if err := r.store.UpdateStatus(rec.IdentityKey, record.StatusPending, "", 0); err != nil {
				r.log.Printf("reconcile: demote failed key=%s err=%v", rec.IdentityKey, err)
				continue
			}
			rep.UpdatedToMissing++
		}
	}

	for _, f := range files {
		if claimed[filepath.Clean(f)] {
			continue
		}
		info, err := os.Stat(f)
		if err != nil {
			r.log.Printf("reconcile: stat failed path=%s err=%v", f, err)
			continue
		}
		name := filepath.Base(f)
		v := record.Video{
			IdentityKey: FileKey(name),
			Title:       strings.TrimSuffix(name, filepath.Ext(name)),
			DateToken:   record.DateTokenFromCaption(name),
			Status:      record.StatusCompleted,
			FilePath:    f,
			FileSize:    info.Size(),
		}
		if err := r.store.Upsert(v); err != nil {
			r.log.Printf("reconcile: register file failed path=%s err=%v", f, err)
			continue
		}
		rep.CreatedFromFiles++
	}

	return rep, nil
}

func (r *Reconciler) scan(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.log.Printf("reconcile: walk error path=%s err=%v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if videoExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// matchFile locates a plausible file for rec. The identity key is
// preferred over the title since keys are less ambiguous; both are
// best-effort case-insensitive substring checks against the base
// name, never a guaranteed unique match.
func matchFile(rec record.Video, files []string, claimed map[string]bool) string {
	for _, needle := range []string{rec.IdentityKey, rec.Title} {
		needle = strings.ToLower(strings.TrimSpace(needle))
		if needle == "" {
			continue
		}
		for _, f := range files {
			if claimed[filepath.Clean(f)] {
				continue
			}
			if strings.Contains(strings.ToLower(filepath.Base(f)), needle) {
				return f
			}
		}
	}
	return ""
}

// FileKey derives a stable identity key for a file discovered on
// disk with no corresponding record.
func FileKey(filename string) string {
	sum := sha256.Sum256([]byte(filename))
	return "file_" + hex.EncodeToString(sum[:])[:16]
}
