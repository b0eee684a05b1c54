// Package app wires the source, store, downloader and uploader into
// the end-to-end workflows the CLI and scheduler trigger.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/vodarchiver/vod-archiver/internal/config"
	"github.com/vodarchiver/vod-archiver/internal/download"
	"github.com/vodarchiver/vod-archiver/internal/reconcile"
	"github.com/vodarchiver/vod-archiver/internal/record"
	"github.com/vodarchiver/vod-archiver/internal/store"
	"github.com/vodarchiver/vod-archiver/internal/triage"
)

// Source yields candidate records from the upstream feed.
type Source interface {
	FetchVideos(ctx context.Context, page, size int) []record.Video
}

// Fetcher is the media fetch+mux collaborator.
type Fetcher interface {
	Fetch(ctx context.Context, v record.Video) error
}

// Uploader is the blob-store collaborator. May be nil when no drive
// is configured.
type Uploader interface {
	Upload(localPath, subdir string) (string, error)
	Exists(remotePath string) bool
}

// App owns one store and drives the workflows against it.
type App struct {
	cfg      *config.Config
	store    *store.Store
	source   Source
	fetcher  Fetcher
	uploader Uploader
	engine   *triage.Engine
	recon    *reconcile.Reconciler
	log      *log.Logger

	// locate is swappable in tests; the collaborator does not report
	// its output path, so finished downloads are found by matching.
	locate func(dir string, v record.Video) (string, int64, error)
}

func New(cfg *config.Config, st *store.Store, src Source, f Fetcher, up Uploader, logger *log.Logger) *App {
	return &App{
		cfg:      cfg,
		store:    st,
		source:   src,
		fetcher:  f,
		uploader: up,
		engine:   triage.NewEngine(st, logger),
		recon:    reconcile.New(st, logger),
		log:      logger,
		locate:   download.Locate,
	}
}

// FetchNew pulls one feed page and triages it. New items are already
// reserved as pending by the engine.
func (a *App) FetchNew(ctx context.Context) triage.Result {
	videos := a.source.FetchVideos(ctx, 1, a.cfg.PageSize)
	res := a.engine.Triage(videos)
	nw, dup, retry, prog := res.Counts()
	a.log.Printf("app: fetch new=%d duplicate=%d retryable=%d in_progress=%d", nw, dup, retry, prog)
	return res
}

// DownloadPending downloads every pending free record, one at a time.
// A failed mux marks the record failed and moves on; retrying is a
// user decision, not an internal loop.
func (a *App) DownloadPending(ctx context.Context) (done, failed int) {
	pending, err := a.store.ListByStatus(record.StatusPending, 0)
	if err != nil {
		a.log.Printf("app: list pending failed err=%v", err)
		return 0, 0
	}
	for _, v := range pending {
		if ctx.Err() != nil {
			return done, failed
		}
		if v.IsPaid() {
			continue
		}
		if err := a.downloadOne(ctx, v); err != nil {
			a.log.Printf("app: download failed key=%s err=%v", v.IdentityKey, err)
			failed++
			continue
		}
		done++
	}
	a.log.Printf("app: download pass done=%d failed=%d", done, failed)
	return done, failed
}

func (a *App) downloadOne(ctx context.Context, v record.Video) error {
	if err := a.store.UpdateStatus(v.IdentityKey, record.StatusDownloading, "", 0); err != nil {
		return err
	}
	if err := a.fetcher.Fetch(ctx, v); err != nil {
		a.markFailed(v.IdentityKey, err)
		return err
	}
	path, size, err := a.locate(a.cfg.DownloadDir, v)
	if err != nil {
		// The mux reported success but nothing matches on disk.
		if errors.Is(err, download.ErrNotLocated) {
			a.log.Printf("app: reported success but no file found key=%s dir=%s", v.IdentityKey, a.cfg.DownloadDir)
		}
		a.markFailed(v.IdentityKey, err)
		return err
	}
	return a.store.UpdateStatus(v.IdentityKey, record.StatusCompleted, path, size)
}

func (a *App) markFailed(key string, cause error) {
	if err := a.store.UpdateStatus(key, record.StatusFailed, "", 0); err != nil {
		a.log.Printf("app: mark failed errored key=%s err=%v", key, err)
		return
	}
	a.store.AppendHistory(key, "download", string(record.StatusFailed), cause.Error())
}

// RetryFailed re-queues every failed record as pending so the next
// download pass picks it up.
func (a *App) RetryFailed() int {
	failed, err := a.store.ListByStatus(record.StatusFailed, 0)
	if err != nil {
		a.log.Printf("app: list failed errored err=%v", err)
		return 0
	}
	n := 0
	for _, v := range failed {
		if err := a.store.UpdateStatus(v.IdentityKey, record.StatusPending, "", 0); err != nil {
			a.log.Printf("app: requeue failed key=%s err=%v", v.IdentityKey, err)
			continue
		}
		n++
	}
	return n
}

// RunWorkflow is the full pass: fetch + triage, then download. A
// pass with failed downloads reports an error so callers can count
// it; the per-record damage is already in the store.
func (a *App) RunWorkflow(ctx context.Context) error {
	a.FetchNew(ctx)
	_, failed := a.DownloadPending(ctx)
	if failed > 0 {
		return fmt.Errorf("app: workflow pass had %d failed downloads", failed)
	}
	return nil
}

// UploadSweep pushes completed records whose file still exists to the
// drive, verifies each upload landed, and marks them uploaded. An
// upload the drive cannot stat back is not trusted: the record stays
// completed and the local file stays put. Records whose file has
// vanished are left for reconciliation to sort out.
func (a *App) UploadSweep(ctx context.Context) (uploaded int) {
	if a.uploader == nil {
		a.log.Printf("app: upload sweep skipped, no drive configured")
		return 0
	}
	completed, err := a.store.ListByStatus(record.StatusCompleted, 0)
	if err != nil {
		a.log.Printf("app: list completed failed err=%v", err)
		return 0
	}
	for _, v := range completed {
		if ctx.Err() != nil {
			return uploaded
		}
		if v.FilePath == "" {
			continue
		}
		if _, err := os.Stat(v.FilePath); err != nil {
			a.log.Printf("app: upload skipped, file missing key=%s path=%s", v.IdentityKey, v.FilePath)
			continue
		}
		remote, err := a.uploader.Upload(v.FilePath, v.DateToken)
		if err != nil {
			a.log.Printf("app: upload failed key=%s err=%v", v.IdentityKey, err)
			a.store.AppendHistory(v.IdentityKey, "upload", string(v.Status), err.Error())
			continue
		}
		if !a.uploader.Exists(remote) {
			a.log.Printf("app: upload unverified key=%s remote=%s", v.IdentityKey, remote)
			a.store.AppendHistory(v.IdentityKey, "upload", string(v.Status), "uploaded file not found on drive")
			continue
		}
		if err := a.store.SetCloudPath(v.IdentityKey, remote); err != nil {
			a.log.Printf("app: record upload failed key=%s err=%v", v.IdentityKey, err)
			continue
		}
		if a.cfg.UploadDelete {
			if err := os.Remove(v.FilePath); err != nil {
				a.log.Printf("app: local delete failed key=%s path=%s err=%v", v.IdentityKey, v.FilePath, err)
			}
		}
		uploaded++
	}
	a.log.Printf("app: upload sweep uploaded=%d", uploaded)
	return uploaded
}

// Cleanup purges failed records past the retention window.
func (a *App) Cleanup() (int, error) {
	n, err := a.store.PurgeFailedOlderThan(a.cfg.RetentionDays)
	if err != nil {
		a.log.Printf("app: cleanup failed err=%v", err)
		return 0, err
	}
	a.log.Printf("app: cleanup purged=%d retention_days=%d", n, a.cfg.RetentionDays)
	return n, nil
}

// Reconcile resyncs the store against the download directory.
func (a *App) Reconcile() (reconcile.Report, error) {
	rep, err := a.recon.Run(a.cfg.DownloadDir)
	if err != nil {
		a.log.Printf("app: reconcile failed err=%v", err)
		return rep, err
	}
	a.log.Printf("app: reconcile completed=%d missing=%d created=%d matched=%d",
		rep.UpdatedToCompleted, rep.UpdatedToMissing, rep.CreatedFromFiles, rep.FilesMatched)
	return rep, nil
}

// Statistics returns the store aggregates.
func (a *App) Statistics() (store.Stats, error) {
	return a.store.Statistics()
}

// ListByStatus exposes status-scoped listing to the CLI.
func (a *App) ListByStatus(status record.Status, limit int) ([]record.Video, error) {
	return a.store.ListByStatus(status, limit)
}

// WritePIDFile records this process's pid for out-of-band tooling.
func (a *App) WritePIDFile() error {
	if a.cfg.PIDFile == "" {
		return nil
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(a.cfg.PIDFile, []byte(pid+"\n"), 0o644); err != nil {
		return fmt.Errorf("app: write pid file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes the pid marker; missing is fine.
func (a *App) RemovePIDFile() {
	if a.cfg.PIDFile == "" {
		return
	}
	if err := os.Remove(a.cfg.PIDFile); err != nil && !os.IsNotExist(err) {
		a.log.Printf("app: remove pid file failed path=%s err=%v", a.cfg.PIDFile, err)
	}
}
