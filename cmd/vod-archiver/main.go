// Command vod-archiver: interactive menu by default, or one-shot
// subcommands for cron/systemd use.
//
//	menu       Interactive menu (default when no subcommand given)
//	run        Daemon: scheduled fetch, upload sweep and cleanup until SIGINT/SIGTERM
//	once       Single workflow pass: fetch + triage + download, then exit
//	reconcile  Resync the store against the download directory
//	stats      Print record counts and sizes by status
//	purge      Delete failed records past the retention window
//	doctor     Check API reachability, ffmpeg, download dir and WebDAV
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vodarchiver/vod-archiver/internal/app"
	"github.com/vodarchiver/vod-archiver/internal/config"
	"github.com/vodarchiver/vod-archiver/internal/download"
	"github.com/vodarchiver/vod-archiver/internal/health"
	"github.com/vodarchiver/vod-archiver/internal/safeurl"
	"github.com/vodarchiver/vod-archiver/internal/scheduler"
	"github.com/vodarchiver/vod-archiver/internal/source"
	"github.com/vodarchiver/vod-archiver/internal/store"
	"github.com/vodarchiver/vod-archiver/internal/webdav"
)

func main() {
	logger := log.New(os.Stderr, "[vod-archiver] ", log.LstdFlags)

	if err := config.LoadEnvFile(".env"); err != nil {
		logger.Printf("main: .env load failed err=%v", err)
	}
	cfg := config.Load()

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runInterval := runCmd.Duration("interval", 0, "override fetch interval (e.g. 15m)")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ExitOnError)
	reconcileDir := reconcileCmd.String("dir", "", "override download directory")

	purgeCmd := flag.NewFlagSet("purge", flag.ExitOnError)
	purgeDays := purgeCmd.Int("days", 0, "override retention window in days")

	sub := "menu"
	args := []string{}
	if len(os.Args) > 1 {
		sub = os.Args[1]
		args = os.Args[2:]
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatalf("main: cannot open store path=%s err=%v", cfg.DBPath, err)
	}
	defer st.Close()

	src := source.New(source.Options{
		BaseURL:  cfg.APIBaseURL,
		AuthorID: cfg.AuthorID,
		Token:    cfg.APIToken,
		RPS:      cfg.FetchRPS,
		Retry: source.Retry{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryDelay,
			Factor:     cfg.BackoffFactor,
		},
	}, logger)
	dl := download.New(cfg.DownloadDir, cfg.FFmpegPath, logger)

	var up app.Uploader
	if cfg.UploadEnabled() {
		drive := webdav.New(cfg.WebDAVURL, cfg.WebDAVUser, cfg.WebDAVPass, cfg.WebDAVDir, logger)
		if err := drive.Check(); err != nil {
			logger.Printf("main: webdav unreachable, uploads disabled url=%s err=%v", safeurl.Redact(cfg.WebDAVURL), err)
		} else {
			up = drive
		}
	}

	a := app.New(cfg, st, src, dl, up, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch sub {
	case "run":
		runCmd.Parse(args)
		if *runInterval > 0 {
			cfg.FetchInterval = *runInterval
		}
		if err := runDaemon(ctx, a, cfg, logger); err != nil {
			logger.Fatalf("main: %v", err)
		}
	case "once":
		if err := a.RunWorkflow(ctx); err != nil {
			logger.Fatalf("main: workflow err=%v", err)
		}
	case "reconcile":
		reconcileCmd.Parse(args)
		if *reconcileDir != "" {
			cfg.DownloadDir = *reconcileDir
		}
		rep, err := a.Reconcile()
		if err != nil {
			logger.Fatalf("main: reconcile err=%v", err)
		}
		fmt.Printf("completed=%d missing=%d created=%d matched=%d\n",
			rep.UpdatedToCompleted, rep.UpdatedToMissing, rep.CreatedFromFiles, rep.FilesMatched)
	case "stats":
		if err := printStats(a); err != nil {
			logger.Fatalf("main: stats err=%v", err)
		}
	case "purge":
		purgeCmd.Parse(args)
		if *purgeDays > 0 {
			cfg.RetentionDays = *purgeDays
		}
		n, err := a.Cleanup()
		if err != nil {
			logger.Fatalf("main: purge err=%v", err)
		}
		fmt.Printf("purged=%d\n", n)
	case "doctor":
		if !runDoctor(ctx, cfg, up) {
			os.Exit(1)
		}
	case "menu":
		if err := runMenu(ctx, a, cfg, logger); err != nil {
			logger.Fatalf("main: menu err=%v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", sub)
		fmt.Fprintln(os.Stderr, "usage: vod-archiver [menu|run|once|reconcile|stats|purge|doctor]")
		os.Exit(2)
	}
}

// runDaemon runs the scheduler until the context is cancelled, then
// shuts down in order: stop timers, close the store (deferred in
// main), remove the pid file.
func runDaemon(ctx context.Context, a *app.App, cfg *config.Config, logger *log.Logger) error {
	if err := a.WritePIDFile(); err != nil {
		return err
	}
	defer a.RemovePIDFile()

	sched := scheduler.New(logger)
	a.RegisterTasks(sched)
	sched.Start(ctx)

	logger.Printf("main: daemon up fetch_interval=%s upload_at=%s cleanup_at=%s",
		cfg.FetchInterval, cfg.UploadAt, cfg.CleanupAt)

	// One pass right away; the first timer fire is an interval out.
	if err := a.RunWorkflow(ctx); err != nil {
		logger.Printf("main: initial pass err=%v", err)
	}

	<-ctx.Done()
	logger.Printf("main: shutting down")

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(30 * time.Second):
		logger.Printf("main: scheduler stop timed out, exiting anyway")
	}
	return nil
}

// runDoctor prints one line per check and reports overall health.
func runDoctor(ctx context.Context, cfg *config.Config, up app.Uploader) bool {
	ok := true
	report := func(name string, err error) {
		if err != nil {
			ok = false
			fmt.Printf("FAIL %-12s %v\n", name, err)
			return
		}
		fmt.Printf("ok   %s\n", name)
	}

	report("api", health.CheckAPI(ctx, cfg.APIBaseURL))
	report("ffmpeg", health.CheckFFmpeg(cfg.FFmpegPath))
	report("downloads", health.CheckDownloadDir(cfg.DownloadDir))

	switch {
	case !cfg.UploadEnabled():
		fmt.Printf("skip webdav (not configured)\n")
	case up == nil:
		ok = false
		fmt.Printf("FAIL webdav      unreachable url=%s\n", safeurl.Redact(cfg.WebDAVURL))
	default:
		fmt.Printf("ok   webdav url=%s\n", safeurl.Redact(cfg.WebDAVURL))
	}
	return ok
}
