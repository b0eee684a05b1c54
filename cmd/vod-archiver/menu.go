package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/vodarchiver/vod-archiver/internal/app"
	"github.com/vodarchiver/vod-archiver/internal/config"
	"github.com/vodarchiver/vod-archiver/internal/record"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// runMenu drives the interactive surface until the user quits or the
// context is cancelled.
func runMenu(ctx context.Context, a *app.App, cfg *config.Config, logger *log.Logger) error {
	fmt.Println(titleStyle.Render("vod-archiver"))

	for {
		if ctx.Err() != nil {
			return nil
		}

		var choice string
		err := huh.NewSelect[string]().
			Title("What next?").
			Options(
				huh.NewOption("Run full workflow (fetch + download)", "workflow"),
				huh.NewOption("Fetch new items", "fetch"),
				huh.NewOption("Download pending", "download"),
				huh.NewOption("Reconcile download directory", "reconcile"),
				huh.NewOption("List records by status", "list"),
				huh.NewOption("Show statistics", "stats"),
				huh.NewOption("Retry failed downloads", "retry"),
				huh.NewOption("Purge old failed records", "purge"),
				huh.NewOption("Upload sweep", "upload"),
				huh.NewOption("Start scheduler daemon", "daemon"),
				huh.NewOption("Quit", "quit"),
			).
			Value(&choice).
			Run()
		if err != nil {
			return err
		}

		switch choice {
		case "workflow":
			if err := a.RunWorkflow(ctx); err != nil {
				fmt.Println(warnStyle.Render("workflow: " + err.Error()))
			} else {
				fmt.Println(successStyle.Render("Workflow pass finished"))
			}
		case "fetch":
			res := a.FetchNew(ctx)
			nw, dup, retry, prog := res.Counts()
			fmt.Printf("new=%d duplicate=%d retryable=%d in_progress=%d\n", nw, dup, retry, prog)
		case "download":
			done, failed := a.DownloadPending(ctx)
			line := fmt.Sprintf("downloaded=%d failed=%d", done, failed)
			if failed > 0 {
				fmt.Println(warnStyle.Render(line))
			} else {
				fmt.Println(successStyle.Render(line))
			}
		case "reconcile":
			rep, err := a.Reconcile()
			if err != nil {
				fmt.Println(warnStyle.Render("reconcile failed: " + err.Error()))
				continue
			}
			fmt.Printf("completed=%d missing=%d created=%d matched=%d\n",
				rep.UpdatedToCompleted, rep.UpdatedToMissing, rep.CreatedFromFiles, rep.FilesMatched)
		case "list":
			if err := menuList(a); err != nil {
				return err
			}
		case "stats":
			if err := printStats(a); err != nil {
				fmt.Println(warnStyle.Render("statistics failed: " + err.Error()))
			}
		case "retry":
			fmt.Printf("requeued=%d\n", a.RetryFailed())
		case "purge":
			if err := menuPurge(a, cfg); err != nil {
				return err
			}
		case "upload":
			if !cfg.UploadEnabled() {
				fmt.Println(infoStyle.Render("No WebDAV drive configured"))
				continue
			}
			fmt.Printf("uploaded=%d\n", a.UploadSweep(ctx))
		case "daemon":
			fmt.Println(infoStyle.Render("Daemon running, Ctrl-C to stop"))
			return runDaemon(ctx, a, cfg, logger)
		case "quit":
			return nil
		}
	}
}

func menuList(a *app.App) error {
	var status string
	opts := make([]huh.Option[string], 0, len(record.AllStatuses))
	for _, s := range record.AllStatuses {
		opts = append(opts, huh.NewOption(string(s), string(s)))
	}
	if err := huh.NewSelect[string]().
		Title("Which status?").
		Options(opts...).
		Value(&status).
		Run(); err != nil {
		return err
	}

	videos, err := a.ListByStatus(record.Status(status), 50)
	if err != nil {
		fmt.Println(warnStyle.Render("list failed: " + err.Error()))
		return nil
	}
	if len(videos) == 0 {
		fmt.Println(infoStyle.Render("No records with status " + status))
		return nil
	}
	for _, v := range videos {
		line := fmt.Sprintf("%-24s %s", v.IdentityKey, v.Title)
		if v.FilePath != "" {
			line += "  " + v.FilePath
		}
		fmt.Println(line)
	}
	return nil
}

func menuPurge(a *app.App, cfg *config.Config) error {
	days := fmt.Sprintf("%d", cfg.RetentionDays)
	if err := huh.NewInput().
		Title("Retention window in days").
		Validate(func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || n < 1 {
				return fmt.Errorf("enter a positive number of days")
			}
			return nil
		}).
		Value(&days).
		Run(); err != nil {
		return err
	}
	if n, err := strconv.Atoi(strings.TrimSpace(days)); err == nil {
		cfg.RetentionDays = n
	}

	var confirmed bool
	prompt := fmt.Sprintf("Delete failed records older than %d days?", cfg.RetentionDays)
	if err := huh.NewConfirm().
		Title(prompt).
		Description("This is permanent; there is no soft delete.").
		Affirmative("Purge").
		Negative("Keep").
		Value(&confirmed).
		Run(); err != nil {
		return err
	}
	if !confirmed {
		fmt.Println(infoStyle.Render("Kept everything"))
		return nil
	}
	n, err := a.Cleanup()
	if err != nil {
		fmt.Println(warnStyle.Render("purge failed: " + err.Error()))
		return nil
	}
	fmt.Printf("purged=%d\n", n)
	return nil
}

func printStats(a *app.App) error {
	st, err := a.Statistics()
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, status := range record.AllStatuses {
		fmt.Fprintf(&b, "%-12s %d\n", status, st.ByStatus[status])
	}
	fmt.Fprintf(&b, "%-12s %d\n", "total", st.Total)
	fmt.Fprintf(&b, "%-12s %s\n", "size", humanSize(st.TotalSize))
	fmt.Print(b.String())
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
