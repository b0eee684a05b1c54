package app

import (
	"context"

	"github.com/vodarchiver/vod-archiver/internal/scheduler"
)

// RegisterTasks wires the three periodic jobs: the interval
// fetch+download pass, the daily upload sweep and the daily retention
// cleanup.
func (a *App) RegisterTasks(s *scheduler.Scheduler) {
	s.Add(scheduler.Task{
		Name:  "fetch",
		Every: a.cfg.FetchInterval,
		Run: func(ctx context.Context) {
			if err := a.RunWorkflow(ctx); err != nil {
				s.RecordError("fetch")
			}
		},
	})
	s.Add(scheduler.Task{
		Name: "upload",
		At:   a.cfg.UploadAt,
		Run: func(ctx context.Context) {
			if _, err := a.Reconcile(); err != nil {
				s.RecordError("upload")
			}
			a.UploadSweep(ctx)
		},
	})
	s.Add(scheduler.Task{
		Name: "cleanup",
		At:   a.cfg.CleanupAt,
		Run: func(ctx context.Context) {
			if _, err := a.Cleanup(); err != nil {
				s.RecordError("cleanup")
			}
		},
	})
}
