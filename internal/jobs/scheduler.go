// Package jobs runs the periodic lifecycle sweeps on a cron schedule.
package jobs

import (
	"context"
	"log"
	"time"

	"mnfit/studio-api/internal/config"
	"mnfit/studio-api/internal/service"

	"github.com/robfig/cron/v3"
)

// Per-run deadlines.
const (
	retentionTimeout   = 4 * time.Minute
	materializeTimeout = time.Minute
)

// Scheduler owns the cron runner for the retention and materialize sweeps.
// Job failures are logged and retried on the next tick; they never stop the server.
type Scheduler struct {
	cron      *cron.Cron
	lifecycle service.LifecycleService
}

// NewScheduler registers both sweeps. Overlapping runs of the same job are skipped.
func NewScheduler(cfg config.JobsConfig, lifecycle service.LifecycleService, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		lifecycle: lifecycle,
	}

	if _, err := s.cron.AddFunc(cfg.RetentionSchedule, func() { s.RunRetention(context.Background()) }); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.MaterializeSchedule, func() { s.RunMaterialize(context.Background()) }); err != nil {
		return nil, err
	}

	log.Printf("INFO: Jobs scheduled: retention=%q materialize=%q tz=%s", cfg.RetentionSchedule, cfg.MaterializeSchedule, loc)
	return s, nil
}

// Start launches the cron goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Println("WARN: Jobs still running at shutdown deadline")
	}
}

// RunRetention performs one retention sweep.
func (s *Scheduler) RunRetention(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, retentionTimeout)
	defer cancel()

	res, err := s.lifecycle.PurgeExpired(ctx)
	if err != nil {
		log.Printf("ERROR: Retention sweep failed (cutoff=%s): %v", res.Cutoff.Format(time.RFC3339), err)
		return
	}
	if res.TermsDeleted == 0 {
		log.Printf("INFO: Retention sweep: nothing to delete (cutoff=%s)", res.Cutoff.Format(time.RFC3339))
	}
}

// RunMaterialize finishes due terms.
func (s *Scheduler) RunMaterialize(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, materializeTimeout)
	defer cancel()

	if _, err := s.lifecycle.MaterializeDueTransitions(ctx); err != nil {
		log.Printf("ERROR: Materialize sweep failed: %v", err)
	}
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
