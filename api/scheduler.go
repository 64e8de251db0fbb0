/*
scheduler.go - Scheduled full reprocessing

PURPOSE:
  Periodically reprocesses every stored loan so derived balances track
  the configured strategies and any back-dated corrections. Each pass is
  recorded as a reprocess run with trigger "scheduled".

DESIGN:
  - Cron expression (robfig/cron, standard 5-field syntax)
  - One pass at a time: an overlapping tick is skipped
  - A failing loan is logged and counted; the pass continues

CONFIGURATION:
  - Schedule: cron spec, default "0 2 * * *" (nightly at 02:00)
  - Enabled:  whether Start registers the job

USAGE:
  scheduler := NewReprocessScheduler(service, log)
  if err := scheduler.Start(); err != nil { ... }
  defer scheduler.Stop()

SEE ALSO:
  - handlers.go: ReprocessLoan endpoint (manual pass)
  - loan/service.go: ReprocessAll
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/warp/loan-engine/loan"
)

// DefaultSchedule runs nightly at 02:00.
const DefaultSchedule = "0 2 * * *"

// ReprocessScheduler runs loan.Service.ReprocessAll on a cron schedule.
type ReprocessScheduler struct {
	Service  *loan.Service
	Log      logrus.FieldLogger
	Schedule string
	Enabled  bool

	cron    *cron.Cron
	entryID cron.EntryID
	running sync.Mutex
	mu      sync.Mutex
}

// NewReprocessScheduler creates a scheduler with DefaultSchedule.
func NewReprocessScheduler(service *loan.Service, log logrus.FieldLogger) *ReprocessScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReprocessScheduler{
		Service:  service,
		Log:      log.WithField("component", "scheduler"),
		Schedule: DefaultSchedule,
		Enabled:  true,
	}
}

// Start registers the job and starts the cron runner.
func (rs *ReprocessScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Log.Info("disabled, not starting")
		return nil
	}
	if rs.cron != nil {
		return nil
	}

	c := cron.New()
	id, err := c.AddFunc(rs.Schedule, rs.RunNow)
	if err != nil {
		return fmt.Errorf("invalid reprocess schedule %q: %w", rs.Schedule, err)
	}
	c.Start()

	rs.cron = c
	rs.entryID = id
	rs.Log.WithField("schedule", rs.Schedule).Info("started")
	return nil
}

// Stop stops the cron runner and waits for a running pass to finish.
func (rs *ReprocessScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cron == nil {
		return
	}
	<-rs.cron.Stop().Done()
	rs.cron = nil
	rs.Log.Info("stopped")
}

// RunNow runs one pass immediately. It returns at once if a pass is
// already in progress.
func (rs *ReprocessScheduler) RunNow() {
	if !rs.running.TryLock() {
		rs.Log.Warn("previous pass still running, skipping")
		return
	}
	defer rs.running.Unlock()

	started := time.Now()
	processed, failed, err := rs.Service.ReprocessAll(context.Background(), loan.TriggerScheduled)
	entry := rs.Log.WithFields(logrus.Fields{
		"processed": processed,
		"failed":    failed,
		"duration":  time.Since(started).String(),
	})
	if err != nil {
		entry.WithError(err).Error("pass aborted")
		return
	}
	entry.Info("pass completed")
}

// GetNextRunTime returns when the next scheduled pass will occur, or the
// zero time if the scheduler is not running.
func (rs *ReprocessScheduler) GetNextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cron == nil {
		return time.Time{}
	}
	return rs.cron.Entry(rs.entryID).Next
}
