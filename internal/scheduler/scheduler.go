package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ndenisov/calmind/internal/alarm"
	"github.com/ndenisov/calmind/internal/service"
	"github.com/robfig/cron/v3"
)

// Scheduler drives the periodic work: the minute sweep that fires due
// inexact alarms and the background resync of the event list.
type Scheduler struct {
	cron     *cron.Cron
	facility *alarm.Facility
	sync     *service.SyncService
	resync   time.Duration
}

// New creates a scheduler. resyncEvery is how often the event list is
// reconciled in the background; zero disables the resync job.
func New(tz *time.Location, facility *alarm.Facility, syncSvc *service.SyncService, resyncEvery time.Duration) *Scheduler {
	if tz == nil {
		tz = time.Local
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(tz)),
		facility: facility,
		sync:     syncSvc,
		resync:   resyncEvery,
	}
}

// Start registers the jobs and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	// Inexact alarms fire on the next sweep at or after their instant.
	if _, err := s.cron.AddFunc("* * * * *", s.facility.SweepDue); err != nil {
		return fmt.Errorf("add alarm sweep: %w", err)
	}

	if s.resync > 0 {
		spec := fmt.Sprintf("@every %s", s.resync)
		if _, err := s.cron.AddFunc(spec, s.backgroundResync); err != nil {
			return fmt.Errorf("add background resync: %w", err)
		}
	}

	s.cron.Start()
	log.Printf("Scheduler started (resync every %s)", s.resync)

	<-ctx.Done()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) backgroundResync() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.sync.LoadEvents(ctx); err != nil {
		log.Printf("Background resync failed: %v", err)
	}
}
