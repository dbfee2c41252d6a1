package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is a named periodic task. Failures are logged and retried on the
// next tick; one failing job never stops the others.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs every job once at startup and then on a fixed interval.
// It replaces an external cron for the expiry and grace sweeps.
type Scheduler struct {
	interval time.Duration
	jobs     []Job
	log      *logrus.Entry
}

func New(interval time.Duration, log *logrus.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		interval: interval,
		jobs:     jobs,
		log:      log.WithField("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		if err := job.Run(ctx); err != nil {
			s.log.WithError(err).WithField("job", job.Name).Error("scheduled job failed")
			continue
		}
		s.log.WithFields(logrus.Fields{
			"job":      job.Name,
			"duration": time.Since(started).String(),
		}).Info("scheduled job finished")
	}
}
