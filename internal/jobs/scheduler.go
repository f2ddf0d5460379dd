// Package jobs runs Kassandra's background maintenance on a cron schedule:
// sweeping expired sessions and completing overdue sprints.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kassandra-hq/kassandra/internal/app/services/sprints"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

const jobTimeout = time.Minute

// Scheduler owns the cron runner. It satisfies the application's lifecycle
// service interface.
type Scheduler struct {
	cron     *cron.Cron
	sessions storage.SessionStore
	sprints  *sprints.Service
	log      *logger.Logger
}

// New creates the scheduler with its job table.
func New(sessions storage.SessionStore, sprintsSvc *sprints.Service, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	s := &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		sprints:  sprintsSvc,
		log:      log,
	}

	if _, err := s.cron.AddFunc("@hourly", s.sweepSessions); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("@daily", s.closeOverdueSprints); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Name() string { return "jobs" }

// Start begins the cron loop.
func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	s.log.Info("job scheduler started")
	return nil
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("job scheduler stopped")
	return nil
}

func (s *Scheduler) sweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := s.sessions.DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Error("sweep expired sessions")
		return
	}
	if removed > 0 {
		s.log.WithField("count", removed).Info("swept expired sessions")
	}
}

func (s *Scheduler) closeOverdueSprints() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.sprints.CloseOverdue(ctx, time.Now().UTC()); err != nil {
		s.log.WithError(err).Error("close overdue sprints")
	}
}
