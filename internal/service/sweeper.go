package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ExpirySweeper runs SweepExpiredReservations on a cron schedule.  The
// lazy sweep inside CreateReservation already keeps bookings correct; this
// job keeps the table and the dashboards free of stale pending rows.
type ExpirySweeper struct {
	cron     *cron.Cron
	manager  *ReservationManager
	log      *logrus.Logger
	schedule string
	timeout  time.Duration
}

// NewExpirySweeper creates a sweeper for schedule, e.g. "@every 1m" or a
// five-field cron expression.
func NewExpirySweeper(manager *ReservationManager, schedule string, log *logrus.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		manager:  manager,
		log:      log,
		schedule: schedule,
		timeout:  30 * time.Second,
	}
}

// Start schedules the job and starts the scheduler.
func (s *ExpirySweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("expiry sweeper started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *ExpirySweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("expiry sweeper stopped")
}

// RunOnce performs a single sweep.
func (s *ExpirySweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := time.Now()
	n, err := s.manager.SweepExpiredReservations(ctx, s.manager.Now())
	if err != nil {
		s.log.WithError(err).Error("expiry sweep failed")
		return
	}
	s.log.WithFields(logrus.Fields{"count": n, "took": time.Since(start).String()}).Debug("expiry sweep finished")
}
