package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"taskhive/internal/logging"
)

// nightlyJobs are enqueued at UTC midnight with small staggered delays so
// they do not all claim the pool at once.
var nightlyJobs = []struct {
	jobType string
	delay   time.Duration
}{
	{TypeStreakCalculate, 0},
	{TypeCreditExpire, 30 * time.Second},
	{TypeSubscriptionCheck, 60 * time.Second},
	{TypeActivityCleanup, 90 * time.Second},
}

// Scheduler enqueues the recurring maintenance jobs: the nightly sweep at
// UTC midnight and the reminder sweep every minute.
type Scheduler struct {
	queue  *Queue
	cron   *cron.Cron
	logger logging.Logger
	now    func() time.Time
}

// NewScheduler builds the scheduler. All schedules run on UTC.
func NewScheduler(queue *Queue, logger logging.Logger) (*Scheduler, error) {
	if queue == nil {
		return nil, errors.New("scheduler requires queue")
	}
	return &Scheduler{
		queue:  queue,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logging.OrNop(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithNow overrides the clock. Test hook.
func (s *Scheduler) WithNow(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run installs the schedules and blocks until ctx is cancelled. The
// reminder sweep is queued immediately so a restart never leaves due
// reminders waiting for the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every 1m", func() { s.enqueueReminderSweep(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 * * *", func() { s.enqueueNightly(ctx) }); err != nil {
		return err
	}

	s.enqueueReminderSweep(ctx)
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) enqueueNightly(ctx context.Context) {
	now := s.now()
	for _, j := range nightlyJobs {
		if err := s.queue.Enqueue(ctx, s.queue.db, j.jobType, struct{}{}, now.Add(j.delay)); err != nil {
			s.logger.Error("enqueue nightly %s: %v", j.jobType, err)
			continue
		}
	}
	s.logger.Info("nightly maintenance jobs enqueued")
}

func (s *Scheduler) enqueueReminderSweep(ctx context.Context) {
	if err := s.queue.Enqueue(ctx, s.queue.db, TypeReminderFire, struct{}{}, s.now()); err != nil {
		s.logger.Error("enqueue reminder sweep: %v", err)
	}
}
