package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"pricewatch/internal/metrics"
	domain "pricewatch/pkg/types"
)

// Scheduled job names. Stable: job_runs rows, scheduler locks, and
// dashboards key off these strings.
const (
	jobEnqueueDue        = "enqueue_due"
	jobRecoverLeases     = "recover_leases"
	jobRetryDeliveries   = "retry_deliveries"
	jobDispatchDigests   = "dispatch_digests"
	jobRefreshPriorities = "refresh_priorities"
	jobRetentionSweep    = "retention_sweep"
)

// staleJobRunAge is how old a still-running job_runs row must be before
// recovery marks it abandoned.
const staleJobRunAge = 2 * time.Hour

// JobStore is the slice of the datastore the scheduler needs: advisory
// locks, job run audit rows, and queue recovery.
type JobStore interface {
	AcquireSchedulerLock(ctx context.Context, jobName string, holder string, ttl time.Duration) (bool, error)
	ReleaseSchedulerLock(ctx context.Context, jobName string, holder string) error
	InsertJobRun(ctx context.Context, jobName string) (string, error)
	CompleteJobRun(ctx context.Context, id string, status string, errText string, rowsAffected int) error
	RecoverExpiredLeases(ctx context.Context, now time.Time) (recovered, exhausted int, err error)
	RecoverStaleJobRuns(ctx context.Context, olderThan time.Duration) (int, error)
	QueueStats(ctx context.Context) ([]domain.QueueStats, error)
}

// Dispatcher is the delivery surface the scheduler drives.
type Dispatcher interface {
	RunImmediate(ctx context.Context) (int, error)
	RunDigests(ctx context.Context) (int, error)
}

// SchedulerConfig holds the beat intervals. Zero fields fall back to
// defaults.
type SchedulerConfig struct {
	LockTTL           time.Duration
	EnqueueInterval   time.Duration
	RecoverInterval   time.Duration
	RedeliverInterval time.Duration
	DigestInterval    time.Duration
	PriorityInterval  time.Duration
	RetentionInterval time.Duration
}

func (c *SchedulerConfig) normalize() {
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.EnqueueInterval <= 0 {
		c.EnqueueInterval = time.Minute
	}
	if c.RecoverInterval <= 0 {
		c.RecoverInterval = 5 * time.Minute
	}
	if c.RedeliverInterval <= 0 {
		c.RedeliverInterval = 5 * time.Minute
	}
	if c.DigestInterval <= 0 {
		c.DigestInterval = time.Hour
	}
	if c.PriorityInterval <= 0 {
		c.PriorityInterval = 6 * time.Hour
	}
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = 24 * time.Hour
	}
}

// Scheduler runs the periodic jobs. Every beat takes a per-job database
// lock first, so several instances can run the same binary and exactly
// one executes each job; the rest count a lock miss and move on. Due
// work is always recomputed from persisted state, never from scheduler
// memory, so restarts and failovers cannot double-enqueue.
type Scheduler struct {
	cron       *cron.Cron
	store      JobStore
	engine     *Engine
	dispatcher Dispatcher
	cfg        SchedulerConfig
	log        *slog.Logger
	now        func() time.Time
	holder     string
}

// NewScheduler creates a Scheduler driving the engine's periodic jobs.
func NewScheduler(
	eng *Engine,
	s JobStore,
	d Dispatcher,
	cfg SchedulerConfig,
	log *slog.Logger,
) (*Scheduler, error) {
	cfg.normalize()

	sched := &Scheduler{
		cron:       cron.New(),
		store:      s,
		engine:     eng,
		dispatcher: d,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		holder:     defaultHolder(),
	}

	jobs := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) (int, error)
	}{
		{jobEnqueueDue, cfg.EnqueueInterval, sched.enqueueDue},
		{jobRecoverLeases, cfg.RecoverInterval, sched.recoverLeases},
		{jobRetryDeliveries, cfg.RedeliverInterval, d.RunImmediate},
		{jobDispatchDigests, cfg.DigestInterval, d.RunDigests},
		{jobRefreshPriorities, cfg.PriorityInterval, eng.RefreshPriorities},
		{jobRetentionSweep, cfg.RetentionInterval, eng.EnqueueMaintenance},
	}
	for _, j := range jobs {
		_, err := sched.cron.AddFunc("@every "+j.interval.String(), func() {
			_ = sched.runJob(context.Background(), j.name, j.fn)
		})
		if err != nil {
			return nil, fmt.Errorf("registering job %s: %w", j.name, err)
		}
	}

	return sched, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started", "holder", s.holder)
	s.cron.Start()
}

// Stop gracefully stops the scheduler, waiting for running jobs to finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("scheduler stopping")
	return s.cron.Stop()
}

// Entries returns the registered cron entries for inspection.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// runJob wraps one job execution: take the job lock, record a job_runs
// row, run, record the outcome. A lock miss is not an error; another
// instance owns this beat.
func (s *Scheduler) runJob(ctx context.Context, name string, fn func(context.Context) (int, error)) error {
	ok, err := s.store.AcquireSchedulerLock(ctx, name, s.holder, s.cfg.LockTTL)
	if err != nil {
		s.log.Error("acquiring scheduler lock failed", "job", name, "error", err)
		return err
	}
	if !ok {
		metrics.SchedulerLockMissesTotal.WithLabelValues(name).Inc()
		s.log.Debug("scheduler lock held elsewhere", "job", name)
		return nil
	}
	defer func() {
		if err := s.store.ReleaseSchedulerLock(ctx, name, s.holder); err != nil {
			s.log.Error("releasing scheduler lock failed", "job", name, "error", err)
		}
	}()

	runID, err := s.store.InsertJobRun(ctx, name)
	if err != nil {
		s.log.Error("recording job run failed", "job", name, "error", err)
		return err
	}

	start := s.now()
	rows, jobErr := fn(ctx)
	elapsed := s.now().Sub(start)
	metrics.SchedulerJobDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	status, errText := "succeeded", ""
	if jobErr != nil {
		status, errText = "failed", jobErr.Error()
	}
	if err := s.store.CompleteJobRun(ctx, runID, status, errText, rows); err != nil {
		s.log.Error("completing job run failed", "job", name, "error", err)
	}

	if jobErr != nil {
		s.log.Error("scheduled job failed", "job", name, "duration", elapsed, "error", jobErr)
		return jobErr
	}
	metrics.SchedulerJobLastSuccess.WithLabelValues(name).SetToCurrentTime()
	s.log.Info("scheduled job finished", "job", name, "rows", rows, "duration", elapsed)
	return nil
}

// enqueueDue runs the due-product pass, then refreshes the backlog
// gauges autoscaling keys off.
func (s *Scheduler) enqueueDue(ctx context.Context) (int, error) {
	n, err := s.engine.EnqueueDue(ctx)
	if err != nil {
		return n, err
	}
	s.syncQueueGauges(ctx)
	return n, nil
}

// recoverLeases returns expired-lease tasks to pending and marks
// long-abandoned job_runs rows, so a crashed worker or scheduler never
// strands work.
func (s *Scheduler) recoverLeases(ctx context.Context) (int, error) {
	recovered, exhausted, err := s.store.RecoverExpiredLeases(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		metrics.TasksRecoveredTotal.Add(float64(recovered))
		s.log.Warn("expired leases requeued", "tasks", recovered)
	}
	if exhausted > 0 {
		s.log.Warn("expired leases out of attempts, moved to triage", "tasks", exhausted)
	}

	stale, err := s.store.RecoverStaleJobRuns(ctx, staleJobRunAge)
	if err != nil {
		return recovered + exhausted, err
	}
	if stale > 0 {
		s.log.Warn("stale job runs marked abandoned", "runs", stale)
	}
	return recovered + exhausted + stale, nil
}

func (s *Scheduler) syncQueueGauges(ctx context.Context) {
	stats, err := s.store.QueueStats(ctx)
	if err != nil {
		s.log.Error("reading queue stats failed", "error", err)
		return
	}

	byClass := make(map[domain.Priority]domain.QueueStats, len(stats))
	for _, st := range stats {
		byClass[st.Priority] = st
	}
	// Absent classes are zeroed so an emptied queue does not keep
	// reporting its last backlog.
	for _, p := range []domain.Priority{
		domain.PriorityHigh, domain.PriorityDefault, domain.PriorityLow, domain.PriorityMaintenance,
	} {
		st := byClass[p]
		metrics.QueueDepth.WithLabelValues(string(p)).Set(float64(st.Pending))
		var age float64
		if st.OldestPendingAge != nil {
			age = *st.OldestPendingAge
		}
		metrics.QueueOldestPendingAge.WithLabelValues(string(p)).Set(age)
	}
}

func defaultHolder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "scheduler"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
