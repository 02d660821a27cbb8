// Package queue runs the worker pool that drains the task queue. Slots
// claim tasks under a lease, execute registered bodies within per-class
// time limits, and acknowledge only after the outcome is settled, so a
// crashed worker costs redelivery time but never loses a task.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"pricewatch/internal/metrics"
	domain "pricewatch/pkg/types"
)

const (
	defaultScrapeSlots      = 8
	defaultMaintenanceSlots = 2
	defaultPollInterval     = 2 * time.Second
	defaultLeaseGrace       = time.Minute

	// settleTimeout bounds the store calls that resolve a finished task.
	settleTimeout = 15 * time.Second
)

// TaskFunc executes one claimed task. The context carries the soft time
// limit; bodies must return promptly once it is cancelled. Bodies are
// re-run after crashes and lease expiry, so their effects must tolerate
// repetition.
type TaskFunc func(ctx context.Context, task *domain.Task) error

// Store is the queue's slice of the persistence contract.
type Store interface {
	DequeueTasks(ctx context.Context, priority domain.Priority, workerID string, limit int, lease time.Duration) ([]domain.Task, error)
	CompleteTask(ctx context.Context, id string) error
	RetryTask(ctx context.Context, id string, notBefore time.Time, lastError string) error
	FailTask(ctx context.Context, id string, final domain.FailureStatus, lastError string) error
}

// Policy bounds one task class.
type Policy struct {
	MaxAttempts  int
	SoftLimit    time.Duration
	HardLimit    time.Duration
	RetryBase    time.Duration
	RetryCeiling time.Duration
}

// Weights sets the per-cycle turn quota for each scrape class.
type Weights struct {
	High    int
	Default int
	Low     int
}

func (w Weights) of(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return w.High
	case domain.PriorityDefault:
		return w.Default
	case domain.PriorityLow:
		return w.Low
	}
	return 1
}

// Config sizes the pool and carries the per-class policies.
type Config struct {
	ScrapeSlots      int
	MaintenanceSlots int
	PollInterval     time.Duration
	LeaseGrace       time.Duration
	Weights          Weights
	Scrape           Policy
	Maintenance      Policy
}

// PolicyFor returns the policy governing the given priority class.
func (c Config) PolicyFor(p domain.Priority) Policy {
	if p == domain.PriorityMaintenance {
		return c.Maintenance
	}
	return c.Scrape
}

func (c *Config) normalize() {
	if c.ScrapeSlots <= 0 {
		c.ScrapeSlots = defaultScrapeSlots
	}
	if c.MaintenanceSlots <= 0 {
		c.MaintenanceSlots = defaultMaintenanceSlots
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseGrace <= 0 {
		c.LeaseGrace = defaultLeaseGrace
	}
	if c.Weights.High <= 0 {
		c.Weights.High = 4
	}
	if c.Weights.Default <= 0 {
		c.Weights.Default = 2
	}
	if c.Weights.Low <= 0 {
		c.Weights.Low = 1
	}
	c.Scrape.normalize(Policy{
		MaxAttempts:  3,
		SoftLimit:    5 * time.Minute,
		HardLimit:    10 * time.Minute,
		RetryBase:    30 * time.Second,
		RetryCeiling: 10 * time.Minute,
	})
	c.Maintenance.normalize(Policy{
		MaxAttempts:  5,
		SoftLimit:    25 * time.Minute,
		HardLimit:    30 * time.Minute,
		RetryBase:    time.Minute,
		RetryCeiling: 30 * time.Minute,
	})
}

func (p *Policy) normalize(def Policy) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.SoftLimit <= 0 {
		p.SoftLimit = def.SoftLimit
	}
	if p.HardLimit <= 0 {
		p.HardLimit = def.HardLimit
	}
	if p.HardLimit < p.SoftLimit {
		p.HardLimit = p.SoftLimit
	}
	if p.RetryBase <= 0 {
		p.RetryBase = def.RetryBase
	}
	if p.RetryCeiling <= 0 {
		p.RetryCeiling = def.RetryCeiling
	}
}

// Pool owns the worker slots. Scrape slots share the three scrape classes
// through a weighted round-robin picker; maintenance slots poll only the
// maintenance class, so a slow sweep never occupies a scrape slot.
type Pool struct {
	store  Store
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
	worker string

	bodies map[domain.TaskKind]TaskFunc
	wg     sync.WaitGroup
}

// Option configures the Pool.
type Option func(*Pool)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.log = l
	}
}

// WithNowFunc overrides the clock used for retry scheduling.
func WithNowFunc(f func() time.Time) Option {
	return func(p *Pool) {
		p.now = f
	}
}

// WithWorkerID overrides the generated worker identity.
func WithWorkerID(id string) Option {
	return func(p *Pool) {
		p.worker = id
	}
}

// NewPool creates a Pool around the given store. Zero config fields fall
// back to production defaults.
func NewPool(s Store, cfg Config, opts ...Option) *Pool {
	cfg.normalize()
	p := &Pool{
		store:  s,
		cfg:    cfg,
		log:    slog.Default(),
		now:    time.Now,
		worker: defaultWorkerID(),
		bodies: make(map[domain.TaskKind]TaskFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Register binds a task kind to its body. All registrations must happen
// before Start.
func (p *Pool) Register(kind domain.TaskKind, fn TaskFunc) {
	p.bodies[kind] = fn
}

// Start launches the worker slots. It returns immediately; cancel ctx to
// begin shutdown, then call Stop to wait for in-flight tasks.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.ScrapeSlots; i++ {
		id := fmt.Sprintf("%s-scrape-%d", p.worker, i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.scrapeSlot(ctx, id)
		}()
	}
	for i := 0; i < p.cfg.MaintenanceSlots; i++ {
		id := fmt.Sprintf("%s-maint-%d", p.worker, i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.maintenanceSlot(ctx, id)
		}()
	}
	p.log.Info("worker pool started",
		"scrape_slots", p.cfg.ScrapeSlots,
		"maintenance_slots", p.cfg.MaintenanceSlots,
		"worker", p.worker,
	)
}

// Stop blocks until every slot has settled its in-flight task.
func (p *Pool) Stop() {
	p.wg.Wait()
	p.log.Info("worker pool stopped", "worker", p.worker)
}

// scrapeSlot drains the three scrape classes in weighted round-robin
// order. Each slot owns its own picker; fairness holds per slot, so it
// holds for the pool.
func (p *Pool) scrapeSlot(ctx context.Context, workerID string) {
	pick := newPicker(p.cfg.Weights)
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := p.claimScrape(ctx, workerID, pick)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("claiming task failed", "worker", workerID, "error", err)
			p.sleep(ctx)
			continue
		}
		if task == nil {
			p.sleep(ctx)
			continue
		}
		p.runTask(ctx, workerID, task)
	}
}

// maintenanceSlot drains only the maintenance class.
func (p *Pool) maintenanceSlot(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := p.claimOne(ctx, domain.PriorityMaintenance, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("claiming task failed", "worker", workerID, "error", err)
			p.sleep(ctx)
			continue
		}
		if task == nil {
			p.sleep(ctx)
			continue
		}
		p.runTask(ctx, workerID, task)
	}
}

// claimScrape tries classes in picker order until one yields a task or
// every class has come up empty. Turns burned on an empty class are
// forfeited, which is what lets a loaded class absorb an idle one's share.
func (p *Pool) claimScrape(ctx context.Context, workerID string, pick *picker) (*domain.Task, error) {
	empty := make(map[domain.Priority]bool, 3)
	for len(empty) < len(pick.classes) {
		class := pick.next()
		if empty[class] {
			continue
		}
		task, err := p.claimOne(ctx, class, workerID)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
		empty[class] = true
	}
	return nil, nil
}

func (p *Pool) claimOne(ctx context.Context, class domain.Priority, workerID string) (*domain.Task, error) {
	pol := p.cfg.PolicyFor(class)
	lease := pol.HardLimit + p.cfg.LeaseGrace
	tasks, err := p.store.DequeueTasks(ctx, class, workerID, 1, lease)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	metrics.TasksDequeuedTotal.WithLabelValues(string(class)).Inc()
	return &tasks[0], nil
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.PollInterval):
	}
}

// runTask executes one claimed task under the class time limits. The body
// gets a context that expires at the soft limit; if it still has not
// returned by the hard limit the slot abandons it and settles the claim
// as a timeout while this process is alive to do so.
func (p *Pool) runTask(ctx context.Context, workerID string, task *domain.Task) {
	pol := p.cfg.PolicyFor(task.Priority)
	start := time.Now()

	softCtx, cancel := context.WithTimeout(ctx, pol.SoftLimit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.execute(softCtx, task)
	}()

	hard := time.NewTimer(pol.HardLimit)
	defer hard.Stop()

	var err error
	select {
	case err = <-done:
	case <-hard.C:
		err = errHardLimit
		p.log.Error("task exceeded hard time limit",
			"task", task.ID, "kind", task.Kind, "worker", workerID,
		)
	}

	metrics.TaskDuration.WithLabelValues(string(task.Priority)).Observe(time.Since(start).Seconds())
	p.settle(ctx, workerID, task, pol, err)
}

// execute runs the registered body, converting panics into plain errors so
// one bad page cannot take a slot down.
func (p *Pool) execute(ctx context.Context, task *domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task body panicked: %v", r)
		}
	}()
	body, ok := p.bodies[task.Kind]
	if !ok {
		return Permanent(fmt.Errorf("no body registered for task kind %q", task.Kind))
	}
	return body(ctx, task)
}

// settle routes a finished task: delete on success, back to pending with a
// delay on transient failure, into the triage table when attempts run out
// or the failure is permanent. Store calls run on a detached context so a
// shutdown in progress cannot strand the resolution.
func (p *Pool) settle(ctx context.Context, workerID string, task *domain.Task, pol Policy, err error) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	class := string(task.Priority)
	switch {
	case err == nil:
		if ackErr := p.store.CompleteTask(ackCtx, task.ID); ackErr != nil {
			// The lease still covers the task; redelivery will re-run an
			// idempotent body.
			p.log.Error("completing task failed", "task", task.ID, "error", ackErr)
			return
		}
		metrics.TasksCompletedTotal.WithLabelValues(class, "ok").Inc()

	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		// Shutdown, not a task failure. Hand the task back untouched.
		if ackErr := p.store.RetryTask(ackCtx, task.ID, p.now(), "worker shutting down"); ackErr != nil {
			p.log.Error("requeueing task failed", "task", task.ID, "error", ackErr)
			return
		}
		metrics.TasksCompletedTotal.WithLabelValues(class, "requeued").Inc()

	case IsPermanent(err):
		p.fail(ackCtx, task, domain.FailurePermanent, err)

	case errors.Is(err, errHardLimit) || errors.Is(err, context.DeadlineExceeded):
		if task.Attempt >= task.MaxAttempts {
			p.fail(ackCtx, task, domain.FailureTimedOut, err)
			return
		}
		p.retry(ackCtx, workerID, task, backoff(pol.RetryBase, pol.RetryCeiling, task.Attempt), err)

	default:
		if task.Attempt >= task.MaxAttempts {
			p.fail(ackCtx, task, domain.FailureFailed, err)
			return
		}
		delay, ok := RetryDelay(err)
		if !ok {
			delay = backoff(pol.RetryBase, pol.RetryCeiling, task.Attempt)
		}
		p.retry(ackCtx, workerID, task, delay, err)
	}
}

func (p *Pool) retry(ctx context.Context, workerID string, task *domain.Task, delay time.Duration, cause error) {
	notBefore := p.now().Add(delay)
	if err := p.store.RetryTask(ctx, task.ID, notBefore, cause.Error()); err != nil {
		p.log.Error("retrying task failed", "task", task.ID, "error", err)
		return
	}
	metrics.TasksCompletedTotal.WithLabelValues(string(task.Priority), "retried").Inc()
	p.log.Warn("task will retry",
		"task", task.ID, "kind", task.Kind, "worker", workerID,
		"attempt", task.Attempt, "max_attempts", task.MaxAttempts,
		"delay", delay, "error", cause,
	)
}

func (p *Pool) fail(ctx context.Context, task *domain.Task, final domain.FailureStatus, cause error) {
	if err := p.store.FailTask(ctx, task.ID, final, cause.Error()); err != nil {
		p.log.Error("recording task failure failed", "task", task.ID, "error", err)
		return
	}
	metrics.TasksCompletedTotal.WithLabelValues(string(task.Priority), string(final)).Inc()
	p.log.Error("task moved to triage",
		"task", task.ID, "kind", task.Kind, "final_status", final,
		"attempt", task.Attempt, "error", cause,
	)
}

// backoff doubles base per consumed attempt, capped at ceiling.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
