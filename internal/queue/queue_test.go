package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ptestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/metrics"
	"pricewatch/pkg/logger"
	domain "pricewatch/pkg/types"
)

var fixedNow = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

type retryCall struct {
	id        string
	notBefore time.Time
	lastError string
}

type failCall struct {
	id        string
	final     domain.FailureStatus
	lastError string
}

type fakeQueueStore struct {
	mu        sync.Mutex
	pending   map[domain.Priority][]domain.Task
	dequeued  []domain.Priority
	completed []string
	retries   []retryCall
	failures  []failCall
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{pending: make(map[domain.Priority][]domain.Task)}
}

func (f *fakeQueueStore) add(t domain.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[t.Priority] = append(f.pending[t.Priority], t)
}

func (f *fakeQueueStore) DequeueTasks(
	_ context.Context,
	priority domain.Priority,
	workerID string,
	_ int,
	lease time.Duration,
) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dequeued = append(f.dequeued, priority)
	q := f.pending[priority]
	if len(q) == 0 {
		return nil, nil
	}
	t := q[0]
	f.pending[priority] = q[1:]
	t.Attempt++
	t.Status = domain.TaskRunning
	t.WorkerID = workerID
	exp := time.Now().Add(lease)
	t.LeaseExpiresAt = &exp
	return []domain.Task{t}, nil
}

func (f *fakeQueueStore) CompleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeQueueStore) RetryTask(_ context.Context, id string, notBefore time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, retryCall{id: id, notBefore: notBefore, lastError: lastError})
	return nil
}

func (f *fakeQueueStore) FailTask(_ context.Context, id string, final domain.FailureStatus, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failCall{id: id, final: final, lastError: lastError})
	return nil
}

func (f *fakeQueueStore) completedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.completed...)
}

func newTestPool(s *fakeQueueStore, cfg Config) *Pool {
	return NewPool(s, cfg,
		WithLogger(logger.Discard()),
		WithNowFunc(func() time.Time { return fixedNow }),
		WithWorkerID("w"),
	)
}

func testTask(id string, class domain.Priority, attempt, maxAttempts int) *domain.Task {
	return &domain.Task{
		ID:          id,
		ProductID:   "p1",
		Kind:        domain.TaskScrape,
		Priority:    class,
		Status:      domain.TaskRunning,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
}

func TestClaimScrape_SkipsEmptyClasses(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	fs.add(domain.Task{ID: "t-low", Priority: domain.PriorityLow, Kind: domain.TaskScrape, MaxAttempts: 3})
	p := newTestPool(fs, Config{})

	task, err := p.claimScrape(context.Background(), "w-0", newPicker(p.cfg.Weights))
	require.NoError(t, err)
	require.NotNil(t, task)

	assert.Equal(t, "t-low", task.ID)
	assert.Equal(t, 1, task.Attempt)
	// Each empty class is probed once, then skipped for the rest of the claim.
	assert.Equal(t,
		[]domain.Priority{domain.PriorityHigh, domain.PriorityDefault, domain.PriorityLow},
		fs.dequeued,
	)
}

func TestClaimScrape_AllEmptyReturnsNil(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	task, err := p.claimScrape(context.Background(), "w-0", newPicker(p.cfg.Weights))
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.Len(t, fs.dequeued, 3)
}

func TestClaimScrape_WeightedShareAcrossClaims(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	for i := 0; i < 8; i++ {
		fs.add(domain.Task{ID: "h", Priority: domain.PriorityHigh, Kind: domain.TaskScrape, MaxAttempts: 3})
		fs.add(domain.Task{ID: "d", Priority: domain.PriorityDefault, Kind: domain.TaskScrape, MaxAttempts: 3})
		fs.add(domain.Task{ID: "l", Priority: domain.PriorityLow, Kind: domain.TaskScrape, MaxAttempts: 3})
	}
	p := newTestPool(fs, Config{Weights: Weights{High: 4, Default: 2, Low: 1}})
	pick := newPicker(p.cfg.Weights)

	var got []domain.Priority
	for i := 0; i < 7; i++ {
		task, err := p.claimScrape(context.Background(), "w-0", pick)
		require.NoError(t, err)
		require.NotNil(t, task)
		got = append(got, task.Priority)
	}

	// With every class backlogged, claims follow the configured 4/2/1 split.
	assert.Equal(t, []domain.Priority{
		domain.PriorityHigh, domain.PriorityHigh, domain.PriorityHigh, domain.PriorityHigh,
		domain.PriorityDefault, domain.PriorityDefault,
		domain.PriorityLow,
	}, got)
}

func TestSettle_SuccessCompletesTask(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	p.settle(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 1, 3), p.cfg.Scrape, nil)

	assert.Equal(t, []string{"t1"}, fs.completed)
	assert.Empty(t, fs.retries)
	assert.Empty(t, fs.failures)
}

func TestSettle_TransientFailureRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	p.settle(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 1, 3), p.cfg.Scrape,
		errors.New("connection reset"))

	require.Len(t, fs.retries, 1)
	assert.Equal(t, "t1", fs.retries[0].id)
	assert.Equal(t, fixedNow.Add(30*time.Second), fs.retries[0].notBefore)
	assert.Equal(t, "connection reset", fs.retries[0].lastError)
	assert.Empty(t, fs.failures)
}

func TestSettle_SecondAttemptDoublesBackoff(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	p.settle(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 2, 3), p.cfg.Scrape,
		errors.New("connection reset"))

	require.Len(t, fs.retries, 1)
	assert.Equal(t, fixedNow.Add(time.Minute), fs.retries[0].notBefore)
}

func TestSettle_ExplicitDelayOverridesBackoff(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	p.settle(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 1, 3), p.cfg.Scrape,
		RetryIn(errors.New("limiter backing off"), 42*time.Second))

	require.Len(t, fs.retries, 1)
	assert.Equal(t, fixedNow.Add(42*time.Second), fs.retries[0].notBefore)
}

func TestSettle_TransientFailureAtCapGoesToTriage(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	p.settle(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 3, 3), p.cfg.Scrape,
		errors.New("connection reset"))

	require.Len(t, fs.failures, 1)
	assert.Equal(t, domain.FailureFailed, fs.failures[0].final)
	assert.Equal(t, "connection reset", fs.failures[0].lastError)
	assert.Empty(t, fs.retries)
}

func TestSettle_PermanentFailureSkipsRemainingAttempts(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	p.settle(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 1, 3), p.cfg.Scrape,
		Permanent(errors.New("product page gone")))

	require.Len(t, fs.failures, 1)
	assert.Equal(t, domain.FailurePermanent, fs.failures[0].final)
	assert.Empty(t, fs.retries)
}

func TestSettle_TimeoutRetriesThenTimesOut(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	p.settle(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 1, 3), p.cfg.Scrape,
		context.DeadlineExceeded)
	require.Len(t, fs.retries, 1)

	p.settle(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 3, 3), p.cfg.Scrape,
		errHardLimit)
	require.Len(t, fs.failures, 1)
	assert.Equal(t, domain.FailureTimedOut, fs.failures[0].final)
}

func TestSettle_ShutdownRequeuesImmediately(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Even a task on its last attempt goes back to pending; a shutdown is
	// not a failure of the task.
	p.settle(ctx, "w-0", testTask("t1", domain.PriorityDefault, 3, 3), p.cfg.Scrape,
		context.Canceled)

	require.Len(t, fs.retries, 1)
	assert.Equal(t, fixedNow, fs.retries[0].notBefore)
	assert.Equal(t, "worker shutting down", fs.retries[0].lastError)
	assert.Empty(t, fs.failures)
}

func TestRunTask_HardLimitAbandonsBody(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	cfg := Config{Scrape: Policy{
		MaxAttempts:  3,
		SoftLimit:    10 * time.Millisecond,
		HardLimit:    30 * time.Millisecond,
		RetryBase:    time.Second,
		RetryCeiling: time.Minute,
	}}
	p := newTestPool(fs, cfg)
	p.Register(domain.TaskScrape, func(_ context.Context, _ *domain.Task) error {
		time.Sleep(500 * time.Millisecond) // ignores cancellation
		return nil
	})

	start := time.Now()
	p.runTask(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 3, 3))

	assert.Less(t, time.Since(start), 400*time.Millisecond, "slot must not wait for the body")
	require.Len(t, fs.failures, 1)
	assert.Equal(t, domain.FailureTimedOut, fs.failures[0].final)
}

func TestRunTask_SoftLimitCancelsBody(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	cfg := Config{Scrape: Policy{
		MaxAttempts:  3,
		SoftLimit:    10 * time.Millisecond,
		HardLimit:    5 * time.Second,
		RetryBase:    time.Second,
		RetryCeiling: time.Minute,
	}}
	p := newTestPool(fs, cfg)
	p.Register(domain.TaskScrape, func(ctx context.Context, _ *domain.Task) error {
		<-ctx.Done()
		return ctx.Err()
	})

	p.runTask(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 1, 3))

	require.Len(t, fs.retries, 1, "cooperative timeout below the cap retries")
	assert.Empty(t, fs.failures)
}

func TestRunTask_PanicIsRetried(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})
	p.Register(domain.TaskScrape, func(_ context.Context, _ *domain.Task) error {
		panic("nil dereference in body")
	})

	p.runTask(context.Background(), "w-0", testTask("t1", domain.PriorityDefault, 1, 3))

	require.Len(t, fs.retries, 1)
	assert.Contains(t, fs.retries[0].lastError, "panicked")
}

func TestRunTask_UnregisteredKindGoesToTriage(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	p := newTestPool(fs, Config{})

	before := ptestutil.ToFloat64(metrics.TasksCompletedTotal.WithLabelValues("low", "permanent"))
	p.runTask(context.Background(), "w-0", testTask("t1", domain.PriorityLow, 1, 3))

	require.Len(t, fs.failures, 1)
	assert.Equal(t, domain.FailurePermanent, fs.failures[0].final)
	assert.Contains(t, fs.failures[0].lastError, "no body registered")
	after := ptestutil.ToFloat64(metrics.TasksCompletedTotal.WithLabelValues("low", "permanent"))
	assert.Equal(t, before+1, after)
}

func TestPool_DrainsAllClasses(t *testing.T) {
	t.Parallel()

	fs := newFakeQueueStore()
	fs.add(domain.Task{ID: "t-high", Priority: domain.PriorityHigh, Kind: domain.TaskScrape, MaxAttempts: 3})
	fs.add(domain.Task{ID: "t-default", Priority: domain.PriorityDefault, Kind: domain.TaskScrape, MaxAttempts: 3})
	fs.add(domain.Task{ID: "t-maint", Priority: domain.PriorityMaintenance, Kind: domain.TaskRetentionSweep, MaxAttempts: 5})

	cfg := Config{ScrapeSlots: 1, MaintenanceSlots: 1, PollInterval: 5 * time.Millisecond}
	p := newTestPool(fs, cfg)
	p.Register(domain.TaskScrape, func(_ context.Context, _ *domain.Task) error { return nil })
	p.Register(domain.TaskRetentionSweep, func(_ context.Context, _ *domain.Task) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.Eventually(t, func() bool {
		return len(fs.completedIDs()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	p.Stop()

	assert.ElementsMatch(t, []string{"t-high", "t-default", "t-maint"}, fs.completedIDs())
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    time.Duration
		ceiling time.Duration
		attempt int
		want    time.Duration
	}{
		{"first attempt uses base", 30 * time.Second, 10 * time.Minute, 1, 30 * time.Second},
		{"doubles per attempt", 30 * time.Second, 10 * time.Minute, 3, 2 * time.Minute},
		{"capped at ceiling", 30 * time.Second, 10 * time.Minute, 10, 10 * time.Minute},
		{"base above ceiling clamps", 2 * time.Minute, 90 * time.Second, 1, 90 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, backoff(tt.base, tt.ceiling, tt.attempt))
		})
	}
}
