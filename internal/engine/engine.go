// Package engine wires the pipeline together: scrape task bodies that
// fetch under per-retailer rate limits and ingest observations, the
// evaluation step that turns observations into deduplicated alert
// events, and the periodic jobs (enqueue, scoring, retention) the
// scheduler drives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/metrics"
	"pricewatch/internal/queue"
	"pricewatch/internal/ratelimit"
	"pricewatch/internal/scraper"
	"pricewatch/internal/store"
	score "pricewatch/pkg/scorer"
	domain "pricewatch/pkg/types"
)

const (
	defaultStaleThreshold      = 5
	defaultMaxParseRetries     = 2
	defaultTightThresholdPct   = 5.0
	defaultEnqueueBatch        = 1000
	defaultScrapeAttempts      = 3
	defaultMaintenanceAttempts = 5
	defaultScoringWindow       = 90 * 24 * time.Hour
)

// Store is the slice of the datastore the engine needs.
type Store interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetRetailer(ctx context.Context, id string) (*domain.Retailer, error)
	SetProductEnabled(ctx context.Context, id string, enabled bool) error
	RecordScrapeSuccess(ctx context.Context, id string, at time.Time) error
	RecordScrapeFailure(ctx context.Context, id string, at time.Time, staleThreshold int) (int, error)

	AppendPricePoint(ctx context.Context, pt *domain.PricePoint) error
	PriorPricePoint(ctx context.Context, productID string, before time.Time) (*domain.PricePoint, error)
	PriorLowestPrice(ctx context.Context, productID string, before time.Time) (decimal.Decimal, error)

	ListAlertRules(ctx context.Context, productID, userID string, enabledOnly bool) ([]domain.AlertRule, error)
	InsertAlertEvent(ctx context.Context, e *domain.AlertEvent) error

	ListDueProducts(ctx context.Context, now time.Time, limit int) ([]domain.Product, error)
	EnqueueTask(ctx context.Context, t *domain.Task) error
	ListScoringInputs(ctx context.Context, window time.Duration) ([]store.ScoringInput, error)
	UpdatePriorityScore(ctx context.Context, id string, score int) error

	DeletePricePointsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteTaskFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteJobRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteNotificationAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Limiter is the per-retailer politeness contract.
type Limiter interface {
	Register(retailerID string, lim ratelimit.Limits)
	Acquire(ctx context.Context, retailerID string) error
	OnSuccess(retailerID string)
	OnFailure(retailerID string, attempt int) time.Duration
	OnBlocked(retailerID string, attempt int) time.Duration
}

// Notifier pushes freshly created events into the immediate delivery
// path. Digest kinds are left for the scheduler's digest job.
type Notifier interface {
	DispatchImmediate(ctx context.Context, events []domain.AlertEvent) int
}

// Retention bundles per-table horizons for the maintenance sweep.
// A zero duration keeps that table forever.
type Retention struct {
	PricePoints  time.Duration
	TaskFailures time.Duration
	JobRuns      time.Duration
	Attempts     time.Duration
}

// Engine hosts the task bodies and periodic jobs of the pipeline.
type Engine struct {
	store    Store
	fetcher  scraper.Fetcher
	limiter  Limiter
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time

	staleThreshold      int
	maxParseRetries     int
	tightThresholdPct   float64
	enqueueBatch        int
	scrapeAttempts      int
	maintenanceAttempts int
	retention           Retention
	scoreWeights        score.Weights
	scoringWindow       time.Duration
}

// NewEngine creates a new Engine with injected dependencies.
func NewEngine(
	s Store,
	f scraper.Fetcher,
	l Limiter,
	n Notifier,
	opts ...EngineOption,
) *Engine {
	eng := &Engine{
		store:               s,
		fetcher:             f,
		limiter:             l,
		notifier:            n,
		log:                 slog.Default(),
		now:                 time.Now,
		staleThreshold:      defaultStaleThreshold,
		maxParseRetries:     defaultMaxParseRetries,
		tightThresholdPct:   defaultTightThresholdPct,
		enqueueBatch:        defaultEnqueueBatch,
		scrapeAttempts:      defaultScrapeAttempts,
		maintenanceAttempts: defaultMaintenanceAttempts,
		scoreWeights:        score.DefaultWeights(),
		scoringWindow:       defaultScoringWindow,
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithNowFunc overrides the clock for testing.
func WithNowFunc(f func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = f
	}
}

// WithStaleThreshold sets how many consecutive scrape failures flag a
// product stale.
func WithStaleThreshold(n int) EngineOption {
	return func(e *Engine) {
		e.staleThreshold = n
	}
}

// WithMaxParseRetries bounds how often a parse failure is retried before
// the task is escalated for manual review.
func WithMaxParseRetries(n int) EngineOption {
	return func(e *Engine) {
		e.maxParseRetries = n
	}
}

// WithTightThresholdPct sets how close (in percent of current price) a
// target threshold must be to promote the product's scrapes to high
// priority. Zero disables the promotion.
func WithTightThresholdPct(pct float64) EngineOption {
	return func(e *Engine) {
		e.tightThresholdPct = pct
	}
}

// WithEnqueueBatch caps how many due products one enqueue pass picks up.
func WithEnqueueBatch(n int) EngineOption {
	return func(e *Engine) {
		e.enqueueBatch = n
	}
}

// WithTaskAttempts sets the attempt caps stamped onto enqueued tasks.
func WithTaskAttempts(scrape, maintenance int) EngineOption {
	return func(e *Engine) {
		e.scrapeAttempts = scrape
		e.maintenanceAttempts = maintenance
	}
}

// WithRetention sets the per-table retention horizons.
func WithRetention(r Retention) EngineOption {
	return func(e *Engine) {
		e.retention = r
	}
}

// WithScoreWeights overrides the priority scoring weights.
func WithScoreWeights(w score.Weights) EngineOption {
	return func(e *Engine) {
		e.scoreWeights = w
	}
}

// WithScoringWindow sets the trailing window volatility is computed over.
func WithScoringWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.scoringWindow = d
	}
}

// RunScrape is the task body for scrape tasks: load the product, fetch
// its page under the retailer's rate limit, and ingest the observation.
// Error returns route the task through the queue's retry machinery;
// the wrappers from the queue package mark terminal and delayed cases.
func (eng *Engine) RunScrape(ctx context.Context, task *domain.Task) error {
	product, err := eng.store.GetProduct(ctx, task.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Permanent(fmt.Errorf("product %s no longer exists", task.ProductID))
	}
	if err != nil {
		return fmt.Errorf("loading product %s: %w", task.ProductID, err)
	}
	if !product.Enabled {
		eng.log.Debug("skipping disabled product", "product", product.ID)
		return nil
	}

	retailer, err := eng.store.GetRetailer(ctx, product.RetailerID)
	if err != nil {
		return fmt.Errorf("loading retailer %s: %w", product.RetailerID, err)
	}

	eng.limiter.Register(retailer.ID, ratelimit.Limits{
		PerMinute: retailer.RequestsPerMinute,
		Burst:     retailer.Burst,
	})
	if err := eng.limiter.Acquire(ctx, retailer.ID); err != nil {
		return fmt.Errorf("acquiring rate limit for %s: %w", retailer.ID, err)
	}

	obs, err := eng.fetcher.Fetch(ctx, product)
	if err != nil {
		return eng.scrapeFailed(ctx, product, retailer, task, err)
	}

	eng.limiter.OnSuccess(retailer.ID)
	return eng.ingest(ctx, product, obs)
}

// scrapeFailed records the failure on the product, then routes the error
// by kind: delisted pages terminate the task, bot blocks and network
// trouble come back with a limiter-derived delay, and unreadable pages
// retry a bounded number of times before escalating for manual review.
func (eng *Engine) scrapeFailed(
	ctx context.Context,
	product *domain.Product,
	retailer *domain.Retailer,
	task *domain.Task,
	cause error,
) error {
	streak, err := eng.store.RecordScrapeFailure(ctx, product.ID, eng.now().UTC(), eng.staleThreshold)
	if err != nil {
		eng.log.Error("recording scrape failure failed", "product", product.ID, "error", err)
	} else if streak >= eng.staleThreshold && !product.Stale {
		metrics.ProductsStaleGauge.Inc()
		eng.log.Warn("product flagged stale",
			"product", product.ID, "streak", streak, "error", cause)
	}

	var (
		notFound *scraper.NotFoundError
		blocked  *scraper.BlockedError
		parse    *scraper.ParseError
	)
	switch {
	case errors.As(cause, &notFound):
		if err := eng.store.SetProductEnabled(ctx, product.ID, false); err != nil {
			eng.log.Error("disabling delisted product failed", "product", product.ID, "error", err)
		}
		eng.log.Warn("product page gone, tracking disabled",
			"product", product.ID, "url", product.SourceURL)
		return queue.Permanent(cause)

	case errors.As(cause, &blocked):
		delay := eng.limiter.OnBlocked(retailer.ID, task.Attempt)
		return queue.RetryIn(cause, delay)

	case errors.As(cause, &parse):
		// Not a politeness signal, so the limiter streak is left alone.
		if task.Attempt > eng.maxParseRetries {
			return queue.Permanent(fmt.Errorf("page unreadable after %d attempts: %w", task.Attempt, cause))
		}
		return cause

	default:
		delay := eng.limiter.OnFailure(retailer.ID, task.Attempt)
		return queue.RetryIn(cause, delay)
	}
}

// ingest persists the observation and evaluates alert rules against it.
// A duplicate observation still evaluates: redelivery can lose a crash's
// events between append and insert, and the dedup key absorbs whatever
// already landed.
func (eng *Engine) ingest(ctx context.Context, product *domain.Product, obs *domain.RawObservation) error {
	point := &domain.PricePoint{
		ProductID:  product.ID,
		Price:      obs.Price,
		Currency:   obs.Currency,
		Available:  obs.Available,
		ObservedAt: obs.ObservedAt,
	}

	prev, err := eng.store.PriorPricePoint(ctx, product.ID, point.ObservedAt)
	if errors.Is(err, store.ErrNotFound) {
		prev = nil
	} else if err != nil {
		return fmt.Errorf("loading prior point for %s: %w", product.ID, err)
	}

	var priorLowest *decimal.Decimal
	lowest, err := eng.store.PriorLowestPrice(ctx, product.ID, point.ObservedAt)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading prior lowest for %s: %w", product.ID, err)
	default:
		priorLowest = &lowest
	}

	switch err := eng.store.AppendPricePoint(ctx, point); {
	case errors.Is(err, store.ErrDuplicatePoint):
		metrics.PointsDuplicateTotal.Inc()
		eng.log.Debug("duplicate observation",
			"product", product.ID, "observed_at", point.ObservedAt)
	case err != nil:
		return fmt.Errorf("appending price point for %s: %w", product.ID, err)
	default:
		metrics.PointsIngestedTotal.Inc()
	}

	if err := eng.store.RecordScrapeSuccess(ctx, product.ID, point.ObservedAt); err != nil {
		eng.log.Error("recording scrape success failed", "product", product.ID, "error", err)
	} else if product.Stale {
		metrics.ProductsStaleGauge.Dec()
		eng.log.Info("product recovered from stale", "product", product.ID)
	}

	title := product.Title
	if title == "" {
		title = obs.Title
	}
	return eng.evaluate(ctx, product.ID, prev, point, priorLowest, title)
}

func (eng *Engine) evaluate(
	ctx context.Context,
	productID string,
	prev *domain.PricePoint,
	curr *domain.PricePoint,
	priorLowest *decimal.Decimal,
	title string,
) error {
	rules, err := eng.store.ListAlertRules(ctx, productID, "", true)
	if err != nil {
		return fmt.Errorf("listing alert rules for %s: %w", productID, err)
	}
	if len(rules) == 0 {
		return nil
	}
	metrics.AlertsEvaluatedTotal.Add(float64(len(rules)))

	var created []domain.AlertEvent
	for _, c := range Evaluate(prev, *curr, priorLowest, title, rules) {
		ev := &domain.AlertEvent{
			RuleID:     c.Rule.ID,
			UserID:     c.Rule.UserID,
			ProductID:  productID,
			ObservedAt: curr.ObservedAt,
			Kind:       c.Rule.Kind,
			Price:      curr.Price,
			Message:    c.Message,
		}
		if prev != nil {
			ev.PreviousPrice = &prev.Price
		}

		switch err := eng.store.InsertAlertEvent(ctx, ev); {
		case errors.Is(err, store.ErrDuplicateEvent):
			metrics.AlertsDedupedTotal.Inc()
			continue
		case err != nil:
			return fmt.Errorf("inserting alert event for rule %s: %w", c.Rule.ID, err)
		}
		metrics.AlertsFiredTotal.WithLabelValues(string(ev.Kind)).Inc()
		created = append(created, *ev)
	}

	if len(created) > 0 {
		sent := eng.notifier.DispatchImmediate(ctx, created)
		eng.log.Info("alerts fired",
			"product", productID, "events", len(created), "sent_immediately", sent)
	}
	return nil
}

// RunRetentionSweep is the task body for maintenance tasks: trim
// time-series and bookkeeping tables to their configured horizons.
func (eng *Engine) RunRetentionSweep(ctx context.Context, _ *domain.Task) error {
	now := eng.now().UTC()
	sweeps := []struct {
		table string
		keep  time.Duration
		fn    func(context.Context, time.Time) (int64, error)
	}{
		{"price_points", eng.retention.PricePoints, eng.store.DeletePricePointsBefore},
		{"task_failures", eng.retention.TaskFailures, eng.store.DeleteTaskFailuresBefore},
		{"job_runs", eng.retention.JobRuns, eng.store.DeleteJobRunsBefore},
		{"notification_attempts", eng.retention.Attempts, eng.store.DeleteNotificationAttemptsBefore},
	}
	for _, sw := range sweeps {
		if sw.keep <= 0 {
			continue
		}
		n, err := sw.fn(ctx, now.Add(-sw.keep))
		if err != nil {
			return fmt.Errorf("sweeping %s: %w", sw.table, err)
		}
		if n > 0 {
			eng.log.Info("retention sweep removed rows", "table", sw.table, "rows", n)
		}
	}
	return nil
}

// EnqueueDue enqueues a scrape task for every enabled product whose
// cadence has elapsed. Due-ness is computed from the persisted
// last_checked_at, so a restarted scheduler picks up exactly where the
// previous one stopped; the queue's (product, kind) uniqueness makes
// concurrent or repeated passes harmless.
func (eng *Engine) EnqueueDue(ctx context.Context) (int, error) {
	now := eng.now().UTC()
	due, err := eng.store.ListDueProducts(ctx, now, eng.enqueueBatch)
	if err != nil {
		return 0, fmt.Errorf("listing due products: %w", err)
	}

	var enqueued int
	for i := range due {
		p := &due[i]
		class := eng.classFor(ctx, p)
		task := &domain.Task{
			ProductID:   p.ID,
			Kind:        domain.TaskScrape,
			Priority:    class,
			MaxAttempts: eng.scrapeAttempts,
			NotBefore:   now,
		}
		switch err := eng.store.EnqueueTask(ctx, task); {
		case errors.Is(err, store.ErrDuplicateTask):
			continue
		case err != nil:
			return enqueued, fmt.Errorf("enqueuing scrape for %s: %w", p.ID, err)
		}
		metrics.TasksEnqueuedTotal.WithLabelValues(string(class)).Inc()
		enqueued++
	}
	return enqueued, nil
}

// ErrProductDisabled is returned by EnqueueCheck for products that are
// not being scraped.
var ErrProductDisabled = errors.New("product is disabled")

// EnqueueCheck enqueues an immediate high-priority scrape for one
// product, regardless of its cadence. ErrDuplicateTask surfaces to the
// caller so a "check now" request can report an already-pending scrape.
func (eng *Engine) EnqueueCheck(ctx context.Context, productID string) error {
	p, err := eng.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Enabled {
		return ErrProductDisabled
	}

	task := &domain.Task{
		ProductID:   p.ID,
		Kind:        domain.TaskScrape,
		Priority:    domain.PriorityHigh,
		MaxAttempts: eng.scrapeAttempts,
		NotBefore:   eng.now().UTC(),
	}
	if err := eng.store.EnqueueTask(ctx, task); err != nil {
		return err
	}
	metrics.TasksEnqueuedTotal.WithLabelValues(string(domain.PriorityHigh)).Inc()
	return nil
}

// classFor maps the product's priority score to a queue class, then
// promotes to high when an enabled target rule sits within the tight
// band of the current price: a small move will trigger it, so the next
// observation should not wait behind the default backlog.
func (eng *Engine) classFor(ctx context.Context, p *domain.Product) domain.Priority {
	class := domain.PriorityLow
	switch {
	case p.PriorityScore <= 3:
		class = domain.PriorityHigh
	case p.PriorityScore <= 7:
		class = domain.PriorityDefault
	}
	if class == domain.PriorityHigh {
		return class
	}

	tight, err := eng.hasTightThreshold(ctx, p)
	if err != nil {
		eng.log.Error("tight threshold check failed", "product", p.ID, "error", err)
		return class
	}
	if tight {
		return domain.PriorityHigh
	}
	return class
}

func (eng *Engine) hasTightThreshold(ctx context.Context, p *domain.Product) (bool, error) {
	if p.CurrentPrice == nil || eng.tightThresholdPct <= 0 {
		return false, nil
	}
	rules, err := eng.store.ListAlertRules(ctx, p.ID, "", true)
	if err != nil {
		return false, err
	}

	floor := p.CurrentPrice.Mul(decimal.NewFromFloat(1 - eng.tightThresholdPct/100))
	for _, r := range rules {
		if r.Kind != domain.AlertTargetReached || r.Threshold == nil {
			continue
		}
		if r.Threshold.GreaterThanOrEqual(floor) {
			return true, nil
		}
	}
	return false, nil
}

// EnqueueMaintenance enqueues one retention sweep task. The queue's
// uniqueness key collapses repeated calls while one is still pending.
func (eng *Engine) EnqueueMaintenance(ctx context.Context) (int, error) {
	task := &domain.Task{
		Kind:        domain.TaskRetentionSweep,
		Priority:    domain.PriorityMaintenance,
		MaxAttempts: eng.maintenanceAttempts,
		NotBefore:   eng.now().UTC(),
	}
	switch err := eng.store.EnqueueTask(ctx, task); {
	case errors.Is(err, store.ErrDuplicateTask):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("enqueuing retention sweep: %w", err)
	}
	metrics.TasksEnqueuedTotal.WithLabelValues(string(domain.PriorityMaintenance)).Inc()
	return 1, nil
}

// RefreshPriorities recomputes every enabled product's priority score
// from its trailing volatility, watcher count, price, and staleness.
func (eng *Engine) RefreshPriorities(ctx context.Context) (int, error) {
	inputs, err := eng.store.ListScoringInputs(ctx, eng.scoringWindow)
	if err != nil {
		return 0, fmt.Errorf("listing scoring inputs: %w", err)
	}

	var updated int
	for _, in := range inputs {
		b := score.Score(score.Signals{
			VolatilityPct:  in.VolatilityPct,
			RuleCount:      in.RuleCount,
			Price:          in.CurrentPrice,
			HoursSinceScan: in.HoursSince,
		}, eng.scoreWeights)
		if err := eng.store.UpdatePriorityScore(ctx, in.ProductID, b.Priority); err != nil {
			eng.log.Error("updating priority score failed", "product", in.ProductID, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}
