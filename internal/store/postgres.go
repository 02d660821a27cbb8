package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	domain "pricewatch/pkg/types"
)

// PostgresStore implements Store using pgxpool (connection-pooled
// PostgreSQL).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore with connection pooling.
// NUMERIC columns map to decimal.Decimal through the registered codec.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	// Pool sizing comes from pool_max_conns in the conn string.
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close gracefully shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending SQL schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, s.pool)
}

// UpsertRetailer inserts or updates a retailer by name.
func (s *PostgresStore) UpsertRetailer(ctx context.Context, r *domain.Retailer) error {
	args := pgx.NamedArgs{
		"name":                r.Name,
		"base_url":            r.BaseURL,
		"requests_per_minute": r.RequestsPerMinute,
		"burst":               r.Burst,
		"active":              r.Active,
	}
	if err := s.pool.QueryRow(ctx, queryUpsertRetailer, args).Scan(&r.ID, &r.CreatedAt); err != nil {
		return fmt.Errorf("upserting retailer: %w", err)
	}
	return nil
}

// GetRetailer retrieves a retailer by its ID.
func (s *PostgresStore) GetRetailer(ctx context.Context, id string) (*domain.Retailer, error) {
	r := &domain.Retailer{}
	err := s.pool.QueryRow(ctx, queryGetRetailer, id).Scan(
		&r.ID, &r.Name, &r.BaseURL, &r.RequestsPerMinute, &r.Burst, &r.Active, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting retailer: %w", err)
	}
	return r, nil
}

// ListRetailers returns all retailers, optionally filtered to active only.
func (s *PostgresStore) ListRetailers(ctx context.Context, activeOnly bool) ([]domain.Retailer, error) {
	query := queryListRetailersAll
	if activeOnly {
		query = queryListRetailersActive
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying retailers: %w", err)
	}
	defer rows.Close()

	var retailers []domain.Retailer
	for rows.Next() {
		var r domain.Retailer
		if err := rows.Scan(
			&r.ID, &r.Name, &r.BaseURL, &r.RequestsPerMinute, &r.Burst, &r.Active, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning retailer: %w", err)
		}
		retailers = append(retailers, r)
	}
	return retailers, rows.Err()
}

// CreateProduct inserts a new tracked product.
func (s *PostgresStore) CreateProduct(ctx context.Context, p *domain.Product) error {
	args := pgx.NamedArgs{
		"retailer_id":     p.RetailerID,
		"source_url":      p.SourceURL,
		"title":           p.Title,
		"sku":             p.SKU,
		"currency":        p.Currency,
		"cadence_seconds": p.CadenceSeconds,
		"priority_score":  p.PriorityScore,
		"enabled":         p.Enabled,
	}
	if err := s.pool.QueryRow(ctx, queryCreateProduct, args).Scan(
		&p.ID, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

// GetProduct retrieves a product by its ID.
func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}
	err := scanProduct(s.pool.QueryRow(ctx, queryGetProduct, id), p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// GetProductByURL retrieves a product by its source URL.
func (s *PostgresStore) GetProductByURL(ctx context.Context, sourceURL string) (*domain.Product, error) {
	p := &domain.Product{}
	err := scanProduct(s.pool.QueryRow(ctx, queryGetProductByURL, sourceURL), p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting product by url: %w", err)
	}
	return p, nil
}

// ListProducts queries products with optional filters, returning results
// and total count.
func (s *PostgresStore) ListProducts(
	ctx context.Context,
	opts *ProductQuery,
) ([]domain.Product, int, error) {
	dataSQL, countSQL, args := opts.ToSQL()

	var total int
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	rows, err := s.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// UpdateProductTracking updates the scrape cadence and enabled flag.
func (s *PostgresStore) UpdateProductTracking(
	ctx context.Context,
	id string,
	cadenceSeconds int,
	enabled bool,
) error {
	_, err := s.pool.Exec(ctx, queryUpdateProductTracking, id, cadenceSeconds, enabled)
	if err != nil {
		return fmt.Errorf("updating product tracking: %w", err)
	}
	return nil
}

// SetProductEnabled enables or disables a product.
func (s *PostgresStore) SetProductEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.pool.Exec(ctx, querySetProductEnabled, id, enabled)
	if err != nil {
		return fmt.Errorf("setting product enabled: %w", err)
	}
	return nil
}

// DeleteProduct removes a product and, via cascades, its points, rules,
// events, and open tasks.
func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, queryDeleteProduct, id)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

// ListDueProducts returns enabled products whose cadence has elapsed at
// now, most urgent first.
func (s *PostgresStore) ListDueProducts(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, queryListDueProducts, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// UpdatePriorityScore sets the priority score for a product.
func (s *PostgresStore) UpdatePriorityScore(ctx context.Context, id string, score int) error {
	_, err := s.pool.Exec(ctx, queryUpdatePriorityScore, id, score)
	if err != nil {
		return fmt.Errorf("updating priority score: %w", err)
	}
	return nil
}

// ListScoringInputs returns the scoring signals for every enabled product,
// with volatility computed over the given trailing window.
func (s *PostgresStore) ListScoringInputs(
	ctx context.Context,
	window time.Duration,
) ([]ScoringInput, error) {
	rows, err := s.pool.Query(ctx, queryListScoringInputs, window.Seconds())
	if err != nil {
		return nil, fmt.Errorf("querying scoring inputs: %w", err)
	}
	defer rows.Close()

	var inputs []ScoringInput
	for rows.Next() {
		var in ScoringInput
		if err := rows.Scan(
			&in.ProductID, &in.CurrentPrice, &in.VolatilityPct, &in.RuleCount, &in.HoursSince,
		); err != nil {
			return nil, fmt.Errorf("scanning scoring input: %w", err)
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// RecordScrapeSuccess resets the failure streak and stale flag and stamps
// last_checked_at.
func (s *PostgresStore) RecordScrapeSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, queryRecordScrapeSuccess, id, at)
	if err != nil {
		return fmt.Errorf("recording scrape success: %w", err)
	}
	return nil
}

// RecordScrapeFailure bumps the failure streak, marks the product stale
// once the streak reaches the threshold, and returns the new streak.
// last_checked_at is stamped so due-ness still respects the cadence.
func (s *PostgresStore) RecordScrapeFailure(
	ctx context.Context,
	id string,
	at time.Time,
	staleThreshold int,
) (int, error) {
	var streak int
	err := s.pool.QueryRow(ctx, queryRecordScrapeFailure, id, at, staleThreshold).Scan(&streak)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("recording scrape failure: %w", err)
	}
	return streak, nil
}

// AppendPricePoint appends one observation in a single transaction: the
// point itself, the daily summary upsert, the all-time extremes, and the
// current-price fields. The current fields only change when no later
// point exists, so out-of-order backfills never win. A duplicate
// (product_id, observed_at) aborts with ErrDuplicatePoint before any
// summary is touched; callers treat that as success.
func (s *PostgresStore) AppendPricePoint(ctx context.Context, pt *domain.PricePoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	args := pgx.NamedArgs{
		"product_id":  pt.ProductID,
		"price":       pt.Price,
		"currency":    pt.Currency,
		"available":   pt.Available,
		"observed_at": pt.ObservedAt,
	}

	tag, err := tx.Exec(ctx, queryInsertPricePoint, args)
	if err != nil {
		return fmt.Errorf("inserting price point: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicatePoint
	}

	if _, err := tx.Exec(ctx, queryUpsertDailySummary, args); err != nil {
		return fmt.Errorf("upserting daily summary: %w", err)
	}
	if _, err := tx.Exec(ctx, queryUpdateProductExtremes, args); err != nil {
		return fmt.Errorf("updating product extremes: %w", err)
	}
	if _, err := tx.Exec(ctx, queryUpdateProductCurrent, args); err != nil {
		return fmt.Errorf("updating product current price: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// ListPricePoints returns points for a product within [from, to], newest
// first.
func (s *PostgresStore) ListPricePoints(
	ctx context.Context,
	productID string,
	from, to time.Time,
	limit int,
) ([]domain.PricePoint, error) {
	rows, err := s.pool.Query(ctx, queryListPricePoints, productID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("querying price points: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var pt domain.PricePoint
		if err := scanPricePoint(rows, &pt); err != nil {
			return nil, fmt.Errorf("scanning price point: %w", err)
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

// LatestPricePoint returns the point with the greatest observed_at.
func (s *PostgresStore) LatestPricePoint(ctx context.Context, productID string) (*domain.PricePoint, error) {
	pt := &domain.PricePoint{}
	err := scanPricePoint(s.pool.QueryRow(ctx, queryLatestPricePoint, productID), pt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest price point: %w", err)
	}
	return pt, nil
}

// PriorPricePoint returns the newest point strictly before the given
// instant, or ErrNotFound when the series has nothing earlier.
func (s *PostgresStore) PriorPricePoint(
	ctx context.Context,
	productID string,
	before time.Time,
) (*domain.PricePoint, error) {
	pt := &domain.PricePoint{}
	err := scanPricePoint(s.pool.QueryRow(ctx, queryPriorPricePoint, productID, before), pt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting prior price point: %w", err)
	}
	return pt, nil
}

// PriorLowestPrice returns the minimum price among points observed
// strictly before the given instant. The product's denormalized
// lowest_price cannot serve here: a replayed append has already folded
// the current observation into it.
func (s *PostgresStore) PriorLowestPrice(
	ctx context.Context,
	productID string,
	before time.Time,
) (decimal.Decimal, error) {
	var lowest *decimal.Decimal
	err := s.pool.QueryRow(ctx, queryPriorLowestPrice, productID, before).Scan(&lowest)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("getting prior lowest price: %w", err)
	}
	if lowest == nil {
		return decimal.Decimal{}, ErrNotFound
	}
	return *lowest, nil
}

// ListDailySummaries returns the daily aggregation rows for [from, to].
func (s *PostgresStore) ListDailySummaries(
	ctx context.Context,
	productID string,
	from, to time.Time,
) ([]domain.DailySummary, error) {
	rows, err := s.pool.Query(ctx, queryListDailySummaries, productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying daily summaries: %w", err)
	}
	defer rows.Close()

	var summaries []domain.DailySummary
	for rows.Next() {
		var d domain.DailySummary
		if err := rows.Scan(
			&d.ProductID, &d.Day, &d.Open, &d.Close, &d.Low, &d.High,
			&d.Sum, &d.SumSquares, &d.Count, &d.FirstObservedAt, &d.LastObservedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning daily summary: %w", err)
		}
		summaries = append(summaries, d)
	}
	return summaries, rows.Err()
}

// CreateAlertRule inserts a new alert rule.
func (s *PostgresStore) CreateAlertRule(ctx context.Context, r *domain.AlertRule) error {
	args := pgx.NamedArgs{
		"user_id":    r.UserID,
		"product_id": r.ProductID,
		"kind":       string(r.Kind),
		"threshold":  r.Threshold,
		"enabled":    r.Enabled,
	}
	if err := s.pool.QueryRow(ctx, queryCreateAlertRule, args).Scan(&r.ID, &r.CreatedAt); err != nil {
		return fmt.Errorf("creating alert rule: %w", err)
	}
	return nil
}

// GetAlertRule retrieves a rule by its ID.
func (s *PostgresStore) GetAlertRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	r := &domain.AlertRule{}
	err := s.pool.QueryRow(ctx, queryGetAlertRule, id).Scan(
		&r.ID, &r.UserID, &r.ProductID, &r.Kind, &r.Threshold, &r.Enabled, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting alert rule: %w", err)
	}
	return r, nil
}

// ListAlertRules returns rules filtered by product and/or user; empty
// strings mean no filter.
func (s *PostgresStore) ListAlertRules(
	ctx context.Context,
	productID, userID string,
	enabledOnly bool,
) ([]domain.AlertRule, error) {
	query := `SELECT id, user_id, product_id, kind, threshold, enabled, created_at FROM alert_rules`

	var conditions []string
	var args []any
	paramIdx := 1

	if productID != "" {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", paramIdx))
		args = append(args, productID)
		paramIdx++
	}
	if userID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", paramIdx))
		args = append(args, userID)
		paramIdx++
	}
	if enabledOnly {
		conditions = append(conditions, "enabled = true")
	}

	query += joinConditions(conditions) + " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alert rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		var r domain.AlertRule
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.ProductID, &r.Kind, &r.Threshold, &r.Enabled, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning alert rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SetAlertRuleEnabled enables or disables a rule.
func (s *PostgresStore) SetAlertRuleEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.pool.Exec(ctx, querySetAlertRuleEnabled, id, enabled)
	if err != nil {
		return fmt.Errorf("setting alert rule enabled: %w", err)
	}
	return nil
}

// DeleteAlertRule removes a rule by its ID.
func (s *PostgresStore) DeleteAlertRule(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, queryDeleteAlertRule, id)
	if err != nil {
		return fmt.Errorf("deleting alert rule: %w", err)
	}
	return nil
}

// InsertAlertEvent inserts a fired alert. The UNIQUE (rule_id, product_id,
// observed_at) constraint is the dedup guard: a conflict returns
// ErrDuplicateEvent, which callers treat as success.
func (s *PostgresStore) InsertAlertEvent(ctx context.Context, e *domain.AlertEvent) error {
	args := pgx.NamedArgs{
		"rule_id":        e.RuleID,
		"user_id":        e.UserID,
		"product_id":     e.ProductID,
		"observed_at":    e.ObservedAt,
		"kind":           string(e.Kind),
		"price":          e.Price,
		"previous_price": e.PreviousPrice,
		"message":        e.Message,
	}
	err := s.pool.QueryRow(ctx, queryInsertAlertEvent, args).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateEvent
	}
	if err != nil {
		return fmt.Errorf("inserting alert event: %w", err)
	}
	return nil
}

// GetAlertEvent retrieves an event by its ID.
func (s *PostgresStore) GetAlertEvent(ctx context.Context, id string) (*domain.AlertEvent, error) {
	e := &domain.AlertEvent{}
	err := scanAlertEvent(s.pool.QueryRow(ctx, queryGetAlertEvent, id), e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting alert event: %w", err)
	}
	return e, nil
}

// ListAlertEvents queries events with optional filters, returning results
// and total count.
func (s *PostgresStore) ListAlertEvents(
	ctx context.Context,
	opts *EventQuery,
) ([]domain.AlertEvent, int, error) {
	dataSQL, countSQL, args := opts.ToSQL()

	var total int
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting alert events: %w", err)
	}

	rows, err := s.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying alert events: %w", err)
	}
	defer rows.Close()

	events, err := collectAlertEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListUndeliveredEvents returns undelivered, un-capped events of the given
// kinds whose next attempt is due at asOf, oldest first.
func (s *PostgresStore) ListUndeliveredEvents(
	ctx context.Context,
	kinds []domain.AlertKind,
	asOf time.Time,
	limit int,
) ([]domain.AlertEvent, error) {
	kindStrs := make([]string, len(kinds))
	for i, k := range kinds {
		kindStrs[i] = string(k)
	}

	rows, err := s.pool.Query(ctx, queryListUndeliveredEvents, kindStrs, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("querying undelivered events: %w", err)
	}
	defer rows.Close()

	return collectAlertEvents(rows)
}

// ListDeliveryFailedEvents returns events whose delivery attempts are
// exhausted, newest first.
func (s *PostgresStore) ListDeliveryFailedEvents(
	ctx context.Context,
	limit int,
) ([]domain.AlertEvent, error) {
	rows, err := s.pool.Query(ctx, queryListDeliveryFailedEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("querying delivery-failed events: %w", err)
	}
	defer rows.Close()

	return collectAlertEvents(rows)
}

// MarkEventsDelivered marks a batch of events as delivered at the given
// instant.
func (s *PostgresStore) MarkEventsDelivered(ctx context.Context, ids []string, at time.Time) error {
	_, err := s.pool.Exec(ctx, queryMarkEventsDelivered, ids, at)
	if err != nil {
		return fmt.Errorf("marking events delivered: %w", err)
	}
	return nil
}

// RecordDeliveryFailure bumps the attempt counter, schedules the next
// attempt, and flips delivery_failed when the cap is reached. Returns the
// new attempt count and whether the event is now capped.
func (s *PostgresStore) RecordDeliveryFailure(
	ctx context.Context,
	id string,
	nextAttempt time.Time,
	maxAttempts int,
) (int, bool, error) {
	var attempts int
	var capped bool
	err := s.pool.QueryRow(ctx, queryRecordDeliveryFailure, id, nextAttempt, maxAttempts).
		Scan(&attempts, &capped)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("recording delivery failure: %w", err)
	}
	return attempts, capped, nil
}

// MarkEventRead marks a single event as read.
func (s *PostgresStore) MarkEventRead(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, queryMarkEventRead, id)
	if err != nil {
		return fmt.Errorf("marking event read: %w", err)
	}
	return nil
}

// EnqueueTask inserts a pending task. The partial unique index on
// (product_id, kind) over open tasks makes this idempotent: a second
// enqueue while one is pending or running returns ErrDuplicateTask.
func (s *PostgresStore) EnqueueTask(ctx context.Context, t *domain.Task) error {
	var productID any
	if t.ProductID != "" {
		productID = t.ProductID
	}

	args := pgx.NamedArgs{
		"product_id":   productID,
		"kind":         string(t.Kind),
		"priority":     string(t.Priority),
		"max_attempts": t.MaxAttempts,
		"not_before":   t.NotBefore,
	}
	err := s.pool.QueryRow(ctx, queryEnqueueTask, args).Scan(&t.ID, &t.EnqueuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateTask
	}
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}
	t.Status = domain.TaskPending
	return nil
}

// DequeueTasks claims up to limit pending tasks of one priority class for
// workerID, bumping their attempt and setting a lease. SKIP LOCKED keeps
// concurrent workers from double-claiming.
func (s *PostgresStore) DequeueTasks(
	ctx context.Context,
	priority domain.Priority,
	workerID string,
	limit int,
	lease time.Duration,
) ([]domain.Task, error) {
	rows, err := s.pool.Query(ctx, queryDequeueTasks,
		string(priority), workerID, limit, lease.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("dequeuing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(
			&t.ID, &t.ProductID, &t.Kind, &t.Priority, &t.Status,
			&t.Attempt, &t.MaxAttempts, &t.EnqueuedAt, &t.NotBefore,
			&t.LeaseExpiresAt, &t.WorkerID, &t.LastError,
		); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CompleteTask acknowledges a finished task by deleting it.
func (s *PostgresStore) CompleteTask(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, queryCompleteTask, id)
	if err != nil {
		return fmt.Errorf("completing task: %w", err)
	}
	return nil
}

// RetryTask returns a running task to pending with a delay. The attempt
// counter stays as-is; it was consumed at dequeue.
func (s *PostgresStore) RetryTask(
	ctx context.Context,
	id string,
	notBefore time.Time,
	lastError string,
) error {
	_, err := s.pool.Exec(ctx, queryRetryTask, id, notBefore, lastError)
	if err != nil {
		return fmt.Errorf("retrying task: %w", err)
	}
	return nil
}

// FailTask copies a task into task_failures with its terminal status and
// deletes it from the queue, in one statement.
func (s *PostgresStore) FailTask(
	ctx context.Context,
	id string,
	final domain.FailureStatus,
	lastError string,
) error {
	_, err := s.pool.Exec(ctx, queryFailTask, id, string(final), lastError)
	if err != nil {
		return fmt.Errorf("failing task: %w", err)
	}
	return nil
}

// RecoverExpiredLeases handles tasks whose worker died mid-run: tasks at
// their attempt cap move to task_failures as timed_out, the rest return
// to pending for redelivery.
func (s *PostgresStore) RecoverExpiredLeases(
	ctx context.Context,
	now time.Time,
) (int, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning lease recovery: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, queryFailExhaustedLeases, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failing exhausted leases: %w", err)
	}
	exhausted := int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, queryRecoverExpiredLeases, now)
	if err != nil {
		return 0, exhausted, fmt.Errorf("recovering expired leases: %w", err)
	}
	recovered := int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing lease recovery: %w", err)
	}
	return recovered, exhausted, nil
}

// QueueStats returns the per-class backlog snapshot. Classes with no open
// tasks are absent from the result.
func (s *PostgresStore) QueueStats(ctx context.Context) ([]domain.QueueStats, error) {
	rows, err := s.pool.Query(ctx, queryQueueStats)
	if err != nil {
		return nil, fmt.Errorf("querying queue stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.QueueStats
	for rows.Next() {
		var st domain.QueueStats
		if err := rows.Scan(&st.Priority, &st.Pending, &st.Running, &st.OldestPendingAge); err != nil {
			return nil, fmt.Errorf("scanning queue stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ListTaskFailures returns terminally failed tasks for operator triage,
// newest first.
func (s *PostgresStore) ListTaskFailures(
	ctx context.Context,
	unacknowledgedOnly bool,
	limit int,
) ([]domain.TaskFailure, error) {
	query := queryListTaskFailuresAll
	if unacknowledgedOnly {
		query = queryListTaskFailuresOpen
	}

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying task failures: %w", err)
	}
	defer rows.Close()

	var failures []domain.TaskFailure
	for rows.Next() {
		var f domain.TaskFailure
		if err := rows.Scan(
			&f.ID, &f.ProductID, &f.Kind, &f.Priority, &f.Attempts,
			&f.FinalStatus, &f.LastError, &f.FailedAt, &f.Acknowledged,
		); err != nil {
			return nil, fmt.Errorf("scanning task failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// AcknowledgeTaskFailure marks a failure row as reviewed.
func (s *PostgresStore) AcknowledgeTaskFailure(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, queryAcknowledgeTaskFailure, id)
	if err != nil {
		return fmt.Errorf("acknowledging task failure: %w", err)
	}
	return nil
}

// PercentileBands computes the p10..p90 price distribution over points
// observed since from, along with the sample count.
func (s *PostgresStore) PercentileBands(
	ctx context.Context,
	productID string,
	from time.Time,
) (*domain.PercentileBands, int, error) {
	var pcts []float64
	var count int
	err := s.pool.QueryRow(ctx, queryPercentileBands, productID, from).Scan(&pcts, &count)
	if err != nil {
		return nil, 0, fmt.Errorf("querying percentile bands: %w", err)
	}
	if count == 0 || len(pcts) != 5 {
		return &domain.PercentileBands{}, 0, nil
	}

	bands := &domain.PercentileBands{
		P10: decimal.NewFromFloat(pcts[0]),
		P25: decimal.NewFromFloat(pcts[1]),
		P50: decimal.NewFromFloat(pcts[2]),
		P75: decimal.NewFromFloat(pcts[3]),
		P90: decimal.NewFromFloat(pcts[4]),
	}
	return bands, count, nil
}

// MonthlyAverages returns every observed calendar month ranked by average
// price, cheapest first.
func (s *PostgresStore) MonthlyAverages(
	ctx context.Context,
	productID string,
) ([]domain.MonthlyRank, error) {
	rows, err := s.pool.Query(ctx, queryMonthlyAverages, productID)
	if err != nil {
		return nil, fmt.Errorf("querying monthly averages: %w", err)
	}
	defer rows.Close()

	var months []domain.MonthlyRank
	for rows.Next() {
		var m domain.MonthlyRank
		if err := rows.Scan(&m.Month, &m.AvgPrice, &m.Samples); err != nil {
			return nil, fmt.Errorf("scanning monthly average: %w", err)
		}
		m.Rank = len(months) + 1
		months = append(months, m)
	}
	return months, rows.Err()
}

// InsertJobRun records the start of a scheduled job and returns its UUID.
func (s *PostgresStore) InsertJobRun(ctx context.Context, jobName string) (string, error) {
	var id string
	if err := s.pool.QueryRow(ctx, queryInsertJobRun, jobName).Scan(&id); err != nil {
		return "", fmt.Errorf("inserting job run: %w", err)
	}
	return id, nil
}

// CompleteJobRun marks a job run as finished with the given status and
// metadata.
func (s *PostgresStore) CompleteJobRun(
	ctx context.Context,
	id string,
	status string,
	errText string,
	rowsAffected int,
) error {
	_, err := s.pool.Exec(ctx, queryCompleteJobRun, id, status, errText, rowsAffected)
	if err != nil {
		return fmt.Errorf("completing job run: %w", err)
	}
	return nil
}

// ListJobRuns returns the most recent runs for a specific job, newest
// first.
func (s *PostgresStore) ListJobRuns(
	ctx context.Context,
	jobName string,
	limit int,
) ([]domain.JobRun, error) {
	rows, err := s.pool.Query(ctx, queryListJobRuns, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("querying job runs: %w", err)
	}
	defer rows.Close()

	return scanJobRuns(rows)
}

// ListLatestJobRuns returns the single most recent run for each distinct
// job name.
func (s *PostgresStore) ListLatestJobRuns(ctx context.Context) ([]domain.JobRun, error) {
	rows, err := s.pool.Query(ctx, queryListLatestJobRuns)
	if err != nil {
		return nil, fmt.Errorf("querying latest job runs: %w", err)
	}
	defer rows.Close()

	return scanJobRuns(rows)
}

// RecoverStaleJobRuns marks any 'running' job rows older than olderThan as
// 'crashed'. Returns the number of rows marked.
func (s *PostgresStore) RecoverStaleJobRuns(
	ctx context.Context,
	olderThan time.Duration,
) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	tag, err := s.pool.Exec(ctx, queryMarkStaleJobRunsCrashed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("marking stale job runs crashed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// AcquireSchedulerLock attempts to acquire a distributed lock for the
// given job. Returns true if the lock was acquired, false if another
// holder already owns it.
func (s *PostgresStore) AcquireSchedulerLock(
	ctx context.Context,
	jobName string,
	holder string,
	ttl time.Duration,
) (bool, error) {
	expiresAt := time.Now().Add(ttl)

	var gotName string
	err := s.pool.QueryRow(ctx, queryAcquireSchedulerLock, jobName, holder, expiresAt).Scan(&gotName)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil // lock held by another; conflict not replaced
	}
	if err != nil {
		return false, fmt.Errorf("acquiring scheduler lock: %w", err)
	}

	return true, nil
}

// ReleaseSchedulerLock deletes the lock row for the given job and holder.
func (s *PostgresStore) ReleaseSchedulerLock(
	ctx context.Context,
	jobName string,
	holder string,
) error {
	_, err := s.pool.Exec(ctx, queryReleaseSchedulerLock, jobName, holder)
	if err != nil {
		return fmt.Errorf("releasing scheduler lock: %w", err)
	}
	return nil
}

// InsertNotificationAttempt records the outcome of one delivery attempt.
func (s *PostgresStore) InsertNotificationAttempt(
	ctx context.Context,
	a *domain.NotificationAttempt,
) error {
	args := pgx.NamedArgs{
		"event_id": a.EventID,
		"user_id":  a.UserID,
		"mode":     a.Mode,
		"events":   a.Events,
		"ok":       a.OK,
		"detail":   a.Detail,
	}
	if err := s.pool.QueryRow(ctx, queryInsertNotificationAttempt, args).
		Scan(&a.ID, &a.AttemptedAt); err != nil {
		return fmt.Errorf("inserting notification attempt: %w", err)
	}
	return nil
}

// DeletePricePointsBefore prunes raw points older than cutoff.
func (s *PostgresStore) DeletePricePointsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, queryDeletePricePointsBefore, cutoff, "price points")
}

// DeleteTaskFailuresBefore prunes failure rows older than cutoff.
func (s *PostgresStore) DeleteTaskFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, queryDeleteTaskFailuresBefore, cutoff, "task failures")
}

// DeleteJobRunsBefore prunes job run rows older than cutoff.
func (s *PostgresStore) DeleteJobRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, queryDeleteJobRunsBefore, cutoff, "job runs")
}

// DeleteNotificationAttemptsBefore prunes delivery audit rows older than
// cutoff.
func (s *PostgresStore) DeleteNotificationAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, queryDeleteNotificationAttemptsBefore, cutoff, "notification attempts")
}

func (s *PostgresStore) deleteBefore(
	ctx context.Context,
	query string,
	cutoff time.Time,
	what string,
) (int64, error) {
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old %s: %w", what, err)
	}
	return tag.RowsAffected(), nil
}

// scanJobRuns scans rows from a job_runs query into a slice.
func scanJobRuns(rows pgx.Rows) ([]domain.JobRun, error) {
	var runs []domain.JobRun
	for rows.Next() {
		var r domain.JobRun
		if err := rows.Scan(
			&r.ID, &r.JobName, &r.StartedAt, &r.CompletedAt,
			&r.Status, &r.ErrorText, &r.RowsAffected,
		); err != nil {
			return nil, fmt.Errorf("scanning job run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// scannable abstracts pgx.Row and pgx.Rows for reuse.
type scannable interface {
	Scan(dest ...any) error
}

// scanProduct scans a full product row; column order matches
// baseProductsSelect.
func scanProduct(row scannable, p *domain.Product) error {
	return row.Scan(
		&p.ID, &p.RetailerID, &p.SourceURL, &p.Title, &p.SKU,
		&p.CurrentPrice, &p.Currency, &p.HighestPrice, &p.LowestPrice,
		&p.Available, &p.LastCheckedAt,
		&p.CadenceSeconds, &p.PriorityScore, &p.FailureStreak, &p.Stale, &p.Enabled,
		&p.CreatedAt, &p.UpdatedAt,
	)
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// scanAlertEvent scans a full event row; column order matches
// baseEventsSelect.
func scanAlertEvent(row scannable, e *domain.AlertEvent) error {
	return row.Scan(
		&e.ID, &e.RuleID, &e.UserID, &e.ProductID, &e.ObservedAt, &e.Kind,
		&e.Price, &e.PreviousPrice, &e.Message, &e.CreatedAt,
		&e.Delivered, &e.DeliveredAt, &e.DeliveryAttempts, &e.NextAttemptAt,
		&e.DeliveryFailed, &e.Read,
	)
}

func collectAlertEvents(rows pgx.Rows) ([]domain.AlertEvent, error) {
	var events []domain.AlertEvent
	for rows.Next() {
		var e domain.AlertEvent
		if err := scanAlertEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scanning alert event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanPricePoint(row scannable, pt *domain.PricePoint) error {
	return row.Scan(&pt.ProductID, &pt.Price, &pt.Currency, &pt.Available, &pt.ObservedAt)
}
