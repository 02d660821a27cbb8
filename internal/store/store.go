// Package store defines the datastore abstraction for pricewatch.
// All business logic depends on the Store interface, never on concrete
// implementations. This enables fake-based testing without a running
// database.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domain "pricewatch/pkg/types"
)

// Sentinel errors. Duplicate sentinels signal an idempotency hit: the row
// already exists, callers treat it as success.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicatePoint = errors.New("price point already recorded")
	ErrDuplicateEvent = errors.New("alert event already recorded")
	ErrDuplicateTask  = errors.New("task already enqueued")
)

// Store defines all data access operations for pricewatch.
type Store interface {
	// Retailers
	UpsertRetailer(ctx context.Context, r *domain.Retailer) error
	GetRetailer(ctx context.Context, id string) (*domain.Retailer, error)
	ListRetailers(ctx context.Context, activeOnly bool) ([]domain.Retailer, error)

	// Products
	CreateProduct(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByURL(ctx context.Context, sourceURL string) (*domain.Product, error)
	ListProducts(ctx context.Context, opts *ProductQuery) ([]domain.Product, int, error)
	UpdateProductTracking(ctx context.Context, id string, cadenceSeconds int, enabled bool) error
	SetProductEnabled(ctx context.Context, id string, enabled bool) error
	DeleteProduct(ctx context.Context, id string) error
	ListDueProducts(ctx context.Context, now time.Time, limit int) ([]domain.Product, error)
	UpdatePriorityScore(ctx context.Context, id string, score int) error
	ListScoringInputs(ctx context.Context, window time.Duration) ([]ScoringInput, error)
	RecordScrapeSuccess(ctx context.Context, id string, at time.Time) error
	RecordScrapeFailure(ctx context.Context, id string, at time.Time, staleThreshold int) (streak int, err error)

	// Price points
	AppendPricePoint(ctx context.Context, pt *domain.PricePoint) error
	ListPricePoints(ctx context.Context, productID string, from, to time.Time, limit int) ([]domain.PricePoint, error)
	LatestPricePoint(ctx context.Context, productID string) (*domain.PricePoint, error)
	PriorPricePoint(ctx context.Context, productID string, before time.Time) (*domain.PricePoint, error)
	PriorLowestPrice(ctx context.Context, productID string, before time.Time) (decimal.Decimal, error)
	ListDailySummaries(ctx context.Context, productID string, from, to time.Time) ([]domain.DailySummary, error)

	// Alert rules
	CreateAlertRule(ctx context.Context, r *domain.AlertRule) error
	GetAlertRule(ctx context.Context, id string) (*domain.AlertRule, error)
	ListAlertRules(ctx context.Context, productID, userID string, enabledOnly bool) ([]domain.AlertRule, error)
	SetAlertRuleEnabled(ctx context.Context, id string, enabled bool) error
	DeleteAlertRule(ctx context.Context, id string) error

	// Alert events
	InsertAlertEvent(ctx context.Context, e *domain.AlertEvent) error
	GetAlertEvent(ctx context.Context, id string) (*domain.AlertEvent, error)
	ListAlertEvents(ctx context.Context, opts *EventQuery) ([]domain.AlertEvent, int, error)
	ListUndeliveredEvents(ctx context.Context, kinds []domain.AlertKind, asOf time.Time, limit int) ([]domain.AlertEvent, error)
	ListDeliveryFailedEvents(ctx context.Context, limit int) ([]domain.AlertEvent, error)
	MarkEventsDelivered(ctx context.Context, ids []string, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, id string, nextAttempt time.Time, maxAttempts int) (attempts int, capped bool, err error)
	MarkEventRead(ctx context.Context, id string) error

	// Task queue
	EnqueueTask(ctx context.Context, t *domain.Task) error
	DequeueTasks(ctx context.Context, priority domain.Priority, workerID string, limit int, lease time.Duration) ([]domain.Task, error)
	CompleteTask(ctx context.Context, id string) error
	RetryTask(ctx context.Context, id string, notBefore time.Time, lastError string) error
	FailTask(ctx context.Context, id string, final domain.FailureStatus, lastError string) error
	RecoverExpiredLeases(ctx context.Context, now time.Time) (recovered, exhausted int, err error)
	QueueStats(ctx context.Context) ([]domain.QueueStats, error)
	ListTaskFailures(ctx context.Context, unacknowledgedOnly bool, limit int) ([]domain.TaskFailure, error)
	AcknowledgeTaskFailure(ctx context.Context, id string) error

	// Analytics reads
	PercentileBands(ctx context.Context, productID string, from time.Time) (*domain.PercentileBands, int, error)
	MonthlyAverages(ctx context.Context, productID string) ([]domain.MonthlyRank, error)

	// Scheduler
	InsertJobRun(ctx context.Context, jobName string) (id string, err error)
	CompleteJobRun(ctx context.Context, id string, status string, errText string, rowsAffected int) error
	ListJobRuns(ctx context.Context, jobName string, limit int) ([]domain.JobRun, error)
	ListLatestJobRuns(ctx context.Context) ([]domain.JobRun, error)
	RecoverStaleJobRuns(ctx context.Context, olderThan time.Duration) (int, error)
	AcquireSchedulerLock(ctx context.Context, jobName string, holder string, ttl time.Duration) (bool, error)
	ReleaseSchedulerLock(ctx context.Context, jobName string, holder string) error

	// Notifications
	InsertNotificationAttempt(ctx context.Context, a *domain.NotificationAttempt) error

	// Retention
	DeletePricePointsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteTaskFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteJobRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteNotificationAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Migrations
	Migrate(ctx context.Context) error

	// Health
	Ping(ctx context.Context) error
}

// ScoringInput bundles the per-product signals the priority refresh job
// feeds to the scorer.
type ScoringInput struct {
	ProductID     string
	CurrentPrice  float64
	VolatilityPct float64
	RuleCount     int
	HoursSince    float64
}
