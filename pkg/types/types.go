// Package domain defines the core business types for pricewatch.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Priority is the scheduling class of a queued task. Classes are a stable
// operational contract: queue names, metrics labels, and autoscaler rules
// key off these exact strings.
type Priority string

// Priority class constants, strongest first.
const (
	PriorityHigh        Priority = "high"
	PriorityDefault     Priority = "default"
	PriorityLow         Priority = "low"
	PriorityMaintenance Priority = "maintenance"
)

// ScrapeClasses lists the classes a scrape worker polls, in precedence order.
func ScrapeClasses() []Priority {
	return []Priority{PriorityHigh, PriorityDefault, PriorityLow}
}

// Valid reports whether p is a known priority class.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityDefault, PriorityLow, PriorityMaintenance:
		return true
	}
	return false
}

// TaskKind names the work a queued task performs.
type TaskKind string

// Task kind constants.
const (
	TaskScrape         TaskKind = "scrape"
	TaskRetentionSweep TaskKind = "retention_sweep"
)

// TaskStatus is the queue-visible state of a task. Terminal outcomes are
// recorded on TaskFailure rows; successful tasks are deleted outright.
type TaskStatus string

// Task status constants.
const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
)

// FailureStatus is the terminal outcome recorded for a task that will not
// run again.
type FailureStatus string

// Failure status constants.
const (
	FailureFailed    FailureStatus = "failed"
	FailureTimedOut  FailureStatus = "timed_out"
	FailurePermanent FailureStatus = "permanent"
)

// AlertKind is the closed set of alert rule kinds. Evaluation switches over
// this set exhaustively; unknown kinds are a rule-creation error, never a
// runtime branch.
type AlertKind string

// Alert kind constants.
const (
	AlertPriceDrop     AlertKind = "price_drop"
	AlertTargetReached AlertKind = "target_reached"
	AlertBackInStock   AlertKind = "back_in_stock"
	AlertLowestEver    AlertKind = "lowest_ever"
)

// Valid reports whether k is a known alert kind.
func (k AlertKind) Valid() bool {
	switch k {
	case AlertPriceDrop, AlertTargetReached, AlertBackInStock, AlertLowestEver:
		return true
	}
	return false
}

// NeedsThreshold reports whether rules of this kind require a threshold.
func (k AlertKind) NeedsThreshold() bool {
	return k == AlertTargetReached
}

// Retailer is a site we scrape, with its politeness limits.
type Retailer struct {
	ID                string    `json:"id"                  db:"id"`
	Name              string    `json:"name"                db:"name"`
	BaseURL           string    `json:"base_url"            db:"base_url"`
	RequestsPerMinute int       `json:"requests_per_minute" db:"requests_per_minute"`
	Burst             int       `json:"burst"               db:"burst"`
	Active            bool      `json:"active"              db:"active"`
	CreatedAt         time.Time `json:"created_at"          db:"created_at"`
}

// Product is a tracked product: the scrape target plus a denormalized
// summary of its price series. Summary fields are written only by the
// ingestion path; current_price always reflects the point with the
// greatest observed_at, regardless of write order.
type Product struct {
	ID         string `json:"id"            db:"id"`
	RetailerID string `json:"retailer_id"   db:"retailer_id"`
	SourceURL  string `json:"source_url"    db:"source_url"`
	Title      string `json:"title"         db:"title"`
	SKU        string `json:"sku,omitempty" db:"sku"`

	// Series summary
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty" db:"current_price"`
	Currency      string           `json:"currency"                db:"currency"`
	HighestPrice  *decimal.Decimal `json:"highest_price,omitempty" db:"highest_price"`
	LowestPrice   *decimal.Decimal `json:"lowest_price,omitempty"  db:"lowest_price"`
	Available     bool             `json:"available"               db:"available"`
	LastCheckedAt *time.Time       `json:"last_checked_at,omitempty" db:"last_checked_at"`

	// Scheduling
	CadenceSeconds int  `json:"cadence_seconds" db:"cadence_seconds"`
	PriorityScore  int  `json:"priority_score"  db:"priority_score"`
	FailureStreak  int  `json:"failure_streak"  db:"failure_streak"`
	Stale          bool `json:"stale"           db:"stale"`
	Enabled        bool `json:"enabled"         db:"enabled"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Cadence returns the scrape cadence as a duration.
func (p *Product) Cadence() time.Duration {
	return time.Duration(p.CadenceSeconds) * time.Second
}

// Due reports whether the product is due for a scrape at now.
func (p *Product) Due(now time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*p.LastCheckedAt) >= p.Cadence()
}

// PricePoint is one timestamped price observation. Append-only and
// immutable; (ProductID, ObservedAt) is the identity, so re-ingesting the
// same observation is a no-op.
type PricePoint struct {
	ProductID  string          `json:"product_id"  db:"product_id"`
	Price      decimal.Decimal `json:"price"       db:"price"`
	Currency   string          `json:"currency"    db:"currency"`
	Available  bool            `json:"available"   db:"available"`
	ObservedAt time.Time       `json:"observed_at" db:"observed_at"`
}

// AlertRule is a user's standing request to be told about a price movement.
// Rules are created by the API layer and consumed read-only here.
type AlertRule struct {
	ID        string           `json:"id"                  db:"id"`
	UserID    string           `json:"user_id"             db:"user_id"`
	ProductID string           `json:"product_id"          db:"product_id"`
	Kind      AlertKind        `json:"kind"                db:"kind"`
	Threshold *decimal.Decimal `json:"threshold,omitempty" db:"threshold"`
	Enabled   bool             `json:"enabled"             db:"enabled"`
	CreatedAt time.Time        `json:"created_at"          db:"created_at"`
}

// AlertEvent is one fired alert. At most one event exists per
// (rule, triggering price point); the uniqueness lives in storage so
// replayed evaluation cannot double-fire.
type AlertEvent struct {
	ID            string           `json:"id"                       db:"id"`
	RuleID        string           `json:"rule_id"                  db:"rule_id"`
	UserID        string           `json:"user_id"                  db:"user_id"`
	ProductID     string           `json:"product_id"               db:"product_id"`
	ObservedAt    time.Time        `json:"observed_at"              db:"observed_at"`
	Kind          AlertKind        `json:"kind"                     db:"kind"`
	Price         decimal.Decimal  `json:"price"                    db:"price"`
	PreviousPrice *decimal.Decimal `json:"previous_price,omitempty" db:"previous_price"`
	Message       string           `json:"message"                  db:"message"`
	CreatedAt     time.Time        `json:"created_at"               db:"created_at"`

	// Delivery lifecycle, owned by the dispatcher.
	Delivered        bool       `json:"delivered"                 db:"delivered"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"    db:"delivered_at"`
	DeliveryAttempts int        `json:"delivery_attempts"         db:"delivery_attempts"`
	NextAttemptAt    *time.Time `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	DeliveryFailed   bool       `json:"delivery_failed"           db:"delivery_failed"`
	Read             bool       `json:"read"                      db:"read"`
}

// Task is one queued unit of work. Ephemeral: deleted on success, copied
// to TaskFailure on terminal failure. Priority and attempt are externally
// observable metadata.
type Task struct {
	ID             string     `json:"id"                        db:"id"`
	ProductID      string     `json:"product_id,omitempty"      db:"product_id"`
	Kind           TaskKind   `json:"kind"                      db:"kind"`
	Priority       Priority   `json:"priority"                  db:"priority"`
	Status         TaskStatus `json:"status"                    db:"status"`
	Attempt        int        `json:"attempt"                   db:"attempt"`
	MaxAttempts    int        `json:"max_attempts"              db:"max_attempts"`
	EnqueuedAt     time.Time  `json:"enqueued_at"               db:"enqueued_at"`
	NotBefore      time.Time  `json:"not_before"                db:"not_before"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	WorkerID       string     `json:"worker_id,omitempty"       db:"worker_id"`
	LastError      string     `json:"last_error,omitempty"      db:"last_error"`
}

// TaskFailure is a terminally failed task surfaced for operator triage.
// Never dropped silently; operators acknowledge rows after review.
type TaskFailure struct {
	ID           string        `json:"id"           db:"id"`
	ProductID    string        `json:"product_id,omitempty" db:"product_id"`
	Kind         TaskKind      `json:"kind"         db:"kind"`
	Priority     Priority      `json:"priority"     db:"priority"`
	Attempts     int           `json:"attempts"     db:"attempts"`
	FinalStatus  FailureStatus `json:"final_status" db:"final_status"`
	LastError    string        `json:"last_error"   db:"last_error"`
	FailedAt     time.Time     `json:"failed_at"    db:"failed_at"`
	Acknowledged bool          `json:"acknowledged" db:"acknowledged"`
}

// JobRun records a single execution of a scheduled job.
type JobRun struct {
	ID           string     `json:"id"                      db:"id"`
	JobName      string     `json:"job_name"                db:"job_name"`
	StartedAt    time.Time  `json:"started_at"              db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"  db:"completed_at"`
	Status       string     `json:"status"                  db:"status"`
	ErrorText    string     `json:"error_text,omitempty"    db:"error_text"`
	RowsAffected *int       `json:"rows_affected,omitempty" db:"rows_affected"`
}

// RawObservation is what a single page fetch yields before persistence.
type RawObservation struct {
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Available  bool            `json:"available"`
	Title      string          `json:"title,omitempty"`
	ObservedAt time.Time       `json:"observed_at"`
}

// NotificationAttempt is one recorded delivery attempt against the sink.
type NotificationAttempt struct {
	ID          string    `json:"id"                 db:"id"`
	EventID     *string   `json:"event_id,omitempty" db:"event_id"`
	UserID      string    `json:"user_id"            db:"user_id"`
	Mode        string    `json:"mode"               db:"mode"`
	Events      int       `json:"events"             db:"events"`
	OK          bool      `json:"ok"                 db:"ok"`
	Detail      string    `json:"detail,omitempty"   db:"detail"`
	AttemptedAt time.Time `json:"attempted_at"       db:"attempted_at"`
}

// QueueStats is the per-class backlog snapshot exposed for autoscaling.
type QueueStats struct {
	Priority         Priority `json:"priority"           db:"priority"`
	Pending          int      `json:"pending"            db:"pending"`
	Running          int      `json:"running"            db:"running"`
	OldestPendingAge *float64 `json:"oldest_pending_age_seconds,omitempty" db:"oldest_pending_age_seconds"`
}

// DailySummary is the incremental per-day aggregation maintained by the
// ingestion path. Min, max and the sums update unconditionally; open and
// close track the earliest and latest observed_at within the day, so the
// row is correct regardless of the order points arrive in.
type DailySummary struct {
	ProductID       string          `json:"product_id"        db:"product_id"`
	Day             time.Time       `json:"day"               db:"day"`
	Open            decimal.Decimal `json:"open"              db:"open"`
	Close           decimal.Decimal `json:"close"             db:"close"`
	Low             decimal.Decimal `json:"low"               db:"low"`
	High            decimal.Decimal `json:"high"              db:"high"`
	Sum             decimal.Decimal `json:"sum"               db:"sum"`
	SumSquares      decimal.Decimal `json:"sum_squares"       db:"sum_squares"`
	Count           int             `json:"count"             db:"count"`
	FirstObservedAt time.Time       `json:"first_observed_at" db:"first_observed_at"`
	LastObservedAt  time.Time       `json:"last_observed_at"  db:"last_observed_at"`
}

// VolatilityDay is one daily bucket of spread statistics.
type VolatilityDay struct {
	Day     time.Time       `json:"day"     db:"day"`
	Low     decimal.Decimal `json:"low"     db:"low"`
	High    decimal.Decimal `json:"high"    db:"high"`
	Avg     decimal.Decimal `json:"avg"     db:"avg"`
	StdDev  decimal.Decimal `json:"stddev"  db:"stddev"`
	Samples int             `json:"samples" db:"samples"`
}

// VolatilitySummary is the windowed volatility view of one product.
type VolatilitySummary struct {
	ProductID string          `json:"product_id"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Days      []VolatilityDay `json:"days"`
}

// TrendDay is one daily bucket of open/close movement.
type TrendDay struct {
	Day      time.Time       `json:"day"       db:"day"`
	Open     decimal.Decimal `json:"open"      db:"open"`
	Close    decimal.Decimal `json:"close"     db:"close"`
	Delta    decimal.Decimal `json:"delta"     db:"delta"`
	DeltaPct float64         `json:"delta_pct" db:"delta_pct"`
}

// TrendSummary is the windowed trend view of one product.
type TrendSummary struct {
	ProductID   string          `json:"product_id"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Days        []TrendDay      `json:"days"`
	WindowOpen  decimal.Decimal `json:"window_open"`
	WindowClose decimal.Decimal `json:"window_close"`
	WindowDelta decimal.Decimal `json:"window_delta"`
}

// PercentileBands holds the price distribution bands over a window.
type PercentileBands struct {
	P10 decimal.Decimal `json:"p10" db:"p10"`
	P25 decimal.Decimal `json:"p25" db:"p25"`
	P50 decimal.Decimal `json:"p50" db:"p50"`
	P75 decimal.Decimal `json:"p75" db:"p75"`
	P90 decimal.Decimal `json:"p90" db:"p90"`
}

// MonthlyRank ranks one calendar month by its average price, rank 1 being
// the historically cheapest month to buy.
type MonthlyRank struct {
	Month    string          `json:"month"    db:"month"`
	AvgPrice decimal.Decimal `json:"avg_price" db:"avg_price"`
	Samples  int             `json:"samples"  db:"samples"`
	Rank     int             `json:"rank"     db:"rank"`
}

// InsightSummary is the percentile/seasonality view of one product.
type InsightSummary struct {
	ProductID    string           `json:"product_id"`
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
	SampleCount  int              `json:"sample_count"`
	Bands        PercentileBands  `json:"bands"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
	CurrentBand  string           `json:"current_band,omitempty"`
	BestMonths   []MonthlyRank    `json:"best_months"`
}
