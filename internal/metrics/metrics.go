// Package metrics defines Prometheus metrics for pricewatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pw"

// HTTP metrics.
var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HealthzUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "healthz_up",
		Help:      "Whether the last liveness probe succeeded (1) or failed (0).",
	})

	ReadyzUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "readyz_up",
		Help:      "Whether the last readiness probe succeeded (1) or failed (0).",
	})
)

// Queue metrics. Priority-class labels are a stable operational contract;
// autoscalers key off queue depth and oldest-pending age per class.
var (
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Pending tasks per priority class.",
	}, []string{"priority"})

	QueueOldestPendingAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_oldest_pending_age_seconds",
		Help:      "Age of the oldest pending task per priority class.",
	}, []string{"priority"})

	TasksDequeuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_dequeued_total",
		Help:      "Total tasks handed to workers, by priority class.",
	}, []string{"priority"})

	TasksCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_completed_total",
		Help:      "Total tasks finished, by priority class and outcome.",
	}, []string{"priority", "outcome"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution time in seconds, by priority class.",
		Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"priority"})

	TasksRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_recovered_total",
		Help:      "Total tasks returned to pending after an expired lease.",
	})
)

// Scrape metrics.
var (
	ScrapesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrapes_total",
		Help:      "Total scrape attempts, by result (ok or failure kind).",
	}, []string{"result"})

	ScrapeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Duration of page fetch and extraction in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	RateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ratelimit_wait_seconds",
		Help:      "Time spent waiting on per-retailer token buckets.",
		Buckets:   []float64{.01, .1, .5, 1, 5, 15, 60},
	})
)

// Ingestion metrics.
var (
	PointsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_ingested_total",
		Help:      "Total price points stored.",
	})

	PointsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_duplicate_total",
		Help:      "Total duplicate price point appends treated as no-ops.",
	})

	ProductsStaleGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "products_stale",
		Help:      "Products currently flagged stale.",
	})
)

// Alert metrics.
var (
	AlertsEvaluatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_evaluated_total",
		Help:      "Total rule evaluations against new price points.",
	})

	AlertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_fired_total",
		Help:      "Total alert events created, by kind.",
	}, []string{"kind"})

	AlertsDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_deduped_total",
		Help:      "Total alert inserts skipped by the (rule, point) dedup key.",
	})
)

// Notification metrics.
var (
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_sent_total",
		Help:      "Total successful sink deliveries, by mode.",
	}, []string{"mode"})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_failures_total",
		Help:      "Total sink delivery failures, by mode.",
	}, []string{"mode"})

	DigestBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "digest_batch_size",
		Help:      "Events per digest delivery.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
	})
)

// Scheduler metrics. The label is job_name rather than job so it survives
// Prometheus target relabeling intact.
var (
	SchedulerJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_job_duration_seconds",
		Help:      "Duration of scheduler job runs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job_name"})

	SchedulerJobLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_job_last_success_timestamp_seconds",
		Help:      "Unix time of each job's last successful run.",
	}, []string{"job_name"})

	SchedulerLockMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_lock_misses_total",
		Help:      "Job runs skipped because another instance held the lock.",
	}, []string{"job_name"})

	TasksEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_enqueued_total",
		Help:      "Total tasks enqueued by the scheduler, by priority class.",
	}, []string{"priority"})
)
