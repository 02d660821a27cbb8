package main

import "errors"

// KnownMetrics is the set of metric names exported by pricewatch plus
// recording rule names referenced in dashboards and alerts.
var KnownMetrics = map[string]bool{
	// HTTP metrics.
	"pw_http_request_duration_seconds": true,
	"pw_http_requests_total":           true,

	// Health metrics.
	"pw_healthz_up": true,
	"pw_readyz_up":  true,

	// Queue metrics.
	"pw_queue_depth":                      true,
	"pw_queue_oldest_pending_age_seconds": true,
	"pw_tasks_dequeued_total":             true,
	"pw_tasks_completed_total":            true,
	"pw_task_duration_seconds":            true,
	"pw_tasks_recovered_total":            true,
	"pw_tasks_enqueued_total":             true,

	// Scrape metrics.
	"pw_scrapes_total":           true,
	"pw_scrape_duration_seconds": true,
	"pw_ratelimit_wait_seconds":  true,

	// Ingestion metrics.
	"pw_points_ingested_total":  true,
	"pw_points_duplicate_total": true,
	"pw_products_stale":         true,

	// Alert and notification metrics.
	"pw_alerts_evaluated_total":      true,
	"pw_alerts_fired_total":          true,
	"pw_alerts_deduped_total":        true,
	"pw_notifications_sent_total":    true,
	"pw_notification_failures_total": true,
	"pw_digest_batch_size":           true,

	// Scheduler metrics.
	"pw_scheduler_job_duration_seconds":               true,
	"pw_scheduler_job_last_success_timestamp_seconds": true,
	"pw_scheduler_lock_misses_total":                  true,

	// Recording rules.
	"pw:http_requests:rate5m":   true,
	"pw:http_errors:rate5m":     true,
	"pw:scrapes:rate5m":         true,
	"pw:scrape_failures:rate5m": true,
	"pw:points_ingested:rate5m": true,
	"pw:tasks_completed:rate5m": true,
	"pw:alerts_fired:rate5m":    true,

	// Standard Prometheus metrics referenced in dashboards.
	"up":                         true,
	"process_start_time_seconds": true,
}

// Config controls which artifacts the generator produces and where they go.
type Config struct {
	OutputDir        string
	DashboardEnabled bool
	RulesEnabled     bool
}

// DefaultConfig returns a Config that generates all artifacts into ../../deploy
// (relative to tools/dashgen/).
func DefaultConfig() Config {
	return Config{
		OutputDir:        "../../deploy",
		DashboardEnabled: true,
		RulesEnabled:     true,
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output directory must be set")
	}
	if !c.DashboardEnabled && !c.RulesEnabled {
		return errors.New("at least one of dashboard or rules must be enabled")
	}
	return nil
}
