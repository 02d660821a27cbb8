// Package config handles loading and validating the application configuration
// from YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	domain "pricewatch/pkg/types"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queue     QueueConfig     `yaml:"queue"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Notify    NotifyConfig    `yaml:"notify"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig defines the Echo HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig defines PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
}

// DSN returns a PostgreSQL connection string. PoolSize is carried as
// pool_max_conns so pgxpool picks it up without extra plumbing.
func (d *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
	if d.PoolSize > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", d.PoolSize)
	}
	return dsn
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// SchedulerConfig defines the cron job cadences and the leader lock.
// Due-ness itself is derived from persisted product state, so these only
// control how often the scheduler looks.
type SchedulerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	EnqueueInterval   time.Duration `yaml:"enqueue_interval"`
	EnqueueBatch      int           `yaml:"enqueue_batch"`
	RecoverInterval   time.Duration `yaml:"recover_interval"`
	RedeliverInterval time.Duration `yaml:"redeliver_interval"`
	PriorityInterval  time.Duration `yaml:"priority_interval"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
}

// TaskPolicy is the retry/time-limit policy for one task class. Kept as an
// explicit struct so tests can inject deterministic policies.
type TaskPolicy struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	SoftTimeLimit time.Duration `yaml:"soft_time_limit"`
	HardTimeLimit time.Duration `yaml:"hard_time_limit"`
	RetryBase     time.Duration `yaml:"retry_base"`
	RetryCeiling  time.Duration `yaml:"retry_ceiling"`
}

// QueueWeights sets the round-robin quota per scrape class. Every class
// with a positive weight is guaranteed a turn each cycle, which bounds the
// wait of low-priority work under high-priority load.
type QueueWeights struct {
	High    int `yaml:"high"`
	Default int `yaml:"default"`
	Low     int `yaml:"low"`
}

// QueueConfig defines worker pool sizing and per-class policies.
type QueueConfig struct {
	ScrapeSlots      int           `yaml:"scrape_slots"`
	MaintenanceSlots int           `yaml:"maintenance_slots"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	LeaseGrace       time.Duration `yaml:"lease_grace"`
	Weights          QueueWeights  `yaml:"weights"`
	Scrape           TaskPolicy    `yaml:"scrape"`
	Maintenance      TaskPolicy    `yaml:"maintenance"`
}

// Policy returns the task policy for the given priority class.
func (q *QueueConfig) Policy(p domain.Priority) TaskPolicy {
	if p == domain.PriorityMaintenance {
		return q.Maintenance
	}
	return q.Scrape
}

// ScraperConfig defines page fetching and extraction settings.
type ScraperConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	UserAgent       string        `yaml:"user_agent"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxParseRetries int           `yaml:"max_parse_retries"`
	PriceSelectors  []string      `yaml:"price_selectors"`
}

// RateLimitConfig defines the default per-retailer token bucket and the
// failure backoff policy. Retailer rows can override the bucket.
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffCeiling    time.Duration `yaml:"backoff_ceiling"`
}

// AlertsConfig defines evaluation and delivery behavior.
type AlertsConfig struct {
	ImmediateKinds      []string      `yaml:"immediate_kinds"`
	DigestWindow        time.Duration `yaml:"digest_window"`
	DeliveryMaxAttempts int           `yaml:"delivery_max_attempts"`
	DeliveryBackoff     time.Duration `yaml:"delivery_backoff"`
	StaleThreshold      int           `yaml:"stale_threshold"`
	TightThresholdPct   float64       `yaml:"tight_threshold_pct"`
}

// ImmediateAlertKinds returns the configured immediate kinds as typed
// alert kinds.
func (a *AlertsConfig) ImmediateAlertKinds() []domain.AlertKind {
	kinds := make([]domain.AlertKind, len(a.ImmediateKinds))
	for i, k := range a.ImmediateKinds {
		kinds[i] = domain.AlertKind(k)
	}
	return kinds
}

// NotifyConfig defines the delivery sink.
type NotifyConfig struct {
	Sink    string        `yaml:"sink"` // webhook, noop
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig defines generic webhook sink settings.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// TelemetryConfig defines optional OTLP export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// RetentionConfig defines how long derived and audit data is kept.
// Price points keep two years by default; the sweep runs as a
// maintenance-class task.
type RetentionConfig struct {
	PricePointDays  int `yaml:"price_point_days"`
	JobRunDays      int `yaml:"job_run_days"`
	AttemptDays     int `yaml:"attempt_days"`
	TaskFailureDays int `yaml:"task_failure_days"`
}

// Load reads and parses a YAML config file, performing environment variable
// substitution and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyLoggingDefaults(&cfg.Logging)
	applySchedulerDefaults(&cfg.Scheduler)
	applyQueueDefaults(&cfg.Queue)
	applyScraperDefaults(&cfg.Scraper)
	applyRateLimitDefaults(&cfg.RateLimit)
	applyAlertsDefaults(&cfg.Alerts)
	applyNotifyDefaults(&cfg.Notify)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyRetentionDefaults(&cfg.Retention)
}

func applyServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(d *DatabaseConfig) {
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.PoolSize == 0 {
		d.PoolSize = 10
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func applySchedulerDefaults(s *SchedulerConfig) {
	if s.LockTTL == 0 {
		s.LockTTL = 2 * time.Minute
	}
	if s.EnqueueInterval == 0 {
		s.EnqueueInterval = time.Minute
	}
	if s.EnqueueBatch == 0 {
		s.EnqueueBatch = 1000
	}
	if s.RecoverInterval == 0 {
		s.RecoverInterval = 5 * time.Minute
	}
	if s.RedeliverInterval == 0 {
		s.RedeliverInterval = 5 * time.Minute
	}
	if s.PriorityInterval == 0 {
		s.PriorityInterval = 6 * time.Hour
	}
	if s.RetentionInterval == 0 {
		s.RetentionInterval = 24 * time.Hour
	}
}

func applyQueueDefaults(q *QueueConfig) {
	if q.ScrapeSlots == 0 {
		q.ScrapeSlots = 8
	}
	if q.MaintenanceSlots == 0 {
		q.MaintenanceSlots = 2
	}
	if q.PollInterval == 0 {
		q.PollInterval = 2 * time.Second
	}
	if q.LeaseGrace == 0 {
		q.LeaseGrace = time.Minute
	}
	if q.Weights.High == 0 {
		q.Weights.High = 4
	}
	if q.Weights.Default == 0 {
		q.Weights.Default = 2
	}
	if q.Weights.Low == 0 {
		q.Weights.Low = 1
	}
	if q.Scrape.MaxAttempts == 0 {
		q.Scrape.MaxAttempts = 3
	}
	if q.Scrape.SoftTimeLimit == 0 {
		q.Scrape.SoftTimeLimit = 5 * time.Minute
	}
	if q.Scrape.HardTimeLimit == 0 {
		q.Scrape.HardTimeLimit = 10 * time.Minute
	}
	if q.Scrape.RetryBase == 0 {
		q.Scrape.RetryBase = 30 * time.Second
	}
	if q.Scrape.RetryCeiling == 0 {
		q.Scrape.RetryCeiling = 10 * time.Minute
	}
	if q.Maintenance.MaxAttempts == 0 {
		q.Maintenance.MaxAttempts = 5
	}
	if q.Maintenance.SoftTimeLimit == 0 {
		q.Maintenance.SoftTimeLimit = 25 * time.Minute
	}
	if q.Maintenance.HardTimeLimit == 0 {
		q.Maintenance.HardTimeLimit = 30 * time.Minute
	}
	if q.Maintenance.RetryBase == 0 {
		q.Maintenance.RetryBase = time.Minute
	}
	if q.Maintenance.RetryCeiling == 0 {
		q.Maintenance.RetryCeiling = 30 * time.Minute
	}
}

func applyScraperDefaults(s *ScraperConfig) {
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.UserAgent == "" {
		s.UserAgent = "pricewatch/1.0 (+https://github.com/pricewatch)"
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = 4 << 20 // 4 MiB
	}
	if s.MaxParseRetries == 0 {
		s.MaxParseRetries = 2
	}
}

func applyRateLimitDefaults(r *RateLimitConfig) {
	if r.RequestsPerMinute == 0 {
		r.RequestsPerMinute = 30
	}
	if r.Burst == 0 {
		r.Burst = 5
	}
	if r.BackoffBase == 0 {
		r.BackoffBase = 30 * time.Second
	}
	if r.BackoffCeiling == 0 {
		r.BackoffCeiling = 10 * time.Minute
	}
}

func applyAlertsDefaults(a *AlertsConfig) {
	if len(a.ImmediateKinds) == 0 {
		a.ImmediateKinds = []string{
			string(domain.AlertTargetReached),
			string(domain.AlertBackInStock),
			string(domain.AlertLowestEver),
		}
	}
	if a.DigestWindow == 0 {
		a.DigestWindow = time.Hour
	}
	if a.DeliveryMaxAttempts == 0 {
		a.DeliveryMaxAttempts = 3
	}
	if a.DeliveryBackoff == 0 {
		a.DeliveryBackoff = time.Minute
	}
	if a.StaleThreshold == 0 {
		a.StaleThreshold = 5
	}
	if a.TightThresholdPct == 0 {
		a.TightThresholdPct = 5.0
	}
}

func applyNotifyDefaults(n *NotifyConfig) {
	if n.Sink == "" {
		n.Sink = "noop"
	}
	if n.Webhook.Timeout == 0 {
		n.Webhook.Timeout = 10 * time.Second
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.SampleRatio == 0 {
		t.SampleRatio = 0.1
	}
}

func applyRetentionDefaults(r *RetentionConfig) {
	if r.PricePointDays == 0 {
		r.PricePointDays = 730
	}
	if r.JobRunDays == 0 {
		r.JobRunDays = 90
	}
	if r.AttemptDays == 0 {
		r.AttemptDays = 30
	}
	if r.TaskFailureDays == 0 {
		r.TaskFailureDays = 30
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if cfg.Database.Name == "" {
		errs = append(errs, fmt.Errorf("database.name is required"))
	}
	if cfg.Database.User == "" {
		errs = append(errs, fmt.Errorf("database.user is required"))
	}

	switch cfg.Notify.Sink {
	case "noop":
	case "webhook":
		if cfg.Notify.Webhook.URL == "" {
			errs = append(errs, fmt.Errorf("notify.webhook.url is required when sink is webhook"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.sink must be one of: webhook, noop (got %q)", cfg.Notify.Sink))
	}

	for _, k := range cfg.Alerts.ImmediateKinds {
		if !domain.AlertKind(k).Valid() {
			errs = append(errs, fmt.Errorf("alerts.immediate_kinds contains unknown kind %q", k))
		}
	}

	if cfg.Queue.Scrape.HardTimeLimit < cfg.Queue.Scrape.SoftTimeLimit {
		errs = append(errs, fmt.Errorf("queue.scrape.hard_time_limit must be >= soft_time_limit"))
	}
	if cfg.Queue.Maintenance.HardTimeLimit < cfg.Queue.Maintenance.SoftTimeLimit {
		errs = append(errs, fmt.Errorf("queue.maintenance.hard_time_limit must be >= soft_time_limit"))
	}
	if cfg.Queue.Weights.High <= 0 || cfg.Queue.Weights.Default <= 0 || cfg.Queue.Weights.Low <= 0 {
		errs = append(errs, fmt.Errorf("queue.weights must all be positive"))
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, fmt.Errorf("telemetry.endpoint is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}
