package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		envVars   map[string]string
		wantErr   string
		checkFunc func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid minimal config",
			yaml: `
database:
  host: localhost
  name: testdb
  user: testuser
`,
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "testdb", cfg.Database.Name)
				assert.Equal(t, "testuser", cfg.Database.User)
				assert.Equal(t, "noop", cfg.Notify.Sink)
			},
		},
		{
			name: "defaults applied for optional fields",
			yaml: `
database:
  host: localhost
  name: testdb
  user: testuser
`,
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "disable", cfg.Database.SSLMode)
				assert.Equal(t, 10, cfg.Database.PoolSize)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "text", cfg.Logging.Format)

				assert.Equal(t, 2*time.Minute, cfg.Scheduler.LockTTL)
				assert.Equal(t, time.Minute, cfg.Scheduler.EnqueueInterval)
				assert.Equal(t, 1000, cfg.Scheduler.EnqueueBatch)
				assert.Equal(t, 6*time.Hour, cfg.Scheduler.PriorityInterval)

				assert.Equal(t, 8, cfg.Queue.ScrapeSlots)
				assert.Equal(t, 2, cfg.Queue.MaintenanceSlots)
				assert.Equal(t, 4, cfg.Queue.Weights.High)
				assert.Equal(t, 2, cfg.Queue.Weights.Default)
				assert.Equal(t, 1, cfg.Queue.Weights.Low)
				assert.Equal(t, 3, cfg.Queue.Scrape.MaxAttempts)
				assert.Equal(t, 5*time.Minute, cfg.Queue.Scrape.SoftTimeLimit)
				assert.Equal(t, 10*time.Minute, cfg.Queue.Scrape.HardTimeLimit)
				assert.Equal(t, 30*time.Second, cfg.Queue.Scrape.RetryBase)
				assert.Equal(t, 10*time.Minute, cfg.Queue.Scrape.RetryCeiling)
				assert.Equal(t, 25*time.Minute, cfg.Queue.Maintenance.SoftTimeLimit)
				assert.Equal(t, 30*time.Minute, cfg.Queue.Maintenance.HardTimeLimit)
				assert.Equal(t, time.Minute, cfg.Queue.Maintenance.RetryBase)

				assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
				assert.Equal(t, 30*time.Second, cfg.RateLimit.BackoffBase)
				assert.Equal(t, 10*time.Minute, cfg.RateLimit.BackoffCeiling)

				assert.ElementsMatch(t,
					[]string{"target_reached", "back_in_stock", "lowest_ever"},
					cfg.Alerts.ImmediateKinds,
				)
				assert.Equal(t, 3, cfg.Alerts.DeliveryMaxAttempts)
				assert.Equal(t, time.Hour, cfg.Alerts.DigestWindow)
				assert.Equal(t, 5, cfg.Alerts.StaleThreshold)

				assert.Equal(t, 730, cfg.Retention.PricePointDays)
			},
		},
		{
			name: "env var substitution",
			yaml: `
database:
  host: localhost
  name: testdb
  user: testuser
  password: "${TEST_DB_PASSWORD}"
`,
			envVars: map[string]string{
				"TEST_DB_PASSWORD": "secret123",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "secret123", cfg.Database.Password)
			},
		},
		{
			name: "missing required database.host",
			yaml: `
database:
  name: testdb
  user: testuser
`,
			wantErr: "database.host is required",
		},
		{
			name: "missing required database.name",
			yaml: `
database:
  host: localhost
  user: testuser
`,
			wantErr: "database.name is required",
		},
		{
			name: "missing required database.user",
			yaml: `
database:
  host: localhost
  name: testdb
`,
			wantErr: "database.user is required",
		},
		{
			name: "webhook sink requires url",
			yaml: `
database:
  host: localhost
  name: testdb
  user: testuser
notify:
  sink: webhook
`,
			wantErr: "notify.webhook.url is required when sink is webhook",
		},
		{
			name: "unknown sink rejected",
			yaml: `
database:
  host: localhost
  name: testdb
  user: testuser
notify:
  sink: pigeon
`,
			wantErr: `notify.sink must be one of: webhook, noop (got "pigeon")`,
		},
		{
			name: "unknown immediate kind rejected",
			yaml: `
database:
  host: localhost
  name: testdb
  user: testuser
alerts:
  immediate_kinds: ["price_drop", "price_rise"]
`,
			wantErr: `alerts.immediate_kinds contains unknown kind "price_rise"`,
		},
		{
			name: "hard limit below soft limit rejected",
			yaml: `
database:
  host: localhost
  name: testdb
  user: testuser
queue:
  scrape:
    soft_time_limit: 10m
    hard_time_limit: 5m
`,
			wantErr: "queue.scrape.hard_time_limit must be >= soft_time_limit",
		},
		{
			name: "telemetry enabled requires endpoint",
			yaml: `
database:
  host: localhost
  name: testdb
  user: testuser
telemetry:
  enabled: true
`,
			wantErr: "telemetry.endpoint is required when telemetry is enabled",
		},
		{
			name:    "invalid YAML",
			yaml:    `{{{not valid yaml`,
			wantErr: "parsing config YAML",
		},
		{
			name: "full config with overrides",
			yaml: `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 60s
database:
  host: db.example.com
  port: 5433
  name: pricewatch_prod
  user: admin
  password: pass
  sslmode: require
  pool_size: 20
scheduler:
  enabled: true
  enqueue_interval: 2m
  enqueue_batch: 500
queue:
  scrape_slots: 16
  weights:
    high: 6
    default: 3
    low: 2
  scrape:
    max_attempts: 5
scraper:
  timeout: 15s
  user_agent: "pricewatch-dev"
ratelimit:
  requests_per_minute: 12
  burst: 2
  backoff_base: 10s
alerts:
  immediate_kinds: ["target_reached"]
  digest_window: 2h
  stale_threshold: 3
notify:
  sink: webhook
  webhook:
    url: https://hooks.example.com/pw
    timeout: 5s
logging:
  level: debug
  format: json
retention:
  price_point_days: 365
`,
			checkFunc: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "db.example.com", cfg.Database.Host)
				assert.Equal(t, "require", cfg.Database.SSLMode)
				assert.True(t, cfg.Scheduler.Enabled)
				assert.Equal(t, 2*time.Minute, cfg.Scheduler.EnqueueInterval)
				assert.Equal(t, 500, cfg.Scheduler.EnqueueBatch)
				assert.Equal(t, 16, cfg.Queue.ScrapeSlots)
				assert.Equal(t, 6, cfg.Queue.Weights.High)
				assert.Equal(t, 5, cfg.Queue.Scrape.MaxAttempts)
				assert.Equal(t, 15*time.Second, cfg.Scraper.Timeout)
				assert.Equal(t, "pricewatch-dev", cfg.Scraper.UserAgent)
				assert.Equal(t, 12, cfg.RateLimit.RequestsPerMinute)
				assert.Equal(t, 10*time.Second, cfg.RateLimit.BackoffBase)
				assert.Equal(t, []string{"target_reached"}, cfg.Alerts.ImmediateKinds)
				assert.Equal(t, 2*time.Hour, cfg.Alerts.DigestWindow)
				assert.Equal(t, 3, cfg.Alerts.StaleThreshold)
				assert.Equal(t, "webhook", cfg.Notify.Sink)
				assert.Equal(t, "https://hooks.example.com/pw", cfg.Notify.Webhook.URL)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, 365, cfg.Retention.PricePointDays)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Only parallelize tests that don't modify env vars.
			if len(tt.envVars) == 0 {
				t.Parallel()
			}

			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			cfg, err := Load(path)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.checkFunc != nil {
				tt.checkFunc(t, cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "basic DSN",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Name:     "testdb",
				User:     "testuser",
				Password: "testpass",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 dbname=testdb user=testuser password=testpass sslmode=disable",
		},
		{
			name: "production DSN",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				Name:     "pricewatch",
				User:     "admin",
				Password: "s3cret",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=5433 dbname=pricewatch user=admin password=s3cret sslmode=require",
		},
		{
			name: "pool size carried as pool_max_conns",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Name:     "testdb",
				User:     "testuser",
				Password: "testpass",
				SSLMode:  "disable",
				PoolSize: 25,
			},
			want: "host=localhost port=5432 dbname=testdb user=testuser password=testpass sslmode=disable pool_max_conns=25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestQueueConfig_Policy(t *testing.T) {
	t.Parallel()

	q := QueueConfig{}
	applyQueueDefaults(&q)

	scrape := q.Policy("high")
	assert.Equal(t, 3, scrape.MaxAttempts)
	assert.Equal(t, 5*time.Minute, scrape.SoftTimeLimit)

	maint := q.Policy("maintenance")
	assert.Equal(t, 5, maint.MaxAttempts)
	assert.Equal(t, 30*time.Minute, maint.HardTimeLimit)
}
