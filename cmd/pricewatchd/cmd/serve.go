package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pricewatch/api/openapi"
	"pricewatch/internal/analytics"
	"pricewatch/internal/api/handlers"
	"pricewatch/internal/api/middleware"
	"pricewatch/internal/config"
	"pricewatch/internal/engine"
	"pricewatch/internal/notify"
	"pricewatch/internal/queue"
	"pricewatch/internal/ratelimit"
	"pricewatch/internal/scraper"
	"pricewatch/internal/store"
	"pricewatch/internal/telemetry"
	"pricewatch/internal/web"
	"pricewatch/pkg/logger"
	domain "pricewatch/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server, worker pool, and scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
		ServiceName: "pricewatchd",
		Version:     Version,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	st, err := store.NewPostgresStore(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	limiter := ratelimit.New(
		ratelimit.Limits{
			PerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:     cfg.RateLimit.Burst,
		},
		cfg.RateLimit.BackoffBase,
		cfg.RateLimit.BackoffCeiling,
	)

	dispatcher := notify.NewDispatcher(st, newSink(cfg, log),
		notify.WithLogger(logger.Component(log, "notify")),
		notify.WithImmediateKinds(cfg.Alerts.ImmediateAlertKinds()),
		notify.WithDeliveryPolicy(cfg.Alerts.DeliveryMaxAttempts, cfg.Alerts.DeliveryBackoff),
	)

	eng := engine.NewEngine(st, newFetcher(cfg, log), limiter, dispatcher,
		engine.WithLogger(logger.Component(log, "engine")),
		engine.WithStaleThreshold(cfg.Alerts.StaleThreshold),
		engine.WithTightThresholdPct(cfg.Alerts.TightThresholdPct),
		engine.WithMaxParseRetries(cfg.Scraper.MaxParseRetries),
		engine.WithEnqueueBatch(cfg.Scheduler.EnqueueBatch),
		engine.WithTaskAttempts(cfg.Queue.Scrape.MaxAttempts, cfg.Queue.Maintenance.MaxAttempts),
		engine.WithRetention(engine.Retention{
			PricePoints:  days(cfg.Retention.PricePointDays),
			JobRuns:      days(cfg.Retention.JobRunDays),
			Attempts:     days(cfg.Retention.AttemptDays),
			TaskFailures: days(cfg.Retention.TaskFailureDays),
		}),
	)

	pool := queue.NewPool(st, queueConfig(&cfg.Queue),
		queue.WithLogger(logger.Component(log, "queue")),
	)
	pool.Register(domain.TaskScrape, eng.RunScrape)
	pool.Register(domain.TaskRetentionSweep, eng.RunRetentionSweep)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	pool.Start(workerCtx)

	var sched *engine.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = engine.NewScheduler(eng, st, dispatcher, engine.SchedulerConfig{
			LockTTL:           cfg.Scheduler.LockTTL,
			EnqueueInterval:   cfg.Scheduler.EnqueueInterval,
			RecoverInterval:   cfg.Scheduler.RecoverInterval,
			RedeliverInterval: cfg.Scheduler.RedeliverInterval,
			DigestInterval:    cfg.Alerts.DigestWindow,
			PriorityInterval:  cfg.Scheduler.PriorityInterval,
			RetentionInterval: cfg.Scheduler.RetentionInterval,
		}, logger.Component(log, "scheduler"))
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}
		sched.Start()
	} else {
		log.Warn("scheduler disabled; tasks run only when triggered through the API")
	}

	e := newRouter(cfg, st, eng, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("starting server", "addr", addr, "version", Version)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if sched != nil {
		<-sched.Stop().Done()
	}
	stopWorkers()
	pool.Stop()

	log.Info("server stopped")
	return nil
}

// newFetcher builds the page fetcher, threading the otel transport in
// when export is on so outbound scrapes carry spans.
func newFetcher(cfg *config.Config, log *slog.Logger) scraper.Fetcher {
	hc := &http.Client{Timeout: cfg.Scraper.Timeout}
	if cfg.Telemetry.Enabled {
		hc.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	return scraper.NewEngine(
		scraper.WithHTTPClient(hc),
		scraper.WithUserAgent(cfg.Scraper.UserAgent),
		scraper.WithMaxBodyBytes(cfg.Scraper.MaxBodyBytes),
		scraper.WithPriceSelectors(cfg.Scraper.PriceSelectors),
		scraper.WithLogger(logger.Component(log, "scraper")),
	)
}

func newSink(cfg *config.Config, log *slog.Logger) notify.Sink {
	if cfg.Notify.Sink == "webhook" {
		return notify.NewWebhookSink(cfg.Notify.Webhook.URL,
			notify.WithTimeout(cfg.Notify.Webhook.Timeout),
			notify.WithHeaders(cfg.Notify.Webhook.Headers),
		)
	}
	return notify.NewNoopSink(logger.Component(log, "notify"))
}

func newRouter(cfg *config.Config, st *store.PostgresStore, eng *engine.Engine, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	e.Use(middleware.RequestLog(logger.Component(log, "http")))
	e.Use(middleware.Recovery(log))
	e.Use(middleware.Metrics())

	health := handlers.NewHealthHandler(st)
	e.GET("/healthz", health.Healthz)
	e.GET("/readyz", health.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := humaecho.New(e, huma.DefaultConfig("pricewatch", Version))
	handlers.RegisterProductRoutes(api, handlers.NewProductsHandler(st))
	handlers.RegisterRetailerRoutes(api, handlers.NewRetailersHandler(st))
	handlers.RegisterRuleRoutes(api, handlers.NewRulesHandler(st))
	handlers.RegisterEventRoutes(api, handlers.NewEventsHandler(st))
	handlers.RegisterQueueRoutes(api, handlers.NewQueueHandler(st))
	handlers.RegisterJobRoutes(api, handlers.NewJobsHandler(st))
	handlers.RegisterAnalyticsRoutes(api, handlers.NewAnalyticsHandler(analytics.NewService(st)))
	handlers.RegisterTriggerRoutes(api, handlers.NewTriggerHandler(eng))

	openapi.RegisterRoutes(e, api)
	web.NewHandler(st, Version, log).Register(e)

	return e
}

func queueConfig(q *config.QueueConfig) queue.Config {
	return queue.Config{
		ScrapeSlots:      q.ScrapeSlots,
		MaintenanceSlots: q.MaintenanceSlots,
		PollInterval:     q.PollInterval,
		LeaseGrace:       q.LeaseGrace,
		Weights: queue.Weights{
			High:    q.Weights.High,
			Default: q.Weights.Default,
			Low:     q.Weights.Low,
		},
		Scrape:      taskPolicy(q.Scrape),
		Maintenance: taskPolicy(q.Maintenance),
	}
}

func taskPolicy(p config.TaskPolicy) queue.Policy {
	return queue.Policy{
		MaxAttempts:  p.MaxAttempts,
		SoftLimit:    p.SoftTimeLimit,
		HardLimit:    p.HardTimeLimit,
		RetryBase:    p.RetryBase,
		RetryCeiling: p.RetryCeiling,
	}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
