package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"pricewatch/internal/api/handlers"
	"pricewatch/internal/api/middleware"
	"pricewatch/internal/config"
	"pricewatch/internal/engine"
	"pricewatch/internal/notify"
	"pricewatch/internal/queue"
	"pricewatch/internal/ratelimit"
	"pricewatch/internal/store"
	"pricewatch/internal/telemetry"
	"pricewatch/pkg/logger"
	domain "pricewatch/pkg/types"
)

var workerListen string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a standalone worker pool without the API server or scheduler",
	Long:  "Runs only the task queue workers, pulling from the shared database queue. Use it to scale scrape throughput horizontally next to a serve instance; migrations must already be applied.",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerListen, "listen", ":9090", "address for the health and metrics listener")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) error {
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
		ServiceName: "pricewatchd-worker",
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

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(log))

	health := handlers.NewHealthHandler(st)
	e.GET("/healthz", health.Healthz)
	e.GET("/readyz", health.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	log.Info("starting worker", "listen", workerListen, "version", Version,
		"scrape_slots", cfg.Queue.ScrapeSlots, "maintenance_slots", cfg.Queue.MaintenanceSlots)

	go func() {
		if err := e.Start(workerListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops listener error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("ops listener shutdown failed", "error", err)
	}
	stopWorkers()
	pool.Stop()

	log.Info("worker stopped")
	return nil
}
