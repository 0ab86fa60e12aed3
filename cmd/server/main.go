// Package main provides the entry point for the backtest orchestration service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/backtest-pilot/internal/api"
	"github.com/yourusername/backtest-pilot/internal/backtest"
	"github.com/yourusername/backtest-pilot/internal/config"
	"github.com/yourusername/backtest-pilot/internal/datacache"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/health"
	"github.com/yourusername/backtest-pilot/internal/logger"
	"github.com/yourusername/backtest-pilot/internal/metrics"
	"github.com/yourusername/backtest-pilot/internal/orchestrator"
	"github.com/yourusername/backtest-pilot/internal/queue"
	"github.com/yourusername/backtest-pilot/internal/repository"
	"github.com/yourusername/backtest-pilot/internal/scheduler"
	"github.com/yourusername/backtest-pilot/internal/stream"
	"github.com/yourusername/backtest-pilot/internal/watchdog"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load AWS secrets if enabled
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set up logging
	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
		"version":     version,
	}).Info("Backtest Pilot starting")

	metrics.InitRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection and verify migrations
	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	appLog.Info("Database connection established")

	// Initialize repositories
	repos, err := repository.NewRepositories(db)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize repositories")
	}

	// Status publication: websocket hub always, webhook only when configured
	hub := stream.NewHub(appLog)
	targets := []stream.StatusPublisher{hub}
	if cfg.Stream.Enabled && cfg.Stream.WebhookURL != "" {
		targets = append(targets, stream.NewWebhookPublisher(&cfg.Stream, appLog))
		appLog.WithField("webhook_url", cfg.Stream.WebhookURL).Info("Webhook status publication enabled")
	}
	publisher := stream.NewFanoutPublisher(targets...)

	// Execution queues hand jobs to the simulation worker over HTTP. The
	// manager and orchestrator are created after the queues, so their
	// handlers bind late through these variables.
	var (
		manager *backtest.Manager
		orch    *orchestrator.Orchestrator
	)

	forwarder := queue.NewForwarder(cfg.Queue.WorkerURL, appLog)

	exhausted := func(job queue.Job, jobErr error) {
		runID, parseErr := uuid.Parse(job.ID)
		if parseErr != nil {
			appLog.WithField("job_id", job.ID).WithError(jobErr).Error("Retries exhausted for unparseable job id")
			return
		}
		if failErr := manager.MarkFailed(context.Background(), runID, fmt.Sprintf("job dispatch failed after retries: %v", jobErr)); failErr != nil {
			appLog.WithField("run_id", runID).WithError(failErr).Error("Failed to mark run failed after dispatch retries")
		}
	}

	backoff := time.Duration(cfg.Queue.BackoffBaseSeconds) * time.Second
	historicalQueue := queue.NewMemoryQueue(queue.QueueHistorical, queue.MemoryQueueConfig{
		Workers:     cfg.Queue.HistoricalWorkers,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: backoff,
	}, forwarder.Handle, exhausted, appLog)

	replayQueue := queue.NewMemoryQueue(queue.QueueReplay, queue.MemoryQueueConfig{
		Workers:     cfg.Queue.ReplayWorkers,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: backoff,
	}, forwarder.Handle, exhausted, appLog)

	orchestrationHandler := func(ctx context.Context, job queue.Job) error {
		var payload queue.OrchestrationJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode orchestration payload: %w", err)
		}
		accountID, err := uuid.Parse(payload.AccountID)
		if err != nil {
			return fmt.Errorf("invalid account id %q: %w", payload.AccountID, err)
		}
		_, err = orch.ProcessAccount(ctx, accountID, payload.RiskLevel)
		return err
	}

	orchestrationExhausted := func(job queue.Job, jobErr error) {
		appLog.WithField("job_id", job.ID).WithError(jobErr).Error("Orchestration job abandoned after retries")
	}

	orchestrationQueue := queue.NewMemoryQueue(queue.QueueOrchestration, queue.MemoryQueueConfig{
		Workers:     cfg.Scheduler.OrchestrationWorkers,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: backoff,
	}, orchestrationHandler, orchestrationExhausted, appLog)

	dispatcher := queue.NewDispatcher(
		historicalQueue,
		replayQueue,
		orchestrationQueue,
		time.Duration(cfg.Queue.DrainPollSeconds)*time.Second,
		time.Duration(cfg.Queue.DrainTimeoutSeconds)*time.Second,
		appLog,
	)

	manager = backtest.NewManager(repos, dispatcher, publisher, cfg.Backtest, appLog)
	orch = orchestrator.NewOrchestrator(repos, manager, dispatcher, cfg.Scheduler, appLog)
	orch.SetDatasetEnsurer(datacache.NewDefaultDatasetManager(
		repos.Dataset,
		repos.Candles,
		time.Duration(cfg.Backtest.DatasetCacheTTLMins)*time.Minute,
		appLog,
	))
	wd := watchdog.NewWatchdog(repos.Run, cfg.Watchdog, appLog)

	// Schedule the daily orchestration cycle and the stale-run sweep
	sched := scheduler.NewScheduler(appLog)
	if err := sched.ScheduleOrchestration(cfg.Scheduler.CronExpression, orch); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule orchestration")
	}
	if err := sched.ScheduleWatchdog(cfg.Watchdog.IntervalMinutes, wd); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule watchdog")
	}
	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}

	// Health server
	healthServer := health.NewServer(health.Options{
		ServiceName: cfg.App.Name,
		Version:     version,
		Addr:        ":" + cfg.Health.Port,
		Logger:      appLog,
		DB:          db,
		Queues:      dispatcher,
	})
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}

	// Prometheus exposition on its own listener, off unless configured
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Address, appLog)
		if err := metricsServer.Start(ctx); err != nil {
			appLog.WithError(err).Fatal("Failed to start metrics server")
		}
	}

	// REST API
	apiServer := api.NewServer(manager, manager, cfg.API, cfg.App.Environment, appLog)
	apiServer.MountWebsocket(hub.ServeWS)

	apiErr := make(chan error, 1)
	go func() {
		apiErr <- apiServer.Start(ctx)
	}()

	healthServer.SetReady(true)
	appLog.WithFields(logrus.Fields{
		"api_addr":         cfg.API.Address,
		"health_port":      cfg.Health.Port,
		"orchestration":    cfg.Scheduler.CronExpression,
		"watchdog_minutes": cfg.Watchdog.IntervalMinutes,
		"next_run":         sched.GetNextRun(),
	}).Info("Backtest Pilot started successfully")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		appLog.WithField("signal", sig).Info("Shutdown signal received")
	case err := <-apiErr:
		if err != nil {
			appLog.WithError(err).Error("API server exited")
		}
	}

	// Graceful shutdown
	appLog.Info("Initiating graceful shutdown...")
	healthServer.SetReady(false)

	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Error during scheduler shutdown")
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Queue.DrainTimeoutSeconds)*time.Second)
	dispatcher.Shutdown(drainCtx)
	drainCancel()

	for _, q := range []*queue.MemoryQueue{historicalQueue, replayQueue, orchestrationQueue} {
		q.Close()
	}

	// Stops the API and health servers
	cancel()

	// Give components time to cleanup
	time.Sleep(2 * time.Second)

	appLog.Info("Backtest Pilot shut down successfully")
}
