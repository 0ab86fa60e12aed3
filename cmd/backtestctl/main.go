// Package main provides backtestctl, the operational CLI for one-shot
// orchestration cycles, stale-run sweeps and strategy promotion.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/backtest-pilot/internal/backtest"
	"github.com/yourusername/backtest-pilot/internal/config"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/logger"
	"github.com/yourusername/backtest-pilot/internal/metrics"
	"github.com/yourusername/backtest-pilot/internal/orchestrator"
	"github.com/yourusername/backtest-pilot/internal/promotion"
	"github.com/yourusername/backtest-pilot/internal/queue"
	"github.com/yourusername/backtest-pilot/internal/repository"
	"github.com/yourusername/backtest-pilot/internal/stream"
	"github.com/yourusername/backtest-pilot/internal/watchdog"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile string
	appLog     *logrus.Logger
	cfg        *config.Config
	db         *database.DB
	repos      *repository.Repositories
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(orchestrateCmd, sweepCmd, promoteCmd, versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "backtestctl",
	Short: "Operate the backtest orchestration pipeline",
	Long:  `Runs one-shot operational tasks against the backtest pipeline without waiting for the scheduler.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := setup(cmd.Context()); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func setup(ctx context.Context) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLog = logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	metrics.InitRegistry()

	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	repos, err = repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	return nil
}

// newManager builds a run lifecycle manager whose dispatch path hands jobs to
// the simulation worker, same as the service does.
func newManager() (*backtest.Manager, func()) {
	forwarder := queue.NewForwarder(cfg.Queue.WorkerURL, appLog)
	backoff := time.Duration(cfg.Queue.BackoffBaseSeconds) * time.Second
	queueCfg := queue.MemoryQueueConfig{
		Workers:     cfg.Queue.HistoricalWorkers,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: backoff,
	}

	exhausted := func(job queue.Job, err error) {
		appLog.WithField("job_id", job.ID).WithError(err).Error("Job abandoned after retries")
	}

	historical := queue.NewMemoryQueue(queue.QueueHistorical, queueCfg, forwarder.Handle, exhausted, appLog)
	replay := queue.NewMemoryQueue(queue.QueueReplay, queueCfg, forwarder.Handle, exhausted, appLog)
	orchestration := queue.NewMemoryQueue(queue.QueueOrchestration, queueCfg, func(ctx context.Context, job queue.Job) error {
		return nil
	}, exhausted, appLog)

	dispatcher := queue.NewDispatcher(
		historical,
		replay,
		orchestration,
		time.Duration(cfg.Queue.DrainPollSeconds)*time.Second,
		time.Duration(cfg.Queue.DrainTimeoutSeconds)*time.Second,
		appLog,
	)

	manager := backtest.NewManager(repos, dispatcher, stream.NopPublisher{}, cfg.Backtest, appLog)

	drain := func() {
		deadline := time.Now().Add(time.Duration(cfg.Queue.DrainTimeoutSeconds) * time.Second)
		for time.Now().Before(deadline) {
			if historical.QueuedCount()+historical.ActiveCount()+replay.QueuedCount()+replay.ActiveCount() == 0 {
				break
			}
			time.Sleep(time.Duration(cfg.Queue.DrainPollSeconds) * time.Second)
		}
		historical.Close()
		replay.Close()
		orchestration.Close()
	}
	return manager, drain
}

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run one orchestration cycle now",
	Long:  `Processes every auto-trading account immediately, without stagger delays, and waits for the created runs to reach the simulation worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		manager, drain := newManager()
		defer drain()

		orch := orchestrator.NewOrchestrator(repos, manager, noopDispatcher{}, cfg.Scheduler, appLog)

		accounts, err := repos.Account.ListAutoTrading(ctx)
		if err != nil {
			return fmt.Errorf("failed to list auto-trading accounts: %w", err)
		}

		total := orchestrator.Result{}
		for _, acct := range accounts {
			level := acct.RiskLevel
			if level == 0 {
				level = cfg.Scheduler.DefaultRiskLevel
			}
			result, err := orch.ProcessAccount(ctx, acct.ID, level)
			if err != nil {
				appLog.WithField("account_id", acct.ID).WithError(err).Error("Account processing failed")
				continue
			}
			total.RunsCreated += result.RunsCreated
			total.Skipped = append(total.Skipped, result.Skipped...)
			total.Errors = append(total.Errors, result.Errors...)
		}

		fmt.Printf("Accounts processed: %d\n", len(accounts))
		fmt.Printf("Runs created:       %d\n", total.RunsCreated)
		fmt.Printf("Strategies skipped: %d\n", len(total.Skipped))
		for _, skip := range total.Skipped {
			fmt.Printf("  - %s: %s\n", skip.StrategyID, skip.Reason)
		}
		if len(total.Errors) > 0 {
			fmt.Printf("Errors:             %d\n", len(total.Errors))
			for _, err := range total.Errors {
				fmt.Printf("  - %v\n", err)
			}
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Force-fail stale runs now",
	RunE: func(cmd *cobra.Command, args []string) error {
		wd := watchdog.NewWatchdog(repos.Run, cfg.Watchdog, appLog)
		result, err := wd.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Runs force-failed: %d\n", result.Killed)
		for _, err := range result.Errors {
			fmt.Printf("  - %v\n", err)
		}
		return nil
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote <strategy-id>",
	Short: "Evaluate a strategy against the risk pools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategyID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid strategy id %q: %w", args[0], err)
		}

		engine := promotion.NewEngine(db, repos.Strategy, repos.Score, repos.RiskPool, cfg.Promotion.PoolCapacity, appLog)
		outcome, err := engine.Evaluate(cmd.Context(), strategyID)
		if err != nil {
			return err
		}

		fmt.Printf("Action: %s\n", outcome.Action)
		fmt.Printf("Score:  %.2f\n", outcome.Score)
		if outcome.Level > 0 {
			fmt.Printf("Level:  %d\n", outcome.Level)
		}
		if outcome.DemotedID != nil {
			fmt.Printf("Rotated out: %s\n", outcome.DemotedID)
		}
		if outcome.Reason != "" {
			fmt.Printf("Reason: %s\n", outcome.Reason)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "backtestctl %s (%s)\n", Version, GitCommit)
	},
}

// noopDispatcher satisfies the orchestrator's queue dependency; the CLI
// processes accounts inline instead of fanning out jobs.
type noopDispatcher struct{}

func (noopDispatcher) DispatchOrchestration(ctx context.Context, payload queue.OrchestrationJobPayload, delay time.Duration) error {
	return nil
}
