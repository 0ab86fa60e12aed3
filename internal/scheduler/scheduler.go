// Package scheduler wires the recurring jobs: the daily orchestration cycle
// and the periodic stale-run watchdog sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-pilot/internal/orchestrator"
	"github.com/yourusername/backtest-pilot/internal/watchdog"
)

// Scheduler manages the recurring orchestration and watchdog jobs
type Scheduler struct {
	cron            *cron.Cron
	logger          *logrus.Logger
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	gracefulTimeout time.Duration
}

// NewScheduler creates a scheduler running in UTC
func NewScheduler(logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		logger:          logger,
		jobIDs:          make([]cron.EntryID, 0),
		gracefulTimeout: 30 * time.Second,
	}
}

// ScheduleOrchestration schedules the daily account fan-out
func (s *Scheduler) ScheduleOrchestration(cronExpression string, orch *orchestrator.Orchestrator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		s.logger.Info("Starting scheduled orchestration cycle")
		result, err := orch.ScheduleDaily(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Orchestration cycle failed")
			return
		}
		s.logger.WithFields(logrus.Fields{
			"accounts": result.AccountsScheduled,
			"errors":   len(result.Errors),
		}).Info("Orchestration cycle finished")
	}

	entryID, err := s.cron.AddFunc(cronExpression, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add orchestration job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("cron", cronExpression).Info("Orchestration job scheduled")
	return nil
}

// ScheduleWatchdog schedules the stale-run sweep on a fixed interval
func (s *Scheduler) ScheduleWatchdog(intervalMinutes int, w *watchdog.Watchdog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}
	if intervalMinutes < 1 {
		intervalMinutes = 1
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(intervalMinutes)*time.Minute)
		defer cancel()

		result, err := w.Sweep(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Watchdog sweep failed")
			return
		}
		if result.Killed > 0 {
			s.logger.WithField("killed", result.Killed).Warn("Watchdog sweep finished")
		}
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", intervalMinutes), jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add watchdog job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("interval_minutes", intervalMinutes).Info("Watchdog job scheduled")
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(s.gracefulTimeout):
		s.logger.Warn("Scheduler stop timed out with jobs still running")
	}

	s.isRunning = false
	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the earliest next fire time across all jobs
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			if nextRun.IsZero() || entry.Next.Before(nextRun) {
				nextRun = entry.Next
			}
		}
	}
	return nextRun
}

// Entries returns the scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}
	return entries
}
