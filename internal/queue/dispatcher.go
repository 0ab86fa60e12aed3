package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// Queue names
const (
	QueueHistorical    = "backtest-historical"
	QueueReplay        = "backtest-replay"
	QueueOrchestration = "orchestration"
)

// BacktestJobPayload is the message both backtest queues carry
type BacktestJobPayload struct {
	RunID             string `json:"runId"`
	AccountID         string `json:"accountId"`
	DatasetID         string `json:"datasetId"`
	AlgorithmID       string `json:"algorithmId"`
	DeterministicSeed string `json:"deterministicSeed"`
	Mode              string `json:"mode"`
}

// OrchestrationJobPayload is the message the orchestration queue carries
type OrchestrationJobPayload struct {
	AccountID   string    `json:"accountId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	RiskLevel   int       `json:"riskLevel"`
}

// Dispatcher routes runs to their execution queue by run type and drains all
// managed queues at shutdown.
type Dispatcher struct {
	queues        map[models.RunType]TaskQueue
	orchestration TaskQueue
	drainPoll     time.Duration
	drainTimeout  time.Duration
	logger        *logrus.Logger
}

// NewDispatcher creates a dispatcher over the two backtest queues and the
// orchestration queue.
func NewDispatcher(historical, replay, orchestration TaskQueue, drainPoll, drainTimeout time.Duration, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		queues: map[models.RunType]TaskQueue{
			models.RunTypeHistorical: historical,
			models.RunTypeLiveReplay: replay,
		},
		orchestration: orchestration,
		drainPoll:     drainPoll,
		drainTimeout:  drainTimeout,
		logger:        logger,
	}
}

// Dispatch enqueues a run on its type's queue, keyed by the run's own id so
// repeated dispatch is deduplicated at the queue layer. PAPER_TRADING and
// STRATEGY_OPTIMIZATION runs are created by other subsystems; routing one
// here is a programming error, not a runtime condition.
func (d *Dispatcher) Dispatch(ctx context.Context, run *models.BacktestRun, opts EnqueueOptions) error {
	q, ok := d.queues[run.Type]
	if !ok {
		panic(fmt.Sprintf("no execution queue mapped for run type %s", run.Type))
	}

	payload, err := json.Marshal(BacktestJobPayload{
		RunID:             run.ID.String(),
		AccountID:         run.AccountID.String(),
		DatasetID:         run.Config.DatasetID.String(),
		AlgorithmID:       run.Config.AlgorithmID.String(),
		DeterministicSeed: run.DeterministicSeed,
		Mode:              string(run.Type),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	return q.Enqueue(ctx, run.ID.String(), payload, opts)
}

// DispatchOrchestration enqueues an account-processing job with a stagger delay
func (d *Dispatcher) DispatchOrchestration(ctx context.Context, payload OrchestrationJobPayload, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal orchestration payload: %w", err)
	}

	id := fmt.Sprintf("orchestrate-%s-%s", payload.AccountID, payload.ScheduledAt.UTC().Format("2006-01-02"))
	return d.orchestration.Enqueue(ctx, id, data, EnqueueOptions{Delay: delay})
}

// Remove drops a run's queued job from its execution queue if still present
func (d *Dispatcher) Remove(run *models.BacktestRun) bool {
	q, ok := d.queues[run.Type]
	if !ok {
		return false
	}
	return q.Remove(run.ID.String())
}

// Shutdown pauses intake on every managed queue, then polls active-job counts
// until all reach zero or the hard timeout elapses.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	all := d.allQueues()
	for _, q := range all {
		q.Pause()
	}
	d.logger.Info("Queue intake paused, draining in-flight jobs")

	deadline := time.NewTimer(d.drainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(d.drainPoll)
	defer ticker.Stop()

	for {
		busy := d.busyQueues(all)
		if len(busy) == 0 {
			d.logger.Info("All queues drained")
			return
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			d.logger.WithField("queues", busy).Warn("Drain timeout elapsed with jobs still in flight")
			return
		case <-ctx.Done():
			d.logger.WithField("queues", busy).Warn("Shutdown context cancelled while draining")
			return
		}
	}
}

// ActiveCounts reports in-flight job counts per queue, for readiness checks
func (d *Dispatcher) ActiveCounts() map[string]int {
	counts := make(map[string]int)
	for _, q := range d.allQueues() {
		counts[q.Name()] = q.ActiveCount()
	}
	return counts
}

func (d *Dispatcher) allQueues() []TaskQueue {
	all := []TaskQueue{d.orchestration}
	for _, q := range d.queues {
		all = append(all, q)
	}
	return all
}

func (d *Dispatcher) busyQueues(all []TaskQueue) []string {
	var busy []string
	for _, q := range all {
		if n := q.ActiveCount(); n > 0 {
			busy = append(busy, fmt.Sprintf("%s(%d)", q.Name(), n))
		}
	}
	return busy
}
