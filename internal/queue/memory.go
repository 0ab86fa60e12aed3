package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-pilot/internal/metrics"
)

const readyBuffer = 4096

type jobState int

const (
	stateQueued jobState = iota
	stateActive
)

type memJob struct {
	id      string
	payload []byte
	attempt int
	state   jobState
	removed bool
	timer   *time.Timer
}

// MemoryQueue is a channel-backed TaskQueue with per-id deduplication,
// delayed delivery and bounded exponential-backoff retries.
type MemoryQueue struct {
	name        string
	handler     JobHandler
	exhausted   ExhaustedFunc
	maxAttempts int
	backoffBase time.Duration

	ready  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   map[string]*memJob
	active int
	paused bool
	closed bool

	logger *logrus.Entry
}

// MemoryQueueConfig configures a MemoryQueue
type MemoryQueueConfig struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
}

// NewMemoryQueue creates and starts an in-memory queue with a worker pool
func NewMemoryQueue(name string, cfg MemoryQueueConfig, handler JobHandler, exhausted ExhaustedFunc, logger *logrus.Logger) *MemoryQueue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &MemoryQueue{
		name:        name,
		handler:     handler,
		exhausted:   exhausted,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		ready:       make(chan string, readyBuffer),
		ctx:         ctx,
		cancel:      cancel,
		jobs:        make(map[string]*memJob),
		logger:      logger.WithField("queue", name),
	}
	q.cond = sync.NewCond(&q.mu)

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// Name returns the queue name
func (q *MemoryQueue) Name() string {
	return q.name
}

// Enqueue adds a job. A duplicate id that is already queued or active is
// absorbed silently, which makes retried dispatch and resume idempotent.
func (q *MemoryQueue) Enqueue(ctx context.Context, id string, payload []byte, opts EnqueueOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue %s is closed", q.name)
	}
	if _, exists := q.jobs[id]; exists {
		q.logger.WithField("job_id", id).Debug("Duplicate enqueue absorbed")
		return nil
	}

	job := &memJob{id: id, payload: payload}
	q.jobs[id] = job

	if opts.Delay > 0 {
		job.timer = time.AfterFunc(opts.Delay, func() { q.push(id) })
	} else {
		q.pushLocked(id)
	}
	q.reportStatsLocked()

	return nil
}

// Remove drops a queued job; active jobs keep running
func (q *MemoryQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.state == stateActive {
		return false
	}

	job.removed = true
	if job.timer != nil {
		job.timer.Stop()
	}
	delete(q.jobs, id)
	q.reportStatsLocked()
	return true
}

// Pause stops workers from picking up further jobs
func (q *MemoryQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume lets workers pick up jobs again
func (q *MemoryQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.cond.Broadcast()
}

// ActiveCount reports jobs currently executing
func (q *MemoryQueue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// QueuedCount reports jobs waiting for pickup
func (q *MemoryQueue) QueuedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) - q.active
}

// Close stops the queue and waits for workers to exit. In-flight handlers
// observe context cancellation.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.cond.Broadcast()
	close(q.ready)
	q.wg.Wait()
}

func (q *MemoryQueue) push(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushLocked(id)
}

func (q *MemoryQueue) pushLocked(id string) {
	if q.closed {
		return
	}
	job, ok := q.jobs[id]
	if !ok || job.removed {
		return
	}
	select {
	case q.ready <- id:
	default:
		// Buffer full: retry shortly rather than dropping the job
		job.timer = time.AfterFunc(100*time.Millisecond, func() { q.push(id) })
	}
}

// reportStatsLocked refreshes the per-queue gauges; callers hold q.mu
func (q *MemoryQueue) reportStatsLocked() {
	metrics.UpdateQueueStats(q.name, q.active, len(q.jobs)-q.active)
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()

	for id := range q.ready {
		q.mu.Lock()
		for q.paused && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		job, ok := q.jobs[id]
		if !ok || job.removed || job.state == stateActive {
			q.mu.Unlock()
			continue
		}
		job.state = stateActive
		q.active++
		q.reportStatsLocked()
		q.mu.Unlock()

		q.execute(job)
	}
}

func (q *MemoryQueue) execute(job *memJob) {
	err := q.handler(q.ctx, Job{ID: job.id, Payload: job.payload, Attempt: job.attempt})

	q.mu.Lock()
	q.active--

	if err == nil {
		delete(q.jobs, job.id)
		q.reportStatsLocked()
		q.mu.Unlock()
		return
	}

	job.attempt++
	if job.attempt >= q.maxAttempts {
		delete(q.jobs, job.id)
		q.reportStatsLocked()
		q.mu.Unlock()
		q.logger.WithError(err).WithFields(logrus.Fields{
			"job_id":   job.id,
			"attempts": job.attempt,
		}).Error("Job failed permanently")
		if q.exhausted != nil {
			q.exhausted(Job{ID: job.id, Payload: job.payload, Attempt: job.attempt}, err)
		}
		return
	}

	job.state = stateQueued
	backoff := q.backoffBase << uint(job.attempt-1)
	job.timer = time.AfterFunc(backoff, func() { q.push(job.id) })
	q.reportStatsLocked()
	q.mu.Unlock()

	q.logger.WithError(err).WithFields(logrus.Fields{
		"job_id":  job.id,
		"attempt": job.attempt,
		"backoff": backoff.String(),
	}).Warn("Job failed, retry scheduled")
}
