// Package scheduler drains the pending-job queue and dispatches each job to
// the Workflow Engine, mirroring the classic queue/scheduler split: the
// queue is a pure data structure, the scheduler is the goroutine loop that
// pops, dispatches, and reschedules on retryable failure (§4.1).
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agentflow/internal/common/apperr"
	"github.com/kandev/agentflow/internal/common/logger"
	"github.com/kandev/agentflow/internal/orchestrator/queue"
	"github.com/kandev/agentflow/internal/workflow"
)

var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Config holds scheduler tuning parameters.
type Config struct {
	ProcessInterval time.Duration // how often idle workers poll the queue
	MaxConcurrent   int           // max workflows running at once
	RetryLimit      int           // max re-submissions for a retryable submit failure
	RetryDelay      time.Duration // delay before a retried submission
}

// DefaultConfig returns sensible scheduler defaults.
func DefaultConfig() Config {
	return Config{
		ProcessInterval: 2 * time.Second,
		MaxConcurrent:   5,
		RetryLimit:      3,
		RetryDelay:      5 * time.Second,
	}
}

// Engine is the subset of the Workflow Engine the scheduler drives.
type Engine interface {
	Dispatch(ctx context.Context, workflowID string) error
}

// QueueStatus reports the scheduler's current load for the status endpoint.
type QueueStatus struct {
	QueuedJobs     int
	ActiveJobs     int32
	MaxConcurrent  int
	TotalProcessed int64
	TotalFailed    int64
}

// Scheduler runs a fixed pool of workers that each pop a job, submit it to
// the engine, and block until that workflow reaches a terminal state before
// picking up the next job — bounding how many workflows run concurrently.
type Scheduler struct {
	queue  *queue.JobQueue
	engine Engine
	logger *logger.Logger
	config Config

	retryCount map[string]int
	retryMu    sync.Mutex

	active         int32
	totalProcessed int64
	totalFailed    int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a scheduler over q, dispatching to engine.
func New(q *queue.JobQueue, engine Engine, log *logger.Logger, config Config) *Scheduler {
	return &Scheduler{
		queue:      q,
		engine:     engine,
		logger:     log.WithFields(zap.String("component", "scheduler")),
		config:     config,
		retryCount: make(map[string]int),
	}
}

// Start launches config.MaxConcurrent worker goroutines.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", zap.Int("max_concurrent", s.config.MaxConcurrent))

	for i := 0; i < s.config.MaxConcurrent; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return nil
}

// Stop signals every worker to exit and waits for them to drain.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether the worker pool is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// EnqueueJob adds a pending workflow submission to the queue.
func (s *Scheduler) EnqueueJob(workflowID string, req workflow.Request) error {
	if err := s.queue.Enqueue(workflowID, req); err != nil {
		return err
	}
	s.logger.Info("enqueued workflow job", zap.String("workflow_id", workflowID))
	return nil
}

// RemoveJob drops a pending (not yet dispatched) job.
func (s *Scheduler) RemoveJob(workflowID string) bool {
	removed := s.queue.Remove(workflowID)
	if removed {
		s.logger.Info("removed workflow job from queue", zap.String("workflow_id", workflowID))
	}
	return removed
}

// Status reports the scheduler's current load.
func (s *Scheduler) Status() QueueStatus {
	return QueueStatus{
		QueuedJobs:     s.queue.Len(),
		ActiveJobs:     atomic.LoadInt32(&s.active),
		MaxConcurrent:  s.config.MaxConcurrent,
		TotalProcessed: atomic.LoadInt64(&s.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&s.totalFailed),
	}
}

// worker pops one job at a time, runs it to completion, then loops.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ProcessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			job := s.queue.Dequeue()
			if job == nil {
				continue
			}
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *queue.Job) {
	atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)

	s.logger.Info("dispatching workflow job", zap.String("workflow_id", job.WorkflowID))

	err := s.engine.Dispatch(ctx, job.WorkflowID)
	if err != nil {
		s.logger.Error("workflow submission failed", zap.String("workflow_id", job.WorkflowID), zap.Error(err))
		if apperr.IsRetryable(err) && s.retry(job) {
			return
		}
		atomic.AddInt64(&s.totalFailed, 1)
		return
	}

	s.retryMu.Lock()
	delete(s.retryCount, job.WorkflowID)
	s.retryMu.Unlock()
	atomic.AddInt64(&s.totalProcessed, 1)
}

// retry re-enqueues job after a delay if the retry limit hasn't been hit.
func (s *Scheduler) retry(job *queue.Job) bool {
	s.retryMu.Lock()
	count := s.retryCount[job.WorkflowID]
	if count >= s.config.RetryLimit {
		s.retryMu.Unlock()
		s.logger.Warn("retry limit exceeded for workflow job", zap.String("workflow_id", job.WorkflowID))
		return false
	}
	s.retryCount[job.WorkflowID] = count + 1
	s.retryMu.Unlock()

	go func() {
		time.Sleep(s.config.RetryDelay)
		if err := s.queue.Enqueue(job.WorkflowID, job.Request); err != nil {
			s.logger.Error("failed to re-enqueue workflow job", zap.String("workflow_id", job.WorkflowID), zap.Error(err))
		}
	}()
	return true
}
