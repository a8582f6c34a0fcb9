// Package queue holds the scheduler's pending workflow-run jobs: one
// outstanding job per submitted workflow, popped and dispatched by the
// scheduler's worker pool (§4.1's scheduling-implementation note).
package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/kandev/agentflow/internal/workflow"
)

var (
	// ErrQueueFull is returned when the queue is at max capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrJobExists is returned when a workflow already has an outstanding job.
	ErrJobExists = errors.New("workflow already has an outstanding job")
)

// Job is one pending "run this workflow" unit of work.
type Job struct {
	WorkflowID string
	Request    workflow.Request
	QueuedAt   time.Time
	index      int
}

// jobHeap implements heap.Interface, ordered oldest-queued-first.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	return h[i].QueuedAt.Before(h[j].QueuedAt)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	n := len(*h)
	item := x.(*Job)
	item.index = n
	*h = append(*h, item)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// JobQueue is the pure data structure guarding pending jobs, independent of
// the scheduler's goroutine loop.
type JobQueue struct {
	mu      sync.RWMutex
	heap    jobHeap
	byID    map[string]*Job
	maxSize int
}

// NewJobQueue creates a queue capped at maxSize pending jobs (0 = unbounded).
func NewJobQueue(maxSize int) *JobQueue {
	q := &JobQueue{
		heap:    make(jobHeap, 0),
		byID:    make(map[string]*Job),
		maxSize: maxSize,
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds a job for workflowID. Returns ErrJobExists if one is already
// outstanding, or ErrQueueFull if the queue is at capacity.
func (q *JobQueue) Enqueue(workflowID string, req workflow.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[workflowID]; exists {
		return ErrJobExists
	}
	if q.maxSize > 0 && len(q.heap) >= q.maxSize {
		return ErrQueueFull
	}

	job := &Job{WorkflowID: workflowID, Request: req, QueuedAt: time.Now()}
	heap.Push(&q.heap, job)
	q.byID[workflowID] = job
	return nil
}

// Dequeue removes and returns the oldest job, or nil if the queue is empty.
func (q *JobQueue) Dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}
	job := heap.Pop(&q.heap).(*Job)
	delete(q.byID, job.WorkflowID)
	return job
}

// Remove drops workflowID's outstanding job, if any.
func (q *JobQueue) Remove(workflowID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.byID[workflowID]
	if !exists {
		return false
	}
	heap.Remove(&q.heap, job.index)
	delete(q.byID, workflowID)
	return true
}

// Len returns the number of pending jobs.
func (q *JobQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.heap)
}

// IsFull reports whether the queue is at capacity.
func (q *JobQueue) IsFull() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.maxSize > 0 && len(q.heap) >= q.maxSize
}

// List returns a snapshot of all pending jobs, for the status endpoint.
func (q *JobQueue) List() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Job, len(q.heap))
	copy(out, q.heap)
	return out
}
