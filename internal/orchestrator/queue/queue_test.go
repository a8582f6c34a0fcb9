package queue

import (
	"testing"

	"github.com/kandev/agentflow/internal/workflow"
)

func TestJobQueue_EnqueueDequeueFIFO(t *testing.T) {
	q := NewJobQueue(0)

	if err := q.Enqueue("wf-1", workflow.Request{Task: "a"}); err != nil {
		t.Fatalf("enqueue wf-1 failed: %v", err)
	}
	if err := q.Enqueue("wf-2", workflow.Request{Task: "b"}); err != nil {
		t.Fatalf("enqueue wf-2 failed: %v", err)
	}

	first := q.Dequeue()
	if first == nil || first.WorkflowID != "wf-1" {
		t.Fatalf("expected wf-1 to dequeue first, got %+v", first)
	}
	second := q.Dequeue()
	if second == nil || second.WorkflowID != "wf-2" {
		t.Fatalf("expected wf-2 to dequeue second, got %+v", second)
	}
	if q.Dequeue() != nil {
		t.Fatal("expected queue to be empty")
	}
}

func TestJobQueue_RejectsDuplicateWorkflowID(t *testing.T) {
	q := NewJobQueue(0)
	if err := q.Enqueue("wf-1", workflow.Request{}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := q.Enqueue("wf-1", workflow.Request{}); err != ErrJobExists {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
}

func TestJobQueue_RejectsOverCapacity(t *testing.T) {
	q := NewJobQueue(1)
	if err := q.Enqueue("wf-1", workflow.Request{}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := q.Enqueue("wf-2", workflow.Request{}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestJobQueue_Remove(t *testing.T) {
	q := NewJobQueue(0)
	_ = q.Enqueue("wf-1", workflow.Request{})

	if !q.Remove("wf-1") {
		t.Fatal("expected Remove to report success for a pending job")
	}
	if q.Remove("wf-1") {
		t.Fatal("expected a second Remove of the same job to report failure")
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue to be empty after removal, got %d", q.Len())
	}
}

func TestJobQueue_LenAndIsFull(t *testing.T) {
	q := NewJobQueue(2)
	if q.IsFull() {
		t.Fatal("expected empty queue to not be full")
	}
	_ = q.Enqueue("wf-1", workflow.Request{})
	_ = q.Enqueue("wf-2", workflow.Request{})
	if !q.IsFull() {
		t.Fatal("expected queue at capacity to report full")
	}
	if q.Len() != 2 {
		t.Fatalf("expected length 2, got %d", q.Len())
	}
}

func TestJobQueue_List(t *testing.T) {
	q := NewJobQueue(0)
	_ = q.Enqueue("wf-1", workflow.Request{})
	_ = q.Enqueue("wf-2", workflow.Request{})

	jobs := q.List()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 listed jobs, got %d", len(jobs))
	}
	// List must be a snapshot: mutating it must not affect the queue.
	jobs[0] = nil
	if q.Len() != 2 {
		t.Fatal("expected List to return a copy, not the live queue")
	}
}
