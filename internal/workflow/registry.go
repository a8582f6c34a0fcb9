package workflow

import (
	"sync"

	"github.com/kandev/agentflow/internal/common/apperr"
)

// Registry holds every workflow the engine knows about. Reads are safe for
// concurrent callers; writes to a given workflow are serialized by callers
// holding that workflow's own lock (the engine locks per-workflow around its
// turn loop, so the registry itself only needs to protect the map).
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[string]*Workflow)}
}

// Put inserts or replaces wf.
func (r *Registry) Put(wf *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.ID] = wf
}

// Get returns the live workflow value for id.
func (r *Registry) Get(id string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, apperr.NotFound("workflow", id)
	}
	return wf, nil
}

// Snapshotof copies wf into the read-only view returned by status queries so
// callers never observe the engine mutating it mid-read.
func Snapshotof(wf *Workflow) Snapshot {
	agentsStatus := make(map[string]bool, len(wf.AgentIDs))
	for _, id := range wf.AgentIDs {
		agentsStatus[id] = wf.PerAgentCompleted[id]
	}
	turns := make([]Turn, len(wf.Turns))
	copy(turns, wf.Turns)

	return Snapshot{
		ID:           wf.ID,
		Status:       wf.Status,
		Reason:       wf.Reason,
		AgentsStatus: agentsStatus,
		Turns:        turns,
		ProjectRef:   wf.ProjectHandle,
		StartedAt:    wf.StartedAt,
		FinishedAt:   wf.FinishedAt,
	}
}
