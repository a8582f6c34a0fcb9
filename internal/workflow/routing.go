package workflow

import "strings"

// priorityRoles is the fallback order rule 4 consults when the coordinator
// names no target: coder, tester, runner, then declared order for anything
// else.
var priorityRoles = []Role{RoleCoder, RoleTester, RoleRunner}

// nextAgent implements the Routing Policy contract next(workflow_state) →
// (agent_id or "", inbound_message). The five rules are evaluated in order;
// the first match wins (§4.6).
func nextAgent(wf *Workflow) (agentID string, inbound string) {
	if len(wf.Turns) == 0 {
		// Rule 1: no turn has happened yet.
		if coordinatorID := findCoordinator(wf); coordinatorID != "" {
			return coordinatorID, wf.Task
		}
		if len(wf.AgentIDs) == 1 {
			return wf.AgentIDs[0], wf.Task
		}
		return "", ""
	}

	// The Turn's ToAgentID is the agent that was invoked and produced
	// Content this turn — the "sender" the routing rules reason about.
	last := wf.Turns[len(wf.Turns)-1]
	sender := wf.Agents[last.ToAgentID]
	coordinatorID := findCoordinator(wf)

	if last.ToAgentID == coordinatorID && coordinatorID != "" {
		// Rule 2: the coordinator's text designates another declared role.
		if target := designatedTarget(wf, last.Content); target != "" {
			return target, last.Content
		}

		// Rule 4: no designated target — fall back to the highest-priority
		// incomplete non-coordinator agent.
		if target := highestPriorityIncomplete(wf, coordinatorID); target != "" {
			return target, last.Content
		}

		// Rule 5: nothing left to route to.
		return "", ""
	}

	if last.ToAgentID != coordinatorID && coordinatorID != "" {
		// Rule 3: return to coordinator.
		return coordinatorID, last.Content
	}

	// Single-agent workflow (no coordinator role declared): keep bouncing
	// back to the lone agent until the Completion Detector stops it.
	if len(wf.AgentIDs) == 1 && sender.ID != "" {
		return wf.AgentIDs[0], last.Content
	}

	return "", ""
}

func findCoordinator(wf *Workflow) string {
	for _, id := range wf.AgentIDs {
		if wf.Agents[id].Role == RoleCoordinator {
			return id
		}
	}
	return ""
}

// designatedTarget matches a declared role name OR a declared agent id as a
// case-insensitive substring of the coordinator's text (§4.6 rule 2; the
// coordinator target-naming heuristic per §9's resolved open question).
func designatedTarget(wf *Workflow, text string) string {
	lower := strings.ToLower(text)
	for _, id := range wf.AgentIDs {
		agent := wf.Agents[id]
		if agent.Role == RoleCoordinator {
			continue
		}
		if wf.PerAgentCompleted[id] {
			continue
		}
		if strings.Contains(lower, strings.ToLower(string(agent.Role))) || strings.Contains(lower, strings.ToLower(id)) {
			return id
		}
	}
	return ""
}

func highestPriorityIncomplete(wf *Workflow, coordinatorID string) string {
	for _, role := range priorityRoles {
		for _, id := range wf.AgentIDs {
			agent := wf.Agents[id]
			if agent.Role == role && !wf.PerAgentCompleted[id] {
				return id
			}
		}
	}
	for _, id := range wf.AgentIDs {
		if id == coordinatorID {
			continue
		}
		agent := wf.Agents[id]
		isPriorityRole := false
		for _, role := range priorityRoles {
			if agent.Role == role {
				isPriorityRole = true
				break
			}
		}
		if isPriorityRole {
			continue
		}
		if !wf.PerAgentCompleted[id] {
			return id
		}
	}
	return ""
}
