package workflow

import (
	"regexp"
	"strings"
)

// coordinatorDoneMarkers are the literal phrases §4.7 recognizes as the
// coordinator declaring the whole workflow finished.
var coordinatorDoneMarkers = []string{
	"COORDINATION COMPLETE",
	"WORKFLOW COMPLETE",
	"ALL AGENTS COMPLETED",
}

var (
	fencedCodeRE = regexp.MustCompile("```[a-zA-Z0-9_+-]*\\n[\\s\\S]*?```")
	testVerdictRE = regexp.MustCompile(`(?i)\b(PASS|FAIL|TEST EXECUTION)\b`)
)

// agentCompletionSignal reports whether text satisfies role's completion
// signal (§4.7). Detection is a one-way hint: once true for an agent it
// never reverts, even if a later turn lacks the marker.
func agentCompletionSignal(role Role, text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	switch role {
	case RoleCoder:
		return fencedCodeRE.MatchString(text) || strings.Contains(strings.ToUpper(text), "CODE COMPLETE")
	case RoleTester:
		return fencedCodeRE.MatchString(text) || strings.Contains(strings.ToUpper(text), "TESTING COMPLETE")
	case RoleRunner:
		return testVerdictRE.MatchString(text)
	case RoleCoordinator:
		return coordinatorSignalsDone(text)
	default:
		return true
	}
}

func coordinatorSignalsDone(text string) bool {
	upper := strings.ToUpper(text)
	for _, marker := range coordinatorDoneMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// recordCompletion applies turn's completion signal to wf.PerAgentCompleted,
// in place. Completion only ever transitions false → true.
func recordCompletion(wf *Workflow, turn Turn) {
	agent, ok := wf.Agents[turn.ToAgentID]
	if !ok {
		return
	}
	if wf.PerAgentCompleted[agent.ID] {
		return
	}
	if agentCompletionSignal(agent.Role, turn.Content) {
		wf.PerAgentCompleted[agent.ID] = true
	}
}

// isDone implements the workflow-level is_done predicate: every
// non-coordinator agent must be complete, AND — if a coordinator is
// declared — the *last* turn in the log must be the coordinator issuing a
// fresh completion marker. wf.PerAgentCompleted is a one-way latch per
// agent and is deliberately NOT trusted for the coordinator's own slot:
// once peers finish turns after an early coordinator marker, that marker
// is stale and must not finish the workflow on its own (§4.7, §8 scenario
// 3) — only a marker on the log's final turn counts.
func isDone(wf *Workflow) bool {
	coordinatorID := findCoordinator(wf)
	for _, id := range wf.AgentIDs {
		if id == coordinatorID {
			continue
		}
		if !wf.PerAgentCompleted[id] {
			return false
		}
	}
	if coordinatorID == "" {
		// No coordinator declared: done once every declared agent is
		// complete (covers both the single-agent and multi-peer cases).
		for _, id := range wf.AgentIDs {
			if !wf.PerAgentCompleted[id] {
				return false
			}
		}
		return true
	}
	if len(wf.Turns) == 0 {
		return false
	}
	last := wf.Turns[len(wf.Turns)-1]
	return last.ToAgentID == coordinatorID && coordinatorSignalsDone(last.Content)
}
