package workflow

import "testing"

func newTestWorkflow(agents ...Agent) *Workflow {
	wf := &Workflow{
		Task:               "build a thing",
		Agents:             make(map[string]Agent),
		PerAgentTranscript: make(map[string][]TranscriptEntry),
		PerAgentCompleted:  make(map[string]bool),
	}
	for _, a := range agents {
		wf.Agents[a.ID] = a
		wf.AgentIDs = append(wf.AgentIDs, a.ID)
	}
	return wf
}

func TestNextAgent_SeedsCoordinatorWhenDeclared(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "lead", Role: RoleCoordinator},
		Agent{ID: "dev", Role: RoleCoder},
	)

	id, inbound := nextAgent(wf)
	if id != "lead" {
		t.Fatalf("expected seed to target coordinator, got %q", id)
	}
	if inbound != wf.Task {
		t.Fatalf("expected seed message to be the task, got %q", inbound)
	}
}

func TestNextAgent_SeedsLoneAgentWithNoCoordinator(t *testing.T) {
	wf := newTestWorkflow(Agent{ID: "solo", Role: RoleCoder})

	id, _ := nextAgent(wf)
	if id != "solo" {
		t.Fatalf("expected seed to target the lone agent, got %q", id)
	}
}

func TestNextAgent_CoordinatorNamesTarget(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "lead", Role: RoleCoordinator},
		Agent{ID: "dev", Role: RoleCoder},
		Agent{ID: "qa", Role: RoleTester},
	)
	wf.Turns = append(wf.Turns, Turn{
		FromAgentID: SystemSender,
		ToAgentID:   "lead",
		Content:     "Let's start with the coder to scaffold the project.",
	})

	id, _ := nextAgent(wf)
	if id != "dev" {
		t.Fatalf("expected coordinator's text to route to coder, got %q", id)
	}
}

func TestNextAgent_ReturnsToCoordinatorAfterPeerTurn(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "lead", Role: RoleCoordinator},
		Agent{ID: "dev", Role: RoleCoder},
	)
	wf.Turns = append(wf.Turns, Turn{FromAgentID: "lead", ToAgentID: "dev", Content: "go ahead"})

	id, _ := nextAgent(wf)
	if id != "lead" {
		t.Fatalf("expected routing back to coordinator, got %q", id)
	}
}

func TestNextAgent_FallsBackToPriorityOrderWhenNoTargetNamed(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "lead", Role: RoleCoordinator},
		Agent{ID: "qa", Role: RoleTester},
		Agent{ID: "dev", Role: RoleCoder},
	)
	wf.Turns = append(wf.Turns, Turn{
		FromAgentID: SystemSender,
		ToAgentID:   "lead",
		Content:     "Proceed with the plan.",
	})

	id, _ := nextAgent(wf)
	if id != "dev" {
		t.Fatalf("expected priority fallback to pick coder before tester, got %q", id)
	}
}

func TestNextAgent_SkipsCompletedAgentsInPriorityFallback(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "lead", Role: RoleCoordinator},
		Agent{ID: "dev", Role: RoleCoder},
		Agent{ID: "qa", Role: RoleTester},
	)
	wf.PerAgentCompleted["dev"] = true
	wf.Turns = append(wf.Turns, Turn{
		FromAgentID: SystemSender,
		ToAgentID:   "lead",
		Content:     "Proceed.",
	})

	id, _ := nextAgent(wf)
	if id != "qa" {
		t.Fatalf("expected fallback to skip completed coder and pick tester, got %q", id)
	}
}

func TestNextAgent_NoneWhenEverythingComplete(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "lead", Role: RoleCoordinator},
		Agent{ID: "dev", Role: RoleCoder},
	)
	wf.PerAgentCompleted["dev"] = true
	wf.Turns = append(wf.Turns, Turn{
		FromAgentID: SystemSender,
		ToAgentID:   "lead",
		Content:     "Proceed.",
	})

	id, _ := nextAgent(wf)
	if id != "" {
		t.Fatalf("expected no further target, got %q", id)
	}
}
