package workflow

import "testing"

func TestAgentCompletionSignal_CoderFencedBlockOrMarker(t *testing.T) {
	if !agentCompletionSignal(RoleCoder, "here you go:\n```go\npackage main\n```") {
		t.Error("expected fenced code block to satisfy coder completion")
	}
	if !agentCompletionSignal(RoleCoder, "CODE COMPLETE") {
		t.Error("expected literal marker to satisfy coder completion")
	}
	if agentCompletionSignal(RoleCoder, "still thinking about the approach") {
		t.Error("expected plain prose to not satisfy coder completion")
	}
}

func TestAgentCompletionSignal_TesterFencedBlockOrMarker(t *testing.T) {
	if !agentCompletionSignal(RoleTester, "```python\nassert True\n```") {
		t.Error("expected fenced code block to satisfy tester completion")
	}
	if !agentCompletionSignal(RoleTester, "TESTING COMPLETE") {
		t.Error("expected literal marker to satisfy tester completion")
	}
}

func TestAgentCompletionSignal_RunnerVerdict(t *testing.T) {
	if !agentCompletionSignal(RoleRunner, "ran the suite: PASS") {
		t.Error("expected PASS verdict to satisfy runner completion")
	}
	if !agentCompletionSignal(RoleRunner, "FAIL: 2 tests failed") {
		t.Error("expected FAIL verdict to satisfy runner completion")
	}
	if agentCompletionSignal(RoleRunner, "still running the suite") {
		t.Error("expected no verdict keyword to not satisfy runner completion")
	}
}

func TestAgentCompletionSignal_CustomRoleOnAnyNonEmptyResponse(t *testing.T) {
	if !agentCompletionSignal(Role("reviewer"), "looks good to me") {
		t.Error("expected any non-empty response to satisfy a custom role")
	}
	if agentCompletionSignal(Role("reviewer"), "   ") {
		t.Error("expected whitespace-only response to not satisfy a custom role")
	}
}

func TestAgentCompletionSignal_CoordinatorRequiresExplicitMarker(t *testing.T) {
	if agentCompletionSignal(RoleCoordinator, "keep going") {
		t.Error("expected coordinator to require an explicit done marker")
	}
	if !agentCompletionSignal(RoleCoordinator, "ALL AGENTS COMPLETED, nice work team") {
		t.Error("expected coordinator done marker to register")
	}
}

func TestRecordCompletion_OneWayTransition(t *testing.T) {
	wf := newTestWorkflow(Agent{ID: "dev", Role: RoleCoder})

	recordCompletion(wf, Turn{ToAgentID: "dev", Content: "CODE COMPLETE"})
	if !wf.PerAgentCompleted["dev"] {
		t.Fatal("expected completion to be recorded")
	}

	recordCompletion(wf, Turn{ToAgentID: "dev", Content: "actually still working on it"})
	if !wf.PerAgentCompleted["dev"] {
		t.Error("expected completion to remain true once set, even without a later marker")
	}
}

func TestIsDone_RequiresCoordinatorAndAllPeersComplete(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "lead", Role: RoleCoordinator},
		Agent{ID: "dev", Role: RoleCoder},
	)

	if isDone(wf) {
		t.Fatal("expected workflow not done with no completions recorded")
	}

	wf.PerAgentCompleted["dev"] = true
	if isDone(wf) {
		t.Fatal("expected workflow not done until the coordinator also signals completion")
	}

	doneTurn := Turn{ToAgentID: "lead", Content: "ALL AGENTS COMPLETED"}
	wf.Turns = append(wf.Turns, doneTurn)
	recordCompletion(wf, doneTurn)
	if !isDone(wf) {
		t.Fatal("expected workflow done once peer is complete and the coordinator's last turn carries a fresh completion marker")
	}
}

// TestIsDone_StaleCoordinatorMarkerDoesNotFinishWorkflow reproduces an early
// coordinator completion marker latching PerAgentCompleted while peers are
// still incomplete, followed by peer turns completing afterward with no
// fresh coordinator marker on the final turn. isDone must not be fooled by
// the latched flag — only a completion marker on the actual last turn
// counts (§4.7, §8 scenario 3).
func TestIsDone_StaleCoordinatorMarkerDoesNotFinishWorkflow(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "lead", Role: RoleCoordinator},
		Agent{ID: "dev", Role: RoleCoder},
		Agent{ID: "qa", Role: RoleTester},
	)

	// Coordinator signals done early, while dev and qa are still incomplete.
	early := Turn{ToAgentID: "lead", Content: "COORDINATION COMPLETE, but dev and qa still have work"}
	wf.Turns = append(wf.Turns, early)
	recordCompletion(wf, early)
	if isDone(wf) {
		t.Fatal("expected workflow not done while peers remain incomplete")
	}

	// Coder finishes.
	coderTurn := Turn{ToAgentID: "dev", Content: "CODE COMPLETE"}
	wf.Turns = append(wf.Turns, coderTurn)
	recordCompletion(wf, coderTurn)

	// Coordinator is revisited but says nothing fresh — its flag is already
	// latched from the early marker, so it need not repeat one.
	redelegate := Turn{ToAgentID: "lead", Content: "qa, please test this"}
	wf.Turns = append(wf.Turns, redelegate)
	recordCompletion(wf, redelegate)

	// Tester finishes. This is now the LAST turn, not a fresh coordinator
	// marker turn.
	testerTurn := Turn{ToAgentID: "qa", Content: "TESTING COMPLETE"}
	wf.Turns = append(wf.Turns, testerTurn)
	recordCompletion(wf, testerTurn)

	if isDone(wf) {
		t.Fatal("expected isDone to require a fresh coordinator marker on the last turn, not a stale latched flag from an earlier turn")
	}
}

func TestIsDone_NoCoordinatorRequiresAllDeclaredAgents(t *testing.T) {
	wf := newTestWorkflow(
		Agent{ID: "dev", Role: RoleCoder},
		Agent{ID: "qa", Role: RoleTester},
	)

	wf.PerAgentCompleted["dev"] = true
	if isDone(wf) {
		t.Fatal("expected workflow not done until every declared agent completes")
	}

	wf.PerAgentCompleted["qa"] = true
	if !isDone(wf) {
		t.Fatal("expected workflow done once every declared agent completes")
	}
}
