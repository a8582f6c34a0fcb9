package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/agentflow/internal/common/apperr"
	"github.com/kandev/agentflow/internal/common/config"
	"github.com/kandev/agentflow/internal/common/logger"
	"github.com/kandev/agentflow/internal/events/bus"
	"github.com/kandev/agentflow/internal/llm"
	"github.com/kandev/agentflow/internal/project"
	"github.com/kandev/agentflow/internal/publisher"
)

// Engine owns workflow state and drives each workflow's turn loop
// sequentially (§4.1, §5).
type Engine struct {
	registry  *Registry
	bus       bus.EventBus
	llm       *llm.Adapter
	projects  *project.Store
	publisher *publisher.Service
	cfg       config.EngineConfig
	logger    *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewEngine wires an Engine from its already-constructed dependencies.
func NewEngine(b bus.EventBus, adapter *llm.Adapter, projects *project.Store, pub *publisher.Service, cfg config.EngineConfig, log *logger.Logger) *Engine {
	return &Engine{
		registry:  NewRegistry(),
		bus:       b,
		llm:       adapter,
		projects:  projects,
		publisher: pub,
		cfg:       cfg,
		logger:    log.WithFields(zap.String("component", "workflow_engine")),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Register validates req and creates a new workflow in pending state,
// without starting its turn loop. The scheduler dispatches registered
// workflows from its job queue (§4.1's scheduling-implementation note).
func (e *Engine) Register(req Request) (string, error) {
	if err := e.validate(req); err != nil {
		return "", err
	}

	id := uuid.New().String()
	agents := make(map[string]Agent, len(req.Agents))
	agentIDs := make([]string, 0, len(req.Agents))
	for _, a := range req.Agents {
		agents[a.ID] = a
		agentIDs = append(agentIDs, a.ID)
	}

	wf := &Workflow{
		ID:                 id,
		Task:               req.Task,
		Agents:             agents,
		Edges:              req.Edges,
		AgentIDs:           agentIDs,
		PerAgentTranscript: make(map[string][]TranscriptEntry, len(agents)),
		PerAgentCompleted:  make(map[string]bool, len(agents)),
		Status:             StatusPending,
		StartedAt:          time.Now().UTC(),
	}
	if req.DeadlineSeconds > 0 {
		wf.DeadlineSecondsOverride = req.DeadlineSeconds
	}
	e.registry.Put(wf)
	return id, nil
}

// Dispatch runs workflowID's turn loop to completion. It blocks until the
// workflow reaches a terminal state, cancellation, or ctx expires.
func (e *Engine) Dispatch(ctx context.Context, workflowID string) error {
	wf, err := e.registry.Get(workflowID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[workflowID] = cancel
	e.mu.Unlock()
	defer cancel()

	e.run(runCtx, wf)
	return nil
}

// Submit is a convenience wrapper combining Register and Dispatch for
// callers that don't need the scheduler's queue (e.g. tests): it registers
// req and starts its turn loop on a background goroutine, optionally
// blocking until completion.
func (e *Engine) Submit(ctx context.Context, req Request) (string, error) {
	id, err := e.Register(req)
	if err != nil {
		return "", err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Dispatch(context.Background(), id)
	}()

	if req.AwaitCompletion {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	return id, nil
}

func (e *Engine) validate(req Request) error {
	if len(req.Agents) == 0 {
		return apperr.InvalidRequest("a workflow requires at least one agent")
	}
	if req.Task == "" {
		return apperr.InvalidRequest("task must not be empty")
	}

	declared := make(map[string]bool, len(req.Agents))
	hasCoordinator := false
	for _, a := range req.Agents {
		if a.ID == "" {
			return apperr.InvalidRequest("agent id must not be empty")
		}
		if declared[a.ID] {
			return apperr.InvalidRequest(fmt.Sprintf("duplicate agent id %q", a.ID))
		}
		declared[a.ID] = true
		if a.Role == RoleCoordinator {
			hasCoordinator = true
		}
		if a.Model != "" && !e.llm.Known(a.Model) {
			return apperr.UnknownModel(a.Model)
		}
	}
	if !hasCoordinator && len(req.Agents) > 1 {
		return apperr.InvalidRequest("a workflow with more than one agent requires an agent with role coordinator")
	}
	for _, edge := range req.Edges {
		if !declared[edge.From] || !declared[edge.To] {
			return apperr.InvalidRequest("edge endpoints must reference declared agents")
		}
	}
	return nil
}

// Status returns a read-only snapshot of workflowID.
func (e *Engine) Status(workflowID string) (Snapshot, error) {
	wf, err := e.registry.Get(workflowID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshotof(wf), nil
}

// Cancel requests cancellation of a running workflow (§5).
func (e *Engine) Cancel(workflowID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[workflowID]
	e.mu.Unlock()
	if !ok {
		return apperr.NotFound("workflow", workflowID)
	}
	cancel()
	return nil
}

// Publish hands workflowID's project off to the Repository Publisher. Only
// valid once the workflow has produced at least one artifact.
func (e *Engine) Publish(ctx context.Context, workflowID string, creds publisher.Credentials, visibility publisher.Visibility) (*publisher.Result, error) {
	wf, err := e.registry.Get(workflowID)
	if err != nil {
		return nil, err
	}
	if wf.ProjectHandle == "" {
		return nil, apperr.InvalidRequest("workflow has no project to publish")
	}

	handle, openErr := e.projects.OpenOrCreate(workflowID, wf.Task)
	if openErr != nil {
		return nil, openErr
	}
	if err := e.projects.RewriteReadme(handle); err != nil {
		e.logger.Warn("failed to rewrite README before publish", zap.Error(err))
	}

	records := e.projects.Snapshot(handle)
	files := make([]publisher.ProjectFile, 0, len(records))
	for _, r := range records {
		content, readErr := e.projects.ReadFile(handle, r)
		if readErr != nil {
			e.logger.Warn("failed to read project file for publish", zap.String("path", r.RelativePath), zap.Error(readErr))
			continue
		}
		files = append(files, publisher.ProjectFile{RelativePath: r.RelativePath, Content: content})
	}
	readme, readmeErr := e.projects.ReadFile(handle, project.FileRecord{RelativePath: "README.md", Kind: project.FileKindDoc})
	if readmeErr != nil {
		e.logger.Warn("failed to read README for publish", zap.Error(readmeErr))
		readme = nil
	}

	snap := &publisher.Snapshot{ProjectName: handle.Name, Files: files, Readme: readme}
	return e.publisher.Publish(ctx, snap, creds, visibility)
}

// run drives workflowID's turn loop to completion.
func (e *Engine) run(ctx context.Context, wf *Workflow) {
	wf.Status = StatusRunning
	emitStatus(ctx, e.bus, wf.ID, wf.Status, "")

	deadline := time.Duration(e.cfg.WorkflowDeadlineSecs) * time.Second
	if wf.DeadlineSecondsOverride > 0 {
		deadline = time.Duration(wf.DeadlineSecondsOverride) * time.Second
	}
	workflowCtx, cancelDeadline := context.WithTimeout(ctx, deadline)
	defer cancelDeadline()

	budget := e.cfg.TurnBudget(len(wf.AgentIDs))

	for turnIndex := 0; turnIndex < budget; turnIndex++ {
		if workflowCtx.Err() != nil {
			if ctx.Err() != nil {
				e.finish(ctx, wf, StatusCancelled, ReasonCancelled)
			} else {
				e.finish(ctx, wf, StatusFailed, ReasonDeadlineExceeded)
			}
			return
		}

		selected, inbound, fromID := e.selectNext(wf, turnIndex)
		if selected == "" {
			if isDone(wf) {
				e.finish(ctx, wf, StatusCompleted, "")
			} else {
				e.finish(ctx, wf, StatusFailed, ReasonRoutingStalled)
			}
			return
		}

		emitTurnStarted(ctx, e.bus, wf.ID, turnIndex, fromID, selected)

		text, err := e.callWithRetry(workflowCtx, wf, selected, inbound)
		if err != nil {
			if apperr.IsRetryable(err) {
				// Retries are exhausted inside callWithRetry; exhaustion of a
				// retryable kind is itself a terminal failure.
				emitWarning(ctx, e.bus, wf.ID, "retries_exhausted", err.Error())
			}
			e.finish(ctx, wf, StatusFailed, "")
			return
		}

		turn := Turn{
			Index:       turnIndex,
			FromAgentID: fromID,
			ToAgentID:   selected,
			Content:     text,
			Timestamp:   time.Now().UTC(),
		}

		wf.PerAgentTranscript[selected] = append(wf.PerAgentTranscript[selected], TranscriptEntry{Role: TranscriptAssistant, Text: text})

		extracted := extractFiles(text)
		if len(extracted) > 0 {
			handle, err := e.projects.OpenOrCreate(wf.ID, wf.Task)
			if err != nil {
				emitWarning(ctx, e.bus, wf.ID, "project_open_failed", err.Error())
			} else {
				wf.ProjectHandle = handle.Name
				for _, f := range extracted {
					rec, writeErr := e.projects.Write(handle, f.RelativePath, f.Content, toProjectKind(f.Kind))
					if writeErr != nil {
						emitWarning(ctx, e.bus, wf.ID, "artifact_write_failed", writeErr.Error())
						continue
					}
					turn.ArtifactsExtracted = append(turn.ArtifactsExtracted, rec.RelativePath)
					emitArtifactWritten(ctx, e.bus, wf.ID, turnIndex, rec.RelativePath, f.Kind, len(f.Content))
				}
			}
		}

		wf.Turns = append(wf.Turns, turn)
		emitAgentMessage(ctx, e.bus, wf.ID, turn)

		recordCompletion(wf, turn)

		if isDone(wf) {
			e.finish(ctx, wf, StatusCompleted, "")
			return
		}
	}

	e.finish(ctx, wf, StatusCompleted, ReasonTurnBudgetExhausted)
}

// selectNext resolves the routing decision for this iteration and primes
// the selected agent's transcript with the inbound message.
func (e *Engine) selectNext(wf *Workflow, _ int) (selected, inbound, fromID string) {
	selected, inbound = nextAgent(wf)
	if selected == "" {
		return "", "", ""
	}

	fromID = SystemSender
	if len(wf.Turns) > 0 {
		fromID = wf.Turns[len(wf.Turns)-1].ToAgentID
	}

	wf.PerAgentTranscript[selected] = append(wf.PerAgentTranscript[selected], TranscriptEntry{Role: TranscriptUser, Text: inbound})
	return selected, inbound, fromID
}

// callWithRetry invokes the LLM Adapter for agentID, retrying retryable
// failures with exponential backoff up to the configured cap (§4.1 failure
// semantics).
func (e *Engine) callWithRetry(ctx context.Context, wf *Workflow, agentID, inbound string) (string, error) {
	agent := wf.Agents[agentID]
	messages := e.buildMessages(wf, agent)

	backoff := time.Duration(e.cfg.RetryBackoffInitialMs) * time.Millisecond
	maxBackoff := time.Duration(e.cfg.RetryBackoffMaxMs) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= e.cfg.RetryMaxAttempts; attempt++ {
		turnCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.PerTurnTimeoutSeconds)*time.Second)
		text, _, err := e.llm.Complete(turnCtx, modelFor(agent), messages, llm.Options{Temperature: 0.7})
		cancel()
		if err == nil {
			return text, nil
		}
		if turnCtx.Err() != nil && ctx.Err() == nil {
			err = apperr.TurnDeadlineExceeded()
		}
		lastErr = err
		if !apperr.IsRetryable(err) {
			return "", err
		}
		emitWarning(ctx, e.bus, wf.ID, "llm_call_retrying", err.Error())
		if attempt < e.cfg.RetryMaxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
	return "", lastErr
}

func (e *Engine) buildMessages(wf *Workflow, agent Agent) []llm.Message {
	systemPrompt := agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt(agent.Role)
	}

	messages := make([]llm.Message, 0, len(wf.PerAgentTranscript[agent.ID])+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Text: systemPrompt})
	for _, entry := range wf.PerAgentTranscript[agent.ID] {
		role := llm.RoleUser
		if entry.Role == TranscriptAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Text: entry.Text})
	}
	return messages
}

func defaultSystemPrompt(role Role) string {
	switch role {
	case RoleCoordinator:
		return "You coordinate a team of agents to complete a coding task. Delegate to the appropriate agent by name and declare WORKFLOW COMPLETE once every agent has finished."
	case RoleCoder:
		return "You write code to satisfy the given task. Emit your code in fenced blocks with a path hint, and say CODE COMPLETE when finished."
	case RoleTester:
		return "You write tests for the code you are given. Emit your tests in fenced blocks with a path hint, and say TESTING COMPLETE when finished."
	case RoleRunner:
		return "You run the generated tests and report PASS or FAIL."
	default:
		return "You are a helpful assistant participating in a multi-agent workflow."
	}
}

func modelFor(agent Agent) string {
	if agent.Model != "" {
		return agent.Model
	}
	return "primary-chat"
}

func toProjectKind(k FileKind) project.FileKind {
	switch k {
	case FileKindTest:
		return project.FileKindTest
	case FileKindDoc:
		return project.FileKindDoc
	default:
		return project.FileKindSrc
	}
}

func (e *Engine) finish(ctx context.Context, wf *Workflow, status Status, reasons ...Reason) {
	wf.Status = status
	if len(reasons) > 0 {
		wf.Reason = reasons[0]
	}
	if status == StatusCancelled {
		wf.Reason = ReasonCancelled
	}
	wf.FinishedAt = time.Now().UTC()
	emitStatus(ctx, e.bus, wf.ID, wf.Status, wf.Reason)

	e.mu.Lock()
	delete(e.cancels, wf.ID)
	e.mu.Unlock()
}
