// Package orchestrator implements the Workflow Orchestrator: step
// graph validation, scheduling, and execution of the five step types
// (task, parallel, loop, conditional, human), with checkpointing and
// resume.
//
// Execution is wave-based: each scheduling wave runs every step whose
// dependencies are satisfied, concurrently up to a configured bound,
// and checkpoints the whole run state afterward.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/logging"
	"github.com/meow-stack/meowctl/internal/types"
)

// AgentResolver is the narrow Registry capability the orchestrator needs
// to bind a step's role/agentId to a concrete agent process.
type AgentResolver interface {
	Get(ctx context.Context, agentID string) (*types.AgentProcess, error)
	ListByRole(ctx context.Context, projectID, role string) ([]*types.AgentProcess, error)
}

// AgentInvoker is the narrow Shim capability the orchestrator needs to
// run a task step's prompt through an agent.
type AgentInvoker interface {
	Invoke(ctx context.Context, agentID, role, content string, cfg types.AgentConfig, sessionID string, forceNewSession bool) (response, newSessionID string, err error)
}

// ApprovalGate is the narrow Approval Orchestrator capability a human
// step needs.
type ApprovalGate interface {
	CreateApproval(ctx context.Context, req CreateApprovalRequest) (string, error)
	WaitForDecision(ctx context.Context, approvalID string, timeoutSeconds int, behavior types.TimeoutBehavior) (bool, error)
}

// CreateApprovalRequest mirrors the fields of approval.CreateRequest the
// orchestrator needs to supply, kept here (rather than importing the
// approval package's concrete type) so this package only depends on
// approval through the ApprovalGate seam.
type CreateApprovalRequest struct {
	ThreadID     string
	StepID       string
	ProjectID    string
	WorkflowName string
	Task         string
	Prompt       string
	ContextData  map[string]any
	RiskLevel    types.RiskLevel

	TimeoutSeconds          int
	ApprovalRequired        bool
	AutoApproveAfterTimeout bool
}

// ConfigResolver is the narrow project/agent-config catalog capability
// satisfied by internal/project.Directory. Optional: an Orchestrator
// with none configured skips config-catalog validation and leaves
// binding resolution to run at execution time via AgentResolver
// instead.
type ConfigResolver interface {
	ResolveAgentConfig(ctx context.Context, projectID, role string) (types.AgentConfig, error)
}

// Orchestrator runs workflow threads to completion.
type Orchestrator struct {
	resolver    AgentResolver
	invoker     AgentInvoker
	approvals   ApprovalGate
	checkpoints *CheckpointStore
	bus         *events.Bus
	configs     ConfigResolver
	logger      *slog.Logger

	mockAI      bool
	concurrency int

	mu   sync.Mutex
	runs map[string]*types.Run
}

// New creates a Workflow Orchestrator.
func New(resolver AgentResolver, invoker AgentInvoker, approvals ApprovalGate, checkpoints *CheckpointStore, bus *events.Bus, mockAI bool, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		resolver:    resolver,
		invoker:     invoker,
		approvals:   approvals,
		checkpoints: checkpoints,
		bus:         bus,
		logger:      slog.Default(),
		mockAI:      mockAI,
		concurrency: concurrency,
		runs:        make(map[string]*types.Run),
	}
}

// SetConfigResolver attaches the project/global agent-config catalog
// used by Start's fail-fast validation pass. Composition roots that
// have a project.Directory should call this right after New.
func (o *Orchestrator) SetConfigResolver(cr ConfigResolver) {
	o.configs = cr
}

// SetLogger replaces the default process logger; run and step records
// are tagged through logging.ForRun/ForStep on top of it.
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	if l != nil {
		o.logger = l.With("component", "orchestrator")
	}
}

// Start validates and runs a new workflow thread to completion,
// checkpointing after every top-level scheduling wave. Validation
// warnings (output references that are not declared dependencies) do
// not block the run; each is logged against the thread.
func (o *Orchestrator) Start(ctx context.Context, threadID, projectID string, steps []*types.Step) (*types.Run, error) {
	warnings, err := Validate(steps)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logging.ForRun(o.logger, threadID, projectID).Warn("output reference is not a declared dependency",
			"step", w.StepID, "ref", w.Ref)
	}
	if o.configs != nil {
		if err := o.validateBindings(ctx, projectID, steps); err != nil {
			return nil, err
		}
	}

	run := types.NewRun(threadID, projectID, steps, time.Now())
	run.Status = types.RunStatusRunning

	o.mu.Lock()
	o.runs[threadID] = run
	o.mu.Unlock()

	if err := o.drive(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// Resume continues a previously checkpointed thread from its last
// recorded state, without verifying structural compatibility.
// ResumeWorkflow is the full entry point used over the HTTP transport;
// Resume remains for callers (and tests) that already hold the exact
// checkpointed step list.
func (o *Orchestrator) Resume(ctx context.Context, threadID string) (*types.Run, error) {
	run, err := o.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return o.resumeRun(ctx, run)
}

// GetCurrentState returns the latest checkpoint, verifying structural
// compatibility against steps first when steps is non-nil.
func (o *Orchestrator) GetCurrentState(ctx context.Context, threadID string, steps []*types.Step) (*types.Run, error) {
	run, err := o.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if steps != nil {
		if err := CheckCompatible(run.Steps, steps); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// GetStateHistory returns the full checkpoint list, verified against
// steps when provided.
func (o *Orchestrator) GetStateHistory(ctx context.Context, threadID string, steps []*types.Step) ([]*types.Checkpoint, error) {
	history, err := o.checkpoints.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if steps != nil && len(history) > 0 {
		latest := history[len(history)-1].Run
		if err := CheckCompatible(latest.Steps, steps); err != nil {
			return nil, err
		}
	}
	return history, nil
}

// GetCheckpoint is a point-in-time read of one checkpoint, verified
// against steps when provided.
func (o *Orchestrator) GetCheckpoint(ctx context.Context, threadID string, checkpointID int, steps []*types.Step) (*types.Run, error) {
	run, err := o.checkpoints.LoadAt(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	if steps != nil {
		if err := CheckCompatible(run.Steps, steps); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// ResumeWorkflow re-invokes the graph from the latest checkpoint.
// Steps that
// had no terminal result restart from scratch, since drive's wave
// scheduler only ever records a step once it has fully completed. When
// steps is non-nil it must be structurally compatible with the
// checkpointed graph, else the resume fails with "incompatible
// workflow definition" and no state is mutated.
func (o *Orchestrator) ResumeWorkflow(ctx context.Context, threadID string, steps []*types.Step, projectID string) (*types.Run, error) {
	run, err := o.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if steps != nil {
		if err := CheckCompatible(run.Steps, steps); err != nil {
			return nil, err
		}
	}
	return o.resumeRun(ctx, run)
}

// ResumeFromCheckpoint restarts from an earlier
// checkpoint, discarding any later state so a subsequent Save cannot
// collide with the truncated history's checkpoint ids.
func (o *Orchestrator) ResumeFromCheckpoint(ctx context.Context, threadID string, checkpointID int, steps []*types.Step, projectID string) (*types.Run, error) {
	run, err := o.checkpoints.LoadAt(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	if steps != nil {
		if err := CheckCompatible(run.Steps, steps); err != nil {
			return nil, err
		}
	}
	if err := o.checkpoints.TruncateAfter(ctx, threadID, checkpointID); err != nil {
		return nil, fmt.Errorf("truncating checkpoint history: %w", err)
	}
	return o.resumeRun(ctx, run)
}

func (o *Orchestrator) resumeRun(ctx context.Context, run *types.Run) (*types.Run, error) {
	if run.Status.IsTerminal() {
		return run, nil
	}
	run.Status = types.RunStatusRunning

	o.mu.Lock()
	o.runs[run.ThreadID] = run
	o.mu.Unlock()

	if err := o.drive(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// GetRun returns the in-memory run if active, falling back to the last
// checkpoint on disk.
func (o *Orchestrator) GetRun(ctx context.Context, threadID string) (*types.Run, error) {
	o.mu.Lock()
	run, ok := o.runs[threadID]
	o.mu.Unlock()
	if ok {
		return run, nil
	}
	return o.checkpoints.Load(ctx, threadID)
}

// History returns every checkpoint recorded for a thread.
func (o *Orchestrator) History(ctx context.Context, threadID string) ([]*types.Checkpoint, error) {
	return o.checkpoints.History(ctx, threadID)
}

// Cancel marks a run cancelled; in-flight steps observe this the next
// time they check run.Status and stop scheduling further waves.
func (o *Orchestrator) Cancel(threadID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[threadID]
	if !ok {
		return errors.Newf(errors.CodeResolutionNotFound, "no active run for thread %s", threadID)
	}
	run.Status = types.RunStatusCancelled
	return nil
}

// drive is the main scheduling loop: each wave runs every top-level step
// whose deps are satisfied, concurrently, checkpointing afterward. A
// failed step never halts the whole run — its transitive dependants are
// marked skipped and every other independently-eligible step keeps
// running. The loop stops once no step remains eligible, i.e. every step
// has a terminal result or depends (transitively) on one that failed or
// was skipped.
func (o *Orchestrator) drive(ctx context.Context, run *types.Run) error {
	children := childStepIDs(run.Steps)

	o.publishUpdate(run, events.WorkflowGraphUpdate, map[string]any{"graph": workflowGraph(run)})

	for !run.AllDone() {
		if run.Status == types.RunStatusCancelled {
			break
		}

		markSkipped(run)
		ready := topLevelReady(run, children)
		if len(ready) == 0 {
			break // remaining steps depend on one that never completed
		}

		o.runWave(ctx, run, ready)

		if _, err := o.checkpoints.Save(ctx, run); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
	}
	markSkipped(run)

	run.UpdatedAt = time.Now()
	switch {
	case run.Status == types.RunStatusCancelled:
		o.publishUpdate(run, events.WorkflowFailedUpdate, map[string]any{"reason": "cancelled"})
	case run.HasFailed():
		run.Status = types.RunStatusFailed
		run.FailureReason = firstFailureReason(run)
		logging.ForRun(o.logger, run.ThreadID, run.ProjectID).Error("workflow failed", "reason", run.FailureReason)
		o.publishUpdate(run, events.WorkflowFailedUpdate, nil)
	case run.AllDone():
		run.Status = types.RunStatusDone
		now := time.Now()
		run.DoneAt = &now
		logging.ForRun(o.logger, run.ThreadID, run.ProjectID).Info("workflow complete", "steps", len(run.StepResults))
		o.publishUpdate(run, events.WorkflowComplete, nil)
	default:
		run.Status = types.RunStatusPaused
		o.publishUpdate(run, events.WorkflowPausedUpdate, nil)
	}

	if _, err := o.checkpoints.Save(ctx, run); err != nil {
		return fmt.Errorf("saving final checkpoint: %w", err)
	}
	return nil
}

// markSkipped marks every step without a result whose dependencies
// transitively include a failed or skipped step as skipped, run to a
// fixed point so multi-level dependency chains propagate in one pass.
func markSkipped(run *types.Run) {
	for {
		changed := false
		for id, step := range run.Steps {
			if _, done := run.StepResults[id]; done {
				continue
			}
			for _, dep := range step.Deps {
				res, ok := run.StepResults[dep]
				if ok && (res.Status == types.ResultFailed || res.Status == types.ResultSkipped) {
					run.StepResults[id] = types.StepResult{
						Status: types.ResultSkipped,
						Error:  fmt.Sprintf("skipped: dependency %s did not succeed", dep),
					}
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

// topLevelReady filters Run.Ready() down to steps not owned by a
// container.
func topLevelReady(run *types.Run, children map[string]bool) []string {
	var out []string
	for _, id := range run.Ready() {
		if !children[id] {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) runWave(ctx context.Context, run *types.Run, ids []string) {
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range ids {
		sem <- struct{}{}
		wg.Add(1)
		go func(stepID string) {
			defer wg.Done()
			defer func() { <-sem }()

			o.publishUpdate(run, events.WorkflowStepStart, map[string]any{"stepId": stepID})

			step := run.Steps[stepID]
			result := o.executeStep(ctx, run, step, &mu)

			mu.Lock()
			run.StepResults[stepID] = *result
			if result.Response != "" {
				run.StepOutputs[stepID] = result.Response
			}
			mu.Unlock()

			subtype := events.WorkflowStepComplete
			if result.Status == types.ResultFailed {
				subtype = events.WorkflowStepFailed
			}
			o.logStepResult(run, stepID, result)
			o.publishUpdate(run, subtype, map[string]any{"stepId": stepID})
		}(id)
	}
	wg.Wait()
}

// logStepResult records a failed step against its run/step-scoped
// logger; successful steps stay quiet to keep the log greppable.
func (o *Orchestrator) logStepResult(run *types.Run, stepID string, result *types.StepResult) {
	if result.Status != types.ResultFailed {
		return
	}
	logging.ForStep(logging.ForRun(o.logger, run.ThreadID, run.ProjectID), stepID).
		Error("step failed", "error", result.Error)
}

func firstFailureReason(run *types.Run) string {
	for id, res := range run.StepResults {
		if res.Status == types.ResultFailed {
			return fmt.Sprintf("step %s: %s", id, res.Error)
		}
	}
	return "unknown failure"
}

// workflowGraph projects a run's step map into the node/edge shape the
// graph_update subtype carries for visual observers: one
// node per step with its current result status, one edge per declared
// dependency.
func workflowGraph(run *types.Run) map[string]any {
	nodes := make([]map[string]any, 0, len(run.Steps))
	var edges []map[string]string
	for id, step := range run.Steps {
		node := map[string]any{"id": id, "type": string(step.Type)}
		if res, ok := run.StepResults[id]; ok {
			node["status"] = string(res.Status)
		}
		nodes = append(nodes, node)
		for _, dep := range step.Deps {
			edges = append(edges, map[string]string{"from": dep, "to": id})
		}
	}
	return map[string]any{"threadId": run.ThreadID, "nodes": nodes, "edges": edges}
}

// publishUpdate emits the single workflow:update event kind carrying a
// subtype in its data payload, the external event shape the Workflow
// Orchestrator exposes over the WebSocket transport.
func (o *Orchestrator) publishUpdate(run *types.Run, subtype events.WorkflowUpdateType, extra map[string]any) {
	if o.bus == nil {
		return
	}
	data := map[string]any{"threadId": run.ThreadID, "status": string(run.Status), "type": string(subtype)}
	for k, v := range extra {
		data[k] = v
	}
	o.bus.Publish(events.KindWorkflowUpdate, data)
}
