package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/template"
	"github.com/meow-stack/meowctl/internal/types"

	"golang.org/x/sync/errgroup"
)

// executeStep dispatches a single step to its type-specific executor and
// always returns a terminal StepResult, never panicking the wave.
func (o *Orchestrator) executeStep(ctx context.Context, run *types.Run, step *types.Step, mu *sync.Mutex) *types.StepResult {
	start := time.Now()
	var result *types.StepResult

	switch step.Type {
	case types.StepTask:
		result = o.executeTask(ctx, run, step, mu)
	case types.StepHuman:
		result = o.executeHuman(ctx, run, step, mu)
	case types.StepParallel:
		result = o.executeParallel(ctx, run, step, mu)
	case types.StepLoop:
		result = o.executeLoop(ctx, run, step, mu)
	case types.StepConditional:
		result = o.executeConditional(ctx, run, step, mu)
	default:
		result = &types.StepResult{Status: types.ResultFailed, Error: fmt.Sprintf("unknown step type %q", step.Type)}
	}

	result.Duration = float64(time.Since(start).Milliseconds())
	return result
}

// outputsSnapshot builds the template.Outputs view of a run's recorded
// results under mu, so concurrent wave siblings can't mutate the maps
// mid-read.
func outputsSnapshot(run *types.Run, mu *sync.Mutex) template.Outputs {
	mu.Lock()
	defer mu.Unlock()
	out := make(template.Outputs, len(run.StepResults))
	for id, res := range run.StepResults {
		out[id] = map[string]any{
			"output":    run.StepOutputs[id],
			"status":    string(res.Status),
			"sessionId": res.SessionID,
			"error":     res.Error,
		}
	}
	return out
}

func (o *Orchestrator) executeTask(ctx context.Context, run *types.Run, step *types.Step, mu *sync.Mutex) *types.StepResult {
	agent, err := o.resolveBinding(ctx, run.ProjectID, step)
	if err != nil {
		return &types.StepResult{Status: types.ResultFailed, Error: err.Error()}
	}

	task := template.Resolve(step.Task, outputsSnapshot(run, mu))
	mu.Lock()
	sessionID := run.SessionIDs[agent.AgentID]
	mu.Unlock()

	resp, newSessionID, err := o.invoker.Invoke(ctx, agent.AgentID, agent.Role, task, agent.Config, sessionID, false)
	if err != nil {
		return &types.StepResult{Status: types.ResultFailed, SessionID: sessionID, Error: err.Error()}
	}

	if newSessionID != "" {
		mu.Lock()
		run.SessionIDs[agent.AgentID] = newSessionID
		mu.Unlock()
	}
	return &types.StepResult{Status: types.ResultSuccess, Response: resp, SessionID: newSessionID}
}

// resolveBinding resolves a step's role/agentId to a concrete agent
// process: an explicit agentId always wins; a role must
// resolve to exactly one registered candidate (of any status) within the
// run's project, else the binding is rejected as not-found/ambiguous.
func (o *Orchestrator) resolveBinding(ctx context.Context, projectID string, step *types.Step) (*types.AgentProcess, error) {
	if step.Agent != "" {
		return o.resolver.Get(ctx, step.Agent)
	}

	candidates, err := o.resolver.ListByRole(ctx, projectID, step.Role)
	if err != nil {
		return nil, err
	}
	// Resolution order for a (project, role) pair: project-scoped match
	// first, global fallback second.
	if len(candidates) == 0 && projectID != "" && projectID != types.GlobalProject {
		candidates, err = o.resolver.ListByRole(ctx, types.GlobalProject, step.Role)
		if err != nil {
			return nil, err
		}
	}
	switch len(candidates) {
	case 0:
		return nil, errors.TargetNotFound(step.Role)
	case 1:
		return candidates[0], nil
	default:
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.AgentID
		}
		return nil, errors.AmbiguousTarget(step.Role, ids)
	}
}

// executeHuman gates the step behind the Approval Orchestrator. In
// mock mode it still goes through CreateApproval so
// the record exists for observability, but waits at most two seconds
// for a decision and auto-approves when none arrives.
func (o *Orchestrator) executeHuman(ctx context.Context, run *types.Run, step *types.Step, mu *sync.Mutex) *types.StepResult {
	h := step.Human
	risk := h.RiskLevel

	approvalID, err := o.approvals.CreateApproval(ctx, CreateApprovalRequest{
		ThreadID:                run.ThreadID,
		StepID:                  step.ID,
		ProjectID:               run.ProjectID,
		Task:                    step.Task,
		Prompt:                  template.Resolve(h.Prompt, outputsSnapshot(run, mu)),
		RiskLevel:               risk,
		TimeoutSeconds:          h.TimeoutSeconds,
		ApprovalRequired:        h.InteractionType == types.InteractionApproval,
		AutoApproveAfterTimeout: h.TimeoutBehavior == types.TimeoutAutoApprove,
	})
	if err != nil {
		return &types.StepResult{Status: types.ResultFailed, Error: err.Error()}
	}

	timeoutSeconds := h.TimeoutSeconds
	behavior := h.TimeoutBehavior
	if o.mockAI {
		timeoutSeconds = 2
		behavior = types.TimeoutAutoApprove
	}
	if behavior == "" {
		behavior = types.TimeoutInfinite
	}

	approved, err := o.approvals.WaitForDecision(ctx, approvalID, timeoutSeconds, behavior)
	if err != nil {
		return &types.StepResult{Status: types.ResultFailed, Error: err.Error()}
	}
	if !approved {
		return &types.StepResult{Status: types.ResultFailed, Error: "Human approval rejected"}
	}
	return &types.StepResult{Status: types.ResultSuccess, Response: "Human approval granted"}
}

func (o *Orchestrator) executeParallel(ctx context.Context, run *types.Run, step *types.Step, mu *sync.Mutex) *types.StepResult {
	g, gctx := errgroup.WithContext(ctx)
	for _, childID := range step.Parallel.ParallelSteps {
		childID := childID
		g.Go(func() error {
			o.executeAndRecord(gctx, run, childID, mu, nil)
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	failed := false
	for _, childID := range step.Parallel.ParallelSteps {
		if res, ok := run.StepResults[childID]; ok && res.Status == types.ResultFailed {
			failed = true
		}
	}
	mu.Unlock()

	if failed {
		return &types.StepResult{Status: types.ResultFailed, Error: "one or more parallel branches failed"}
	}
	return &types.StepResult{Status: types.ResultSuccess}
}

func (o *Orchestrator) executeLoop(ctx context.Context, run *types.Run, step *types.Step, mu *sync.Mutex) *types.StepResult {
	l := step.Loop
	items := l.Items
	if l.MaxIterations > 0 && len(items) > l.MaxIterations {
		items = items[:l.MaxIterations]
	}

	failed := 0
	for _, item := range items {
		for _, childID := range l.LoopSteps {
			child, ok := run.Steps[childID]
			if !ok {
				continue
			}
			bound := bindLoopVar(*child, l.LoopVar, item)
			iterationID := fmt.Sprintf("%s_%s_%s", childID, l.LoopVar, item)
			o.executeAndRecord(ctx, run, childID, mu, &boundOverride{id: iterationID, step: &bound})

			mu.Lock()
			if res, ok := run.StepResults[iterationID]; ok && res.Status == types.ResultFailed {
				failed++
			}
			mu.Unlock()
		}
	}

	if failed > 0 {
		return &types.StepResult{
			Status: types.ResultFailed,
			Error:  fmt.Sprintf("%d of %d iteration step(s) failed", failed, len(items)*len(l.LoopSteps)),
		}
	}
	return &types.StepResult{Status: types.ResultSuccess, Response: strconv.Itoa(len(items)) + " iterations"}
}

// bindLoopVar substitutes every "{loopVar}" placeholder in a loop
// child's task/prompt text with the current item, a syntax distinct from
// the {stepId.field} output-reference grammar since a loop variable has
// no producing step.
func bindLoopVar(step types.Step, loopVar, item string) types.Step {
	placeholder := "{" + loopVar + "}"
	step.Task = strings.ReplaceAll(step.Task, placeholder, item)
	if step.Human != nil {
		h := *step.Human
		h.Prompt = strings.ReplaceAll(h.Prompt, placeholder, item)
		step.Human = &h
	}
	return step
}

func (o *Orchestrator) executeConditional(ctx context.Context, run *types.Run, step *types.Step, mu *sync.Mutex) *types.StepResult {
	c := step.Conditional
	match, err := evaluateCondition(c.Condition, outputsSnapshot(run, mu))
	if err != nil {
		return &types.StepResult{Status: types.ResultFailed, Error: err.Error()}
	}

	branchName := "false"
	branch := c.FalseBranch
	if match {
		branchName = "true"
		branch = c.TrueBranch
	}
	if branch == "" {
		return &types.StepResult{Status: types.ResultSuccess, Response: fmt.Sprintf("skipped (%s)", branchName)}
	}

	o.executeAndRecord(ctx, run, branch, mu, nil)

	mu.Lock()
	res, ok := run.StepResults[branch]
	mu.Unlock()
	if !ok {
		return &types.StepResult{Status: types.ResultFailed, Error: fmt.Sprintf("branch %s produced no result", branch)}
	}

	status := types.ResultSuccess
	if res.Status == types.ResultFailed {
		status = types.ResultFailed
	}
	return &types.StepResult{
		Status:   status,
		Response: fmt.Sprintf("executed %s branch (%s)", branchName, branch),
		Error:    res.Error,
	}
}

// boundOverride lets a loop iteration record its child's result under a
// synthetic per-iteration id instead of the shared child step id, so
// repeated iterations don't overwrite one another.
type boundOverride struct {
	id   string
	step *types.Step
}

// executeAndRecord runs one step (or an iteration-bound override of it)
// and writes its result into the run's maps under mu, so sibling/parent
// container logic can read it back immediately. Emits step_start before
// dispatch and step_complete/step_failed after, the same events a
// top-level step gets from runWave, so a parallel/loop/conditional
// parent's children are individually observable over workflow:update
// alongside the parent's own aggregate events.
func (o *Orchestrator) executeAndRecord(ctx context.Context, run *types.Run, stepID string, mu *sync.Mutex, override *boundOverride) {
	step := run.Steps[stepID]
	if step == nil {
		return
	}
	recordID := stepID
	if override != nil {
		step = override.step
		recordID = override.id
	}

	o.publishUpdate(run, events.WorkflowStepStart, map[string]any{"stepId": recordID})

	result := o.executeStep(ctx, run, step, mu)

	mu.Lock()
	run.StepResults[recordID] = *result
	if result.Response != "" {
		run.StepOutputs[recordID] = result.Response
	}
	mu.Unlock()

	subtype := events.WorkflowStepComplete
	if result.Status == types.ResultFailed {
		subtype = events.WorkflowStepFailed
	}
	o.logStepResult(run, recordID, result)
	o.publishUpdate(run, subtype, map[string]any{"stepId": recordID})
}
