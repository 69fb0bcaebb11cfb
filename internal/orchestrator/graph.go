package orchestrator

import (
	"context"
	"fmt"

	"github.com/meow-stack/meowctl/internal/dag"
	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/template"
	"github.com/meow-stack/meowctl/internal/types"
)

// childStepIDs returns every step id that is executed as a member of a
// container step (a parallel fan-out, a loop body, or a conditional
// branch) rather than scheduled directly off the top-level dependency
// graph. The main run loop skips these; the container's own executor
// drives them.
func childStepIDs(steps map[string]*types.Step) map[string]bool {
	children := make(map[string]bool)
	for _, s := range steps {
		switch s.Type {
		case types.StepParallel:
			for _, id := range s.Parallel.ParallelSteps {
				children[id] = true
			}
		case types.StepLoop:
			for _, id := range s.Loop.LoopSteps {
				children[id] = true
			}
		case types.StepConditional:
			if s.Conditional.TrueBranch != "" {
				children[s.Conditional.TrueBranch] = true
			}
			if s.Conditional.FalseBranch != "" {
				children[s.Conditional.FalseBranch] = true
			}
		}
	}
	return children
}

// buildGraph projects a step map onto a dag.Graph keyed by declared Deps.
func buildGraph(steps map[string]*types.Step) dag.Graph {
	g := make(dag.Graph, len(steps))
	for id, s := range steps {
		g[id] = s.Deps
	}
	return g
}

// Validate runs the full structural validation pass: per-step
// well-formedness, binding/container references resolving to known
// steps, template output references resolving to known steps, and
// cycle detection over the declared Deps graph. A template reference
// to a step that does not exist at all is an error; a reference to an
// existing step the referencing step does not depend on comes back as
// a warning instead, since the output may simply not be ready yet.
func Validate(steps []*types.Step) ([]template.Warning, error) {
	byID := make(map[string]*types.Step, len(steps))
	for _, s := range steps {
		if err := s.Validate(); err != nil {
			return nil, errors.ValidationFailed(err.Error())
		}
		if _, dup := byID[s.ID]; dup {
			return nil, errors.ValidationFailed(fmt.Sprintf("duplicate step id %q", s.ID))
		}
		byID[s.ID] = s
	}
	exists := func(id string) bool {
		_, ok := byID[id]
		return ok
	}

	var warnings []template.Warning
	for _, s := range steps {
		for _, ref := range containerRefs(s) {
			if !exists(ref) {
				return nil, errors.ValidationFailed(fmt.Sprintf("step %q references unknown step %q", s.ID, ref))
			}
		}
		for _, text := range templateTexts(s) {
			ws, err := template.CheckRefs(text, s.ID, s.Deps, exists)
			if err != nil {
				return nil, errors.ValidationFailed(err.Error())
			}
			warnings = append(warnings, ws...)
		}
	}

	if err := dag.Validate(buildGraph(byID)); err != nil {
		return nil, err
	}
	return warnings, nil
}

// validateBindings checks the step list against the configured
// project/agent-config catalog: every role must resolve (project-scoped
// then global) and every explicit agentId through the AgentResolver, run
// before any node executes and with no side effects.
func (o *Orchestrator) validateBindings(ctx context.Context, projectID string, steps []*types.Step) error {
	seenRoles := make(map[string]bool)
	for _, s := range steps {
		if s.Agent != "" {
			if _, err := o.resolver.Get(ctx, s.Agent); err != nil {
				return errors.ValidationFailed(fmt.Sprintf("step %s: agentId %q does not resolve in project %s", s.ID, s.Agent, projectID))
			}
			continue
		}
		if s.Role == "" || seenRoles[s.Role] {
			continue
		}
		seenRoles[s.Role] = true
		if _, err := o.configs.ResolveAgentConfig(ctx, projectID, s.Role); err != nil {
			return errors.ValidationFailed(fmt.Sprintf("no agent found for role %s", s.Role))
		}
	}
	return nil
}

// CheckCompatible verifies that steps has the same ids, types, and
// declared-dependency shape as the checkpointed graph before a resume
// is allowed to proceed. Anything else (task text, prompts) is free to
// differ across a resume.
func CheckCompatible(checkpointed map[string]*types.Step, steps []*types.Step) error {
	if len(steps) != len(checkpointed) {
		return errors.IncompatibleCheckpoint(fmt.Sprintf("step count changed: checkpoint has %d, resume supplied %d", len(checkpointed), len(steps)))
	}
	for _, s := range steps {
		prior, ok := checkpointed[s.ID]
		if !ok {
			return errors.IncompatibleCheckpoint(fmt.Sprintf("step %q is not present in the checkpointed graph", s.ID))
		}
		if prior.Type != s.Type {
			return errors.IncompatibleCheckpoint(fmt.Sprintf("step %q changed type from %q to %q", s.ID, prior.Type, s.Type))
		}
		if !sameStringSet(prior.Deps, s.Deps) {
			return errors.IncompatibleCheckpoint(fmt.Sprintf("step %q changed its dependencies", s.ID))
		}
	}
	return nil
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

func containerRefs(s *types.Step) []string {
	switch s.Type {
	case types.StepParallel:
		return s.Parallel.ParallelSteps
	case types.StepLoop:
		return s.Loop.LoopSteps
	case types.StepConditional:
		var refs []string
		if s.Conditional.TrueBranch != "" {
			refs = append(refs, s.Conditional.TrueBranch)
		}
		if s.Conditional.FalseBranch != "" {
			refs = append(refs, s.Conditional.FalseBranch)
		}
		return refs
	}
	return nil
}

// templateTexts returns every free-text field of a step that may carry
// {stepId.field} references.
func templateTexts(s *types.Step) []string {
	texts := []string{s.Task}
	if s.Human != nil {
		texts = append(texts, s.Human.Prompt)
	}
	return texts
}
