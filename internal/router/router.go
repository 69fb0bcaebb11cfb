package router

import (
	"context"
	"fmt"
	"time"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/types"
)

// AgentLocator is the narrow look-up-and-ensure-alive capability the
// Router needs from the Process Registry, breaking the Registry<->Router
// reference cycle at the type level.
type AgentLocator interface {
	Get(ctx context.Context, agentID string) (*types.AgentProcess, error)
	GetOnline(ctx context.Context, projectID string) ([]*types.AgentProcess, error)
	UpdateStatus(ctx context.Context, agentID string, status types.AgentStatus, now time.Time) error
	// EnsureOnline respawns an offline/unborn agent and blocks until it
	// reports online, or returns an error. The real implementation
	// delegates to a process-spawning collaborator; the seam is exposed
	// here so tests can substitute a fake.
	EnsureOnline(ctx context.Context, agentID string) (*types.AgentProcess, error)
}

// Sender is the narrow capability the Router needs from the IPC
// client: deliver one message to an agent's socket, optionally waiting
// for a correlated reply.
type Sender interface {
	Send(ctx context.Context, agentID, from, content, correlationID string, wait bool, timeout time.Duration) (reply string, err error)
}

// RouteResult reports the outcome of routing a free-text message that may
// contain one or more @mentions.
type RouteResult struct {
	Routed  bool     `json:"routed"`
	Targets []string `json:"targets"`
	Failed  []string `json:"failed,omitempty"`
}

// BroadcastResult reports per-agent delivery outcome of a project-wide
// broadcast.
type BroadcastResult struct {
	Success []string `json:"success"`
	Failed  []string `json:"failed"`
}

// Router parses mentions in free text and dispatches them to target
// agents over IPC, auto-reviving offline ones, with broadcast and
// synchronous-wait semantics.
type Router struct {
	locator AgentLocator
	sender  Sender
	bus     *events.Bus

	defaultConcurrency int
	defaultTimeout     time.Duration

	batches *batchRegistry
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithDefaultConcurrency overrides the default batch concurrency of 2.
func WithDefaultConcurrency(n int) Option {
	return func(r *Router) { r.defaultConcurrency = n }
}

// WithDefaultTimeout overrides the default batch timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Router) { r.defaultTimeout = d }
}

// New creates a Router over the given AgentLocator and Sender.
func New(locator AgentLocator, sender Sender, bus *events.Bus, opts ...Option) *Router {
	r := &Router{
		locator:            locator,
		sender:             sender,
		bus:                bus,
		defaultConcurrency: 2,
		defaultTimeout:     5 * time.Minute,
		batches:            newBatchRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteOptions controls single-message delivery semantics.
type RouteOptions struct {
	Wait          bool
	Timeout       time.Duration
	CorrelationID string
	ProjectID     string

	// TargetProjectID pins a cross-project mention to a specific project.
	// A target registered under some third project (neither the caller's
	// nor this one) is an ambiguity error, never a silent pick.
	TargetProjectID string
}

// Route parses mentions out of message and dispatches each to its target,
// auto-reviving offline targets. A message with no mentions is
// routed as a broadcast to the project.
func (r *Router) Route(ctx context.Context, message, fromAgentID string, opts RouteOptions) (*RouteResult, error) {
	mentions := ParseMentions(message)
	if len(mentions) == 0 {
		bcast, err := r.BroadcastToProject(ctx, message, fromAgentID, opts.ProjectID)
		if err != nil {
			return nil, err
		}
		return &RouteResult{Routed: len(bcast.Success) > 0, Targets: bcast.Success, Failed: bcast.Failed}, nil
	}

	result := &RouteResult{}
	for _, m := range mentions {
		if err := r.routeOne(ctx, m.Target, m.Content, fromAgentID, opts); err != nil {
			result.Failed = append(result.Failed, m.Target)
			continue
		}
		result.Targets = append(result.Targets, m.Target)
	}
	result.Routed = len(result.Targets) > 0
	if len(result.Targets) == 0 {
		return result, errors.TargetNotFound(mentions[0].Target)
	}
	return result, nil
}

// routeOne delivers one mention: look the target up, revive it if
// offline, send over IPC, then mark it busy.
func (r *Router) routeOne(ctx context.Context, target, content, fromAgentID string, opts RouteOptions) error {
	agent, err := r.locator.Get(ctx, target)
	if err != nil {
		return errors.TargetNotFound(target)
	}

	if opts.TargetProjectID != "" &&
		agent.ProjectID != opts.TargetProjectID &&
		agent.ProjectID != opts.ProjectID &&
		agent.ProjectID != types.GlobalProject {
		return errors.AmbiguousTarget(target, []string{agent.ProjectID, opts.TargetProjectID})
	}

	if agent.Status == types.AgentStatusOffline || agent.PID == 0 {
		agent, err = r.locator.EnsureOnline(ctx, target)
		if err != nil {
			return errors.Wrap(errors.CodeResolutionNotFound, fmt.Sprintf("failed to revive %s", target), err)
		}
	}

	correlationID := opts.CorrelationID
	_, err = r.sender.Send(ctx, target, fromAgentID, content, correlationID, opts.Wait, opts.Timeout)
	if err != nil {
		return errors.Wrap(errors.CodeTransportRefused, fmt.Sprintf("delivery to %s failed", target), err)
	}

	now := time.Now()
	_ = r.locator.UpdateStatus(ctx, agent.AgentID, types.AgentStatusBusy, now)

	if r.bus != nil {
		r.bus.Publish(events.KindMessageNew, map[string]any{
			"from": fromAgentID, "to": target, "wait": opts.Wait,
		})
	}
	return nil
}

// BroadcastToProject fans a message out to every online agent in a
// project, excluding the sender (glossary: "Broadcast").
func (r *Router) BroadcastToProject(ctx context.Context, message, fromAgentID, projectID string) (*BroadcastResult, error) {
	agents, err := r.locator.GetOnline(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result := &BroadcastResult{}
	for _, a := range agents {
		if a.AgentID == fromAgentID {
			continue
		}
		if err := r.routeOne(ctx, a.AgentID, message, fromAgentID, RouteOptions{ProjectID: projectID}); err != nil {
			result.Failed = append(result.Failed, a.AgentID)
			continue
		}
		result.Success = append(result.Success, a.AgentID)
	}
	return result, nil
}
