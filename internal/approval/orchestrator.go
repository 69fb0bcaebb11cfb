package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/logging"
	"github.com/meow-stack/meowctl/internal/types"
)

// Filter scopes ListApprovals / GetPendingForProject queries.
type Filter struct {
	ProjectID string
	Status    types.ApprovalStatus
}

// CreateRequest is the input to CreateApproval.
type CreateRequest struct {
	ThreadID     string
	StepID       string
	ProjectID    string
	WorkflowName string

	Task   string // used only for risk inference alongside Prompt
	Prompt string

	ContextData map[string]any
	RiskLevel   types.RiskLevel // inferred from Task+Prompt when empty

	TimeoutSeconds          int
	ApprovalRequired        bool
	AutoApproveAfterTimeout bool
}

// Orchestrator owns the lifecycle of Approval records: creation,
// decision processing, expiry sweeping, and the polling/notify wait
// used by the Workflow Orchestrator's human step.
type Orchestrator struct {
	store  *Store
	bus    *events.Bus
	logger *slog.Logger

	pollInterval         time.Duration
	infinitePollInterval time.Duration

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

// New creates an Approval Orchestrator.
func New(store *Store, bus *events.Bus, pollInterval, infinitePollInterval time.Duration) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if infinitePollInterval <= 0 {
		infinitePollInterval = 5 * time.Second
	}
	return &Orchestrator{
		store:                store,
		bus:                  bus,
		logger:               slog.Default(),
		pollInterval:         pollInterval,
		infinitePollInterval: infinitePollInterval,
		waiters:              make(map[string][]chan struct{}),
	}
}

// SetLogger replaces the default process logger; decision records are
// tagged through logging.ForApproval on top of it.
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	if l != nil {
		o.logger = l.With("component", "approvals")
	}
}

// CreateApproval creates a new pending approval.
func (o *Orchestrator) CreateApproval(ctx context.Context, req CreateRequest) (*types.Approval, error) {
	risk := req.RiskLevel
	if risk == "" {
		risk = InferRisk(req.Task, req.Prompt)
	}

	now := time.Now()
	a := &types.Approval{
		ApprovalID:              uuid.NewString(),
		ThreadID:                req.ThreadID,
		StepID:                  req.StepID,
		ProjectID:               req.ProjectID,
		WorkflowName:            req.WorkflowName,
		Prompt:                  req.Prompt,
		ContextData:             req.ContextData,
		RiskLevel:               risk,
		RequestedAt:             now,
		TimeoutSecs:             req.TimeoutSeconds,
		Status:                  types.ApprovalPending,
		ApprovalRequired:        req.ApprovalRequired,
		AutoApproveAfterTimeout: req.AutoApproveAfterTimeout,
	}
	if req.TimeoutSeconds > 0 {
		expires := now.Add(time.Duration(req.TimeoutSeconds) * time.Second)
		a.ExpiresAt = &expires
	}

	if err := o.store.put(a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetApproval retrieves an approval by id. enriched is accepted for
// interface parity but this implementation has no additional
// enrichment to apply beyond the stored record, whose contextData
// already carries the step-history snapshot verbatim.
func (o *Orchestrator) GetApproval(ctx context.Context, id string, enriched bool) (*types.Approval, error) {
	return o.store.get(id)
}

// ListApprovals returns approvals matching filter.
func (o *Orchestrator) ListApprovals(ctx context.Context, filter Filter) ([]*types.Approval, error) {
	return o.store.list(filter)
}

// GetPendingForProject returns every pending approval scoped to a project.
func (o *Orchestrator) GetPendingForProject(ctx context.Context, projectID string) ([]*types.Approval, error) {
	return o.store.list(Filter{ProjectID: projectID, Status: types.ApprovalPending})
}

// ProcessDecision transitions a pending approval to a terminal state
// and wakes any WaitForDecision callers.
func (o *Orchestrator) ProcessDecision(ctx context.Context, id string, target types.ApprovalStatus, by string) (*types.Approval, error) {
	a, err := o.store.get(id)
	if err != nil {
		return nil, err
	}
	if err := a.Resolve(target, by, time.Now()); err != nil {
		return nil, errors.ValidationFailed(err.Error())
	}
	if err := o.store.put(a); err != nil {
		return nil, err
	}
	o.notify(id)
	logging.ForApproval(o.logger, a.ApprovalID, a.ThreadID, a.StepID).
		Info("approval resolved", "status", string(a.Status), "by", by)
	kind := events.KindApprovalProcessed
	if target == types.ApprovalCancelled {
		kind = events.KindApprovalCancelled
	}
	o.publish(kind, a)
	return a, nil
}

// CancelApproval transitions a pending approval to cancelled.
func (o *Orchestrator) CancelApproval(ctx context.Context, id, by string) (*types.Approval, error) {
	return o.ProcessDecision(ctx, id, types.ApprovalCancelled, by)
}

// ProcessExpiredApprovals sweeps pending approvals whose deadline has
// passed, resolving each to expired (or approved, when
// autoApproveAfterTimeout is set), and returns the number processed.
func (o *Orchestrator) ProcessExpiredApprovals(ctx context.Context) (int, error) {
	pending, err := o.store.list(Filter{Status: types.ApprovalPending})
	if err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0
	for _, a := range pending {
		if a.ExpiresAt == nil || now.Before(*a.ExpiresAt) {
			continue
		}
		target := types.ApprovalExpired
		if a.AutoApproveAfterTimeout {
			target = types.ApprovalApproved
		}
		if _, err := o.ProcessDecision(ctx, a.ApprovalID, target, "system"); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// WaitForDecision polls (with an immediate wake on ProcessDecision) until
// the approval resolves or the timeout budget elapses. It returns
// true for an approved outcome, false for rejected, and an error for
// cancellation or a fail-behavior expiry.
func (o *Orchestrator) WaitForDecision(ctx context.Context, approvalID string, timeoutSeconds int, behavior types.TimeoutBehavior) (bool, error) {
	interval := o.pollInterval
	var deadline time.Time
	hasDeadline := behavior != types.TimeoutInfinite && timeoutSeconds > 0
	if behavior == types.TimeoutInfinite {
		interval = o.infinitePollInterval
	}
	if hasDeadline {
		deadline = time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	}

	notify := o.subscribe(approvalID)
	defer o.unsubscribe(approvalID, notify)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a, err := o.store.get(approvalID)
		if err != nil {
			return false, err
		}
		switch a.Status {
		case types.ApprovalApproved:
			return true, nil
		case types.ApprovalRejected:
			return false, nil
		case types.ApprovalCancelled:
			return false, errors.New(errors.CodeCancelled, "approval was cancelled")
		case types.ApprovalExpired:
			return false, errors.ApprovalTimedOut(approvalID, timeoutSeconds)
		}

		if hasDeadline && !time.Now().Before(deadline) {
			switch behavior {
			case types.TimeoutAutoApprove:
				_, _ = o.ProcessDecision(ctx, approvalID, types.ApprovalApproved, "system")
				return true, nil
			default: // fail
				_, _ = o.ProcessDecision(ctx, approvalID, types.ApprovalExpired, "system")
				return false, errors.ApprovalTimedOut(approvalID, timeoutSeconds)
			}
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-notify:
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) subscribe(id string) chan struct{} {
	ch := make(chan struct{}, 1)
	o.mu.Lock()
	o.waiters[id] = append(o.waiters[id], ch)
	o.mu.Unlock()
	return ch
}

func (o *Orchestrator) unsubscribe(id string, ch chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	chans := o.waiters[id]
	for i, c := range chans {
		if c == ch {
			o.waiters[id] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
}

func (o *Orchestrator) notify(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.waiters[id] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (o *Orchestrator) publish(kind events.Kind, a *types.Approval) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(kind, map[string]any{
		"approvalId": a.ApprovalID,
		"threadId":   a.ThreadID,
		"stepId":     a.StepID,
		"status":     string(a.Status),
	})
}
