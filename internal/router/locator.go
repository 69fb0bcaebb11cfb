package router

import (
	"context"
	"time"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/registry"
	"github.com/meow-stack/meowctl/internal/types"
)

// Spawner revives an offline agent process. The Router only needs this
// narrow seam to ask for a revival and learn whether the agent came
// back online; how the process actually launches is the implementation's
// business.
type Spawner interface {
	Spawn(ctx context.Context, agentID string) (*types.AgentProcess, error)
}

// RegistryLocator adapts internal/registry.Store plus a Spawner to the
// Router's AgentLocator capability.
type RegistryLocator struct {
	store   *registry.Store
	spawner Spawner
}

// NewRegistryLocator builds the default AgentLocator.
func NewRegistryLocator(store *registry.Store, spawner Spawner) *RegistryLocator {
	return &RegistryLocator{store: store, spawner: spawner}
}

func (l *RegistryLocator) Get(ctx context.Context, agentID string) (*types.AgentProcess, error) {
	return l.store.Get(ctx, agentID)
}

func (l *RegistryLocator) GetOnline(ctx context.Context, projectID string) ([]*types.AgentProcess, error) {
	all, err := l.store.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var online []*types.AgentProcess
	for _, a := range all {
		if a.Status == types.AgentStatusOnline || a.Status == types.AgentStatusBusy {
			online = append(online, a)
		}
	}
	return online, nil
}

func (l *RegistryLocator) UpdateStatus(ctx context.Context, agentID string, status types.AgentStatus, now time.Time) error {
	return l.store.UpdateStatus(ctx, agentID, status, now)
}

func (l *RegistryLocator) EnsureOnline(ctx context.Context, agentID string) (*types.AgentProcess, error) {
	if l.spawner == nil {
		return nil, errors.Newf(errors.CodeResolutionNotFound, "agent %s is offline and no spawner is configured", agentID)
	}
	agent, err := l.spawner.Spawn(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != types.AgentStatusOnline && agent.Status != types.AgentStatusBusy {
		return nil, errors.Newf(errors.CodeResolutionNotFound, "agent %s failed to come online", agentID)
	}
	return agent, nil
}
