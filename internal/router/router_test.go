package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meow-stack/meowctl/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeLocator struct {
	mu     sync.Mutex
	agents map[string]*types.AgentProcess
	revive func(string) (*types.AgentProcess, error)
}

func newFakeLocator() *fakeLocator {
	return &fakeLocator{agents: make(map[string]*types.AgentProcess)}
}

func (f *fakeLocator) put(a *types.AgentProcess) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[a.AgentID] = a
}

func (f *fakeLocator) Get(ctx context.Context, agentID string) (*types.AgentProcess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return nil, assertErr("not found")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeLocator) GetOnline(ctx context.Context, projectID string) ([]*types.AgentProcess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.AgentProcess
	for _, a := range f.agents {
		if (projectID == "" || a.ProjectID == projectID) &&
			(a.Status == types.AgentStatusOnline || a.Status == types.AgentStatusBusy) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLocator) UpdateStatus(ctx context.Context, agentID string, status types.AgentStatus, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return assertErr("not found")
	}
	a.Status = status
	return nil
}

func (f *fakeLocator) EnsureOnline(ctx context.Context, agentID string) (*types.AgentProcess, error) {
	if f.revive != nil {
		return f.revive(agentID)
	}
	return nil, assertErr("no spawner")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]bool
	delay time.Duration
}

func newFakeSender() *fakeSender { return &fakeSender{fail: make(map[string]bool)} }

func (f *fakeSender) Send(ctx context.Context, agentID, from, content, correlationID string, wait bool, timeout time.Duration) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, agentID)
	fail := f.fail[agentID]
	f.mu.Unlock()
	if fail {
		return "", assertErr("delivery failed")
	}
	return "ok:" + content, nil
}

func TestRoute_DeliversToOnlineTarget(t *testing.T) {
	loc := newFakeLocator()
	loc.put(&types.AgentProcess{AgentID: "dev", Status: types.AgentStatusOnline, PID: 1, Role: "developer"})
	sender := newFakeSender()
	r := New(loc, sender, nil)

	result, err := r.Route(context.Background(), "@dev please help", "human", RouteOptions{Wait: true})
	require.NoError(t, err)
	require.True(t, result.Routed)
	require.Equal(t, []string{"dev"}, result.Targets)
}

func TestRoute_RevivesOfflineTarget(t *testing.T) {
	loc := newFakeLocator()
	loc.put(&types.AgentProcess{AgentID: "dev", Status: types.AgentStatusOffline, Role: "developer"})
	revived := false
	loc.revive = func(id string) (*types.AgentProcess, error) {
		revived = true
		return &types.AgentProcess{AgentID: id, Status: types.AgentStatusOnline, PID: 2}, nil
	}
	sender := newFakeSender()
	r := New(loc, sender, nil)

	result, err := r.Route(context.Background(), "@dev wake up", "human", RouteOptions{})
	require.NoError(t, err)
	require.True(t, revived)
	require.True(t, result.Routed)
}

func TestRoute_UnknownTargetFails(t *testing.T) {
	loc := newFakeLocator()
	sender := newFakeSender()
	r := New(loc, sender, nil)

	_, err := r.Route(context.Background(), "@ghost hello", "human", RouteOptions{})
	require.Error(t, err)
}

func TestRoute_CrossProjectMismatchIsAmbiguous(t *testing.T) {
	loc := newFakeLocator()
	loc.put(&types.AgentProcess{AgentID: "dev", ProjectID: "p3", Status: types.AgentStatusOnline, PID: 1})
	sender := newFakeSender()
	r := New(loc, sender, nil)

	_, err := r.Route(context.Background(), "@dev hi", "human", RouteOptions{
		ProjectID:       "p1",
		TargetProjectID: "p2",
	})
	require.Error(t, err)
	require.Empty(t, sender.sent)
}

func TestBroadcastToProject_ExcludesSender(t *testing.T) {
	loc := newFakeLocator()
	loc.put(&types.AgentProcess{AgentID: "sender", ProjectID: "p1", Status: types.AgentStatusOnline, PID: 1})
	loc.put(&types.AgentProcess{AgentID: "dev", ProjectID: "p1", Status: types.AgentStatusOnline, PID: 2})
	sender := newFakeSender()
	r := New(loc, sender, nil)

	result, err := r.BroadcastToProject(context.Background(), "status update", "sender", "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"dev"}, result.Success)
	require.Empty(t, result.Failed)
}
