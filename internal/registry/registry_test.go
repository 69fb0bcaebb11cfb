package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/types"
)

func newLoadedStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	s := NewStore(path)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s, path
}

func TestRegisterAndGet(t *testing.T) {
	s, _ := newLoadedStore(t)
	ctx := context.Background()

	agent := &types.AgentProcess{
		AgentID: "agent-1", ProjectID: "proj-a", PID: os.Getpid(),
		Status: types.AgentStatusOnline, Role: "worker",
	}
	if err := s.Register(ctx, agent); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := s.Get(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ProjectID != "proj-a" || got.Status != types.AgentStatusOnline {
		t.Errorf("Get() = %+v, unexpected fields", got)
	}
}

func TestRegister_InvalidAgentRejected(t *testing.T) {
	s, _ := newLoadedStore(t)
	err := s.Register(context.Background(), &types.AgentProcess{Status: types.AgentStatusOnline})
	if err == nil {
		t.Fatal("Register() expected error for missing agentId")
	}
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newLoadedStore(t)
	_, err := s.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("Get() expected error for missing agent")
	}
}

func TestPersistenceAcrossLoad(t *testing.T) {
	s, path := newLoadedStore(t)
	ctx := context.Background()

	agent := &types.AgentProcess{AgentID: "agent-1", PID: 1, Status: types.AgentStatusOnline, Role: "worker"}
	if err := s.Register(ctx, agent); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	s2 := NewStore(path)
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := s2.Get(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Get() after reload error = %v", err)
	}
	if got.AgentID != "agent-1" {
		t.Errorf("AgentID = %s, want agent-1", got.AgentID)
	}
}

func TestRegistryFileShape(t *testing.T) {
	s, path := newLoadedStore(t)
	ctx := context.Background()

	agent := &types.AgentProcess{AgentID: "agent-1", PID: 1, Status: types.AgentStatusOnline, Role: "worker"}
	if err := s.Register(ctx, agent); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading registry file: %v", err)
	}

	var file struct {
		Processes map[string]*types.AgentProcess `json:"processes"`
		Version   string                         `json:"version"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("registry file is not valid JSON: %v", err)
	}
	if file.Version != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", file.Version)
	}
	if _, ok := file.Processes["agent-1"]; !ok {
		t.Errorf("processes missing agent-1: %v", file.Processes)
	}
}

func TestLoad_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() of corrupt file should start empty, got error %v", err)
	}
	agents, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(agents) != 0 {
		t.Errorf("List() = %d agents, want 0", len(agents))
	}
}

func TestRemove(t *testing.T) {
	s, _ := newLoadedStore(t)
	ctx := context.Background()

	agent := &types.AgentProcess{AgentID: "agent-1", PID: 1, Status: types.AgentStatusOnline, Role: "worker"}
	if err := s.Register(ctx, agent); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Remove(ctx, "agent-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Get(ctx, "agent-1"); err == nil {
		t.Error("Get() after Remove() should fail")
	}
}

func TestListByRole(t *testing.T) {
	s, _ := newLoadedStore(t)
	ctx := context.Background()

	s.Register(ctx, &types.AgentProcess{AgentID: "a1", ProjectID: "p", PID: 1, Status: types.AgentStatusOnline, Role: "reviewer"})
	s.Register(ctx, &types.AgentProcess{AgentID: "a2", ProjectID: "p", PID: 1, Status: types.AgentStatusOnline, Role: "worker"})

	matches, err := s.ListByRole(ctx, "p", "reviewer")
	if err != nil {
		t.Fatalf("ListByRole() error = %v", err)
	}
	if len(matches) != 1 || matches[0].AgentID != "a1" {
		t.Errorf("ListByRole() = %+v, want [a1]", matches)
	}
}

func TestHealthChecker_MarksDeadProcessOffline(t *testing.T) {
	s, _ := newLoadedStore(t)
	ctx := context.Background()

	// PID 999999 is assumed not alive in the test sandbox.
	s.Register(ctx, &types.AgentProcess{AgentID: "a1", PID: 999999, Status: types.AgentStatusOnline, Role: "worker"})

	bus := events.NewBus(4)
	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	hc := NewHealthChecker(s, bus, time.Hour, nil)
	hc.sweep(ctx)

	got, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != types.AgentStatusOffline {
		t.Errorf("Status = %s, want offline", got.Status)
	}

	select {
	case evt := <-sub:
		if evt.Kind != events.KindProcessStatusChange {
			t.Errorf("event kind = %s, want %s", evt.Kind, events.KindProcessStatusChange)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a status-change event")
	}
}

func TestHealthChecker_LeavesLiveProcessAlone(t *testing.T) {
	s, _ := newLoadedStore(t)
	ctx := context.Background()

	s.Register(ctx, &types.AgentProcess{AgentID: "a1", PID: os.Getpid(), Status: types.AgentStatusOnline, Role: "worker"})

	hc := NewHealthChecker(s, nil, time.Hour, nil)
	hc.sweep(ctx)

	got, _ := s.Get(ctx, "a1")
	if got.Status != types.AgentStatusOnline {
		t.Errorf("Status = %s, want online (process still alive)", got.Status)
	}
}
