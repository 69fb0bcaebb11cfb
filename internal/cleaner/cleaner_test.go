package cleaner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/meow-stack/meowctl/internal/logging"
	"github.com/meow-stack/meowctl/internal/psutil"
	"github.com/meow-stack/meowctl/internal/registry"
	"github.com/meow-stack/meowctl/internal/types"
)

func newStore(t *testing.T) *registry.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	s := registry.NewStore(path)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func TestNew_InvalidPattern(t *testing.T) {
	store := newStore(t)
	_, err := New(store, nil, "(unterminated", time.Second, nil)
	if err == nil {
		t.Fatal("New() expected error for invalid regex")
	}
}

func TestSweep_IgnoresRegisteredLiveProcess(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	store.Register(ctx, &types.AgentProcess{
		AgentID: "agent-1", PID: os.Getpid(), Status: types.AgentStatusOnline, Role: "worker",
	})

	c, err := New(store, nil, `nonexistent-zombie-marker-xyz`, time.Second, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := c.CleanupZombies(ctx)
	if err != nil {
		t.Fatalf("CleanupZombies() error = %v", err)
	}
	if len(result.KilledProcesses) != 0 {
		t.Errorf("CleanupZombies() killed %v, want none", result.KilledProcesses)
	}
}

func TestNeedsCleanup_FalseWhenNoneDiscovered(t *testing.T) {
	store := newStore(t)
	c, err := New(store, nil, `nonexistent-zombie-marker-xyz`, time.Second, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	needs, err := c.NeedsCleanup(context.Background())
	if err != nil {
		t.Fatalf("NeedsCleanup() error = %v", err)
	}
	if needs {
		t.Error("NeedsCleanup() = true, want false")
	}
}

// TestCleanupZombies_KillsOnlyOrphanedAgent drives a full sweep against a
// synthetic process table: P1 is a registered live agent, P2 an orphaned
// agent-shaped process, P3 an unrelated process that never matches the
// pattern. Only P2 may be reclaimed.
func TestCleanupZombies_KillsOnlyOrphanedAgent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	const (
		p1 = 101
		p2 = 102
	)
	store.Register(ctx, &types.AgentProcess{
		AgentID: "agent-1", PID: p1, Status: types.AgentStatusOnline, Role: "worker",
	})

	c, err := New(store, nil, `claude-code`, 50*time.Millisecond, logging.NewForTest())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	alive := map[int]bool{p1: true, p2: true}
	var killed []int

	c.discover = func(*regexp.Regexp) ([]psutil.DiscoveredProcess, error) {
		// P3 never appears: its command line does not match the pattern.
		return []psutil.DiscoveredProcess{
			{PID: p1, Command: "/usr/bin/claude-code --api"},
			{PID: p2, Command: "/usr/bin/claude-code --api"},
		}, nil
	}
	c.isAlive = func(pid int) bool { return alive[pid] }
	c.terminate = func(pid int) error {
		delete(alive, pid)
		return nil
	}
	c.kill = func(pid int) error {
		killed = append(killed, pid)
		delete(alive, pid)
		return nil
	}

	result, err := c.CleanupZombies(ctx)
	if err != nil {
		t.Fatalf("CleanupZombies() error = %v", err)
	}

	want := []string{"PID 102: /usr/bin/claude-code --api"}
	if len(result.KilledProcesses) != 1 || result.KilledProcesses[0] != want[0] {
		t.Errorf("KilledProcesses = %v, want %v", result.KilledProcesses, want)
	}
	if len(killed) != 0 {
		t.Errorf("SIGKILL sent to %v; graceful termination should have sufficed", killed)
	}

	got, err := store.Get(ctx, "agent-1")
	if err != nil {
		t.Fatalf("registered agent was removed: %v", err)
	}
	if got.PID != p1 {
		t.Errorf("registered agent pid = %d, want %d", got.PID, p1)
	}
}

func TestReclaim_EscalatesToSigkillAfterGrace(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("could not start helper process: %v", err)
	}
	defer cmd.Wait()

	store := newStore(t)
	c, err := New(store, nil, `sleep`, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.reclaim(ctx, cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("process was not reaped within timeout")
	}
}
