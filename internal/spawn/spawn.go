// Package spawn implements the router.Spawner seam: reviving an offline
// agent by launching its process and waiting for it to self-register
// online with the Process Registry.
//
// The spawned process learns its identity through MEOW_* environment
// variables and is expected to flip its own registry record to online
// once its IPC listener is accepting connections; Spawn blocks on that
// transition.
package spawn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/registry"
	"github.com/meow-stack/meowctl/internal/types"
)

// ProcessSpawner launches a configured agent binary and polls the
// registry until the process reports itself online, implementing the
// Message Router's Spawner capability.
type ProcessSpawner struct {
	store        *registry.Store
	registryFile string
	binaryPath   string
	pollInterval time.Duration
	timeout      time.Duration
}

// NewProcessSpawner creates a Spawner that execs binaryPath, polling
// store every pollInterval up to timeout for the agent to come online.
// registryFile is handed to the spawned process so it can open the same
// registry file itself and flip its own record to online once its IPC
// listener is up.
func NewProcessSpawner(store *registry.Store, registryFile, binaryPath string, pollInterval, timeout time.Duration) *ProcessSpawner {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProcessSpawner{store: store, registryFile: registryFile, binaryPath: binaryPath, pollInterval: pollInterval, timeout: timeout}
}

// Spawn revives agentID: an already-online record is returned as-is;
// otherwise the configured binary is launched with the orchestrator's
// identifying environment variables and Spawn blocks until the agent
// registers itself online or the timeout elapses.
func (p *ProcessSpawner) Spawn(ctx context.Context, agentID string) (*types.AgentProcess, error) {
	existing, err := p.store.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if existing.Status == types.AgentStatusOnline || existing.Status == types.AgentStatusBusy {
		return existing, nil
	}
	if p.binaryPath == "" {
		return nil, errors.Newf(errors.CodeResolutionNotFound, "agent %s is offline and no agent binary is configured", agentID)
	}

	cmd := exec.Command(p.binaryPath)
	cmd.Env = append(os.Environ(),
		"MEOW_AGENT="+agentID,
		"MEOW_PROJECT="+existing.ProjectID,
		"MEOW_ROLE="+existing.Role,
		"MEOW_REGISTRY_FILE="+p.registryFile,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning agent %s: %w", agentID, err)
	}

	existing.PID = cmd.Process.Pid
	existing.Status = types.AgentStatusReady
	existing.Touch(time.Now())
	if err := p.store.Register(ctx, existing); err != nil {
		return nil, err
	}

	return p.awaitOnline(ctx, agentID)
}

func (p *ProcessSpawner) awaitOnline(ctx context.Context, agentID string) (*types.AgentProcess, error) {
	deadline := time.Now().Add(p.timeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		agent, err := p.store.Get(ctx, agentID)
		if err == nil && (agent.Status == types.AgentStatusOnline || agent.Status == types.AgentStatusBusy) {
			return agent, nil
		}
		if !time.Now().Before(deadline) {
			return nil, errors.Newf(errors.CodeResolutionNotFound, "agent %s did not come online within timeout", agentID)
		}
	}
}
