// Package registry implements the Process Registry: the
// authoritative, file-backed store of agent process records, with a
// background health-check ticker that reconciles recorded status
// against live-process reality.
//
// Persistence is atomic tmp+rename JSON guarded by a sync.RWMutex,
// with deep-copy-on-read so callers cannot mutate internal state.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/psutil"
	"github.com/meow-stack/meowctl/internal/types"
)

// registryFileVersion is the on-disk schema version.
const registryFileVersion = "1.0.0"

// registryFile is the on-disk shape: {processes, lastCleanup, version}.
type registryFile struct {
	Processes   map[string]*types.AgentProcess `json:"processes"`
	LastCleanup time.Time                      `json:"lastCleanup"`
	Version     string                         `json:"version"`
}

// Store is the file-backed, in-memory-cached Process Registry.
type Store struct {
	registryFile string
	bus          *events.Bus
	logger       *slog.Logger

	mu          sync.RWMutex
	agents      map[string]*types.AgentProcess
	lastCleanup time.Time
	loaded      bool
}

// NewStore creates a new Process Registry backed by registryFile.
func NewStore(registryFile string) *Store {
	return &Store{
		registryFile: registryFile,
		logger:       slog.Default().With("component", "registry"),
		agents:       make(map[string]*types.AgentProcess),
	}
}

// SetBus attaches the event bus the registry publishes process:* events
// to. Optional: a Store with no bus simply stays silent.
func (s *Store) SetBus(bus *events.Bus) {
	s.bus = bus
}

func (s *Store) publish(kind events.Kind, data map[string]any) {
	if s.bus != nil {
		s.bus.Publish(kind, data)
	}
}

// Load reads the registry from disk, starting empty if the file does not
// yet exist.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	data, err := os.ReadFile(s.registryFile)
	if err != nil {
		if os.IsNotExist(err) {
			s.agents = make(map[string]*types.AgentProcess)
			s.loaded = true
			return nil
		}
		return fmt.Errorf("reading registry file: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Corruption is reported once and treated as a fresh start.
		s.logger.Warn("registry file is corrupt, starting empty", "path", s.registryFile, "error", err)
		s.agents = make(map[string]*types.AgentProcess)
		s.loaded = true
		return nil
	}

	s.agents = make(map[string]*types.AgentProcess, len(file.Processes))
	for id, a := range file.Processes {
		if a.AgentID == "" {
			a.AgentID = id
		}
		s.agents[a.AgentID] = a
	}
	s.lastCleanup = file.LastCleanup
	s.loaded = true
	return nil
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.registryFile), 0755); err != nil {
		return errors.RegistryWriteFailed(fmt.Errorf("creating registry directory: %w", err))
	}

	tmpPath := s.registryFile + ".tmp"

	file := registryFile{
		Processes:   s.agents,
		LastCleanup: s.lastCleanup,
		Version:     registryFileVersion,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.RegistryWriteFailed(fmt.Errorf("marshaling agents: %w", err))
	}

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.RegistryWriteFailed(fmt.Errorf("writing temp file: %w", err))
	}
	if err := os.Rename(tmpPath, s.registryFile); err != nil {
		os.Remove(tmpPath)
		return errors.RegistryWriteFailed(fmt.Errorf("renaming temp file: %w", err))
	}
	return nil
}

// Register creates or replaces an agent's process record.
func (s *Store) Register(ctx context.Context, agent *types.AgentProcess) error {
	if err := agent.Validate(); err != nil {
		return errors.ValidationFailed(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.loadLocked(); err != nil {
			return err
		}
	}

	s.agents[agent.AgentID] = copyAgent(agent)
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.publish(events.KindProcessRegistered, map[string]any{
		"agentId": agent.AgentID,
		"role":    agent.Role,
		"status":  string(agent.Status),
	})
	return nil
}

// Get retrieves an agent process record by ID.
func (s *Store) Get(ctx context.Context, agentID string) (*types.AgentProcess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, fmt.Errorf("registry not loaded")
	}

	agent, ok := s.agents[agentID]
	if !ok {
		return nil, errors.TargetNotFound(agentID)
	}
	return copyAgent(agent), nil
}

// UpdateStatus transitions an agent's status, bumping lastActivity.
func (s *Store) UpdateStatus(ctx context.Context, agentID string, status types.AgentStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return fmt.Errorf("registry not loaded")
	}

	agent, ok := s.agents[agentID]
	if !ok {
		return errors.TargetNotFound(agentID)
	}

	agent.Status = status
	agent.Touch(now)
	return s.saveLocked()
}

// UpdateSessionID records a new LLM session handle against an agent's
// record, used by the Agent Runtime Shim whenever it observes a session
// id distinct from the one it is tracking.
func (s *Store) UpdateSessionID(ctx context.Context, agentID string, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return fmt.Errorf("registry not loaded")
	}

	agent, ok := s.agents[agentID]
	if !ok {
		return errors.TargetNotFound(agentID)
	}

	agent.SessionID = sessionID
	return s.saveLocked()
}

// Remove deletes an agent's process record.
func (s *Store) Remove(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return fmt.Errorf("registry not loaded")
	}

	if _, ok := s.agents[agentID]; !ok {
		return errors.TargetNotFound(agentID)
	}
	delete(s.agents, agentID)
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.publish(events.KindProcessRemoved, map[string]any{"agentId": agentID})
	return nil
}

// MarkCleanup records the timestamp of the latest Process Cleaner sweep,
// persisted as the registry file's lastCleanup field.
func (s *Store) MarkCleanup(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return fmt.Errorf("registry not loaded")
	}
	s.lastCleanup = now
	return s.saveLocked()
}

// List returns all agent process records, optionally scoped to a project:
// an empty projectID returns every record, any other value (including
// types.GlobalProject) matches ProjectID exactly.
func (s *Store) List(ctx context.Context, projectID string) ([]*types.AgentProcess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, fmt.Errorf("registry not loaded")
	}

	var agents []*types.AgentProcess
	for _, a := range s.agents {
		if projectID == "" || a.ProjectID == projectID {
			agents = append(agents, copyAgent(a))
		}
	}
	return agents, nil
}

// ListByRole returns agents matching role, scoped to project (or global).
func (s *Store) ListByRole(ctx context.Context, projectID, role string) ([]*types.AgentProcess, error) {
	all, err := s.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var matches []*types.AgentProcess
	for _, a := range all {
		if a.Role == role {
			matches = append(matches, a)
		}
	}
	return matches, nil
}

// HealthCheck is one agent's liveness-probe outcome from
// PerformHealthCheck.
type HealthCheck struct {
	AgentID      string            `json:"agentId"`
	PID          int               `json:"pid"`
	Alive        bool              `json:"alive"`
	Status       types.AgentStatus `json:"status"`
	Transitioned bool              `json:"transitioned"` // set when this sweep marked the agent offline
	Err          string            `json:"error,omitempty"`
}

// PerformHealthCheck probes every registered agent's pid with a signal-0
// check, marking agents whose process is gone as offline. Probes
// are independent per agent; one failure never stops the sweep.
func (s *Store) PerformHealthCheck(ctx context.Context, now time.Time) ([]HealthCheck, error) {
	agents, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}

	checks := make([]HealthCheck, 0, len(agents))
	for _, a := range agents {
		alive := a.PID != 0 && psutil.IsAlive(a.PID)
		check := HealthCheck{AgentID: a.AgentID, PID: a.PID, Alive: alive, Status: a.Status}
		if !alive && a.Status != types.AgentStatusOffline {
			if err := s.UpdateStatus(ctx, a.AgentID, types.AgentStatusOffline, now); err != nil {
				check.Err = err.Error()
			} else {
				check.Status = types.AgentStatusOffline
				check.Transitioned = true
			}
		}
		checks = append(checks, check)
	}
	return checks, nil
}

func copyAgent(a *types.AgentProcess) *types.AgentProcess {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Config.Tools != nil {
		cp.Config.Tools = append([]string(nil), a.Config.Tools...)
	}
	return &cp
}

// HealthChecker periodically reconciles the registry's recorded status
// against live-process reality via signal-0 probes, marking any agent
// whose PID is no longer alive as offline.
type HealthChecker struct {
	store    *Store
	bus      *events.Bus
	interval time.Duration
	logger   *slog.Logger
}

// NewHealthChecker creates a health checker polling at interval.
func NewHealthChecker(store *Store, bus *events.Bus, interval time.Duration, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{store: store, bus: bus, interval: interval, logger: logger.With("component", "registry-health")}
}

// Run blocks, polling every interval until ctx is cancelled.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *HealthChecker) sweep(ctx context.Context) {
	checks, err := h.store.PerformHealthCheck(ctx, time.Now())
	if err != nil {
		h.logger.Error("health sweep failed", "error", err)
		return
	}

	for _, c := range checks {
		if c.Err != "" {
			h.logger.Error("health sweep: mark offline failed", "agent", c.AgentID, "error", c.Err)
			continue
		}
		if !c.Transitioned {
			continue
		}
		if h.bus != nil {
			h.bus.Publish(events.KindProcessStatusChange, map[string]any{
				"agentId": c.AgentID,
				"status":  string(types.AgentStatusOffline),
				"reason":  "health check: process not alive",
			})
		}
	}
}
