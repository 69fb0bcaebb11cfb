package shim

import (
	"context"
	"sync"

	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/types"
)

// CapabilityFactory builds the LLM capability a given agent should invoke
// through. It is the single place an agent's capability is chosen, so
// call sites never switch on it.
type CapabilityFactory func(agentID, role string) LLMCapability

// Manager owns one Shim per agent, created lazily on first use. It is
// an explicitly-constructed collaborator the Workflow Orchestrator
// holds a reference to, never a process-wide singleton.
type Manager struct {
	mu       sync.Mutex
	shims    map[string]*Shim
	registry StatusWriter
	bus      *events.Bus
	factory  CapabilityFactory
}

// NewManager creates a Shim manager. factory is called at most once per
// distinct agent id.
func NewManager(registry StatusWriter, bus *events.Bus, factory CapabilityFactory) *Manager {
	return &Manager{
		shims:    make(map[string]*Shim),
		registry: registry,
		bus:      bus,
		factory:  factory,
	}
}

// Get returns the Shim for agentID, creating it (with role) if this is
// the first call for that agent.
func (m *Manager) Get(agentID, role string) *Shim {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.shims[agentID]; ok {
		return s
	}
	s := New(agentID, role, m.factory(agentID, role), m.registry, m.bus)
	m.shims[agentID] = s
	return s
}

// Abort cancels the in-flight invocation for agentID, if one exists.
func (m *Manager) Abort(agentID string) {
	m.mu.Lock()
	s := m.shims[agentID]
	m.mu.Unlock()
	if s != nil {
		s.Abort()
	}
}

// Invoke dispatches one message through the named agent's Shim and
// reports back the tracked session id alongside the response, so callers
// that only hold this narrow interface never need a *Shim directly.
func (m *Manager) Invoke(ctx context.Context, agentID, role, content string, cfg types.AgentConfig, sessionID string, forceNewSession bool) (response, newSessionID string, err error) {
	s := m.Get(agentID, role)
	response, err = s.SendMessage(ctx, content, cfg, sessionID, forceNewSession)
	newSessionID = s.GetInfo().SessionID
	return response, newSessionID, err
}
