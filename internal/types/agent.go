package types

import (
	"fmt"
	"time"
)

// AgentStatus is the lifecycle state of an agent process.
type AgentStatus string

const (
	AgentStatusReady   AgentStatus = "ready"
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusOffline AgentStatus = "offline"
)

// Valid reports whether s is a recognized agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusReady, AgentStatusOnline, AgentStatusBusy, AgentStatusOffline:
		return true
	}
	return false
}

// GlobalProject is the sentinel projectId for agents that are not
// scoped to any single project.
const GlobalProject = "*"

// AgentConfig is the embedded, resolved configuration an agent process
// runs with. It is also addressable on its own (configId) when stored
// in a project or global agent-config catalog.
type AgentConfig struct {
	ConfigID     string   `json:"configId,omitempty"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Tools        []string `json:"tools,omitempty"`
	Model        string   `json:"model,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	MaxTurns     int      `json:"maxTurns,omitempty"`
}

// AgentProcess is the authoritative record of a spawned agent process,
// owned exclusively by the Process Registry.
type AgentProcess struct {
	AgentID      string      `json:"agentId"`
	ProjectID    string      `json:"projectId"`
	PID          int         `json:"pid,omitempty"`
	Status       AgentStatus `json:"status"`
	SessionID    string      `json:"sessionId,omitempty"`
	LastActivity time.Time   `json:"lastActivity"`
	Role         string      `json:"role"`
	Config       AgentConfig `json:"config"`
}

// Validate enforces the invariants from the data model: agentId set,
// status recognized, and pid present whenever status is not offline.
func (a *AgentProcess) Validate() error {
	if a.AgentID == "" {
		return fmt.Errorf("agent id is required")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("invalid agent status: %s", a.Status)
	}
	if a.Status != AgentStatusOffline && a.PID == 0 {
		return fmt.Errorf("agent %s: status %s requires a pid", a.AgentID, a.Status)
	}
	return nil
}

// Touch advances lastActivity, never moving it backwards.
func (a *AgentProcess) Touch(now time.Time) {
	if now.After(a.LastActivity) {
		a.LastActivity = now
	}
}
