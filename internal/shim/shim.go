package shim

import (
	"context"
	"sync"
	"time"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/types"
)

// SessionUpdater is notified whenever the tracked session id changes.
type SessionUpdater func(sessionID string)

// StatusWriter is the narrow Registry capability the shim needs: flip
// an agent's status and persist a newly observed session id back onto
// its record.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, agentID string, status types.AgentStatus, now time.Time) error
	UpdateSessionID(ctx context.Context, agentID string, sessionID string) error
}

// Info is the externally-visible snapshot GetInfo returns.
type Info struct {
	AgentID   string
	Role      string
	Status    types.AgentStatus
	SessionID string
}

// Shim wraps one agent's LLM capability invocations: session tracking,
// status transitions, streaming event forwarding, and cancellation
//.
type Shim struct {
	agentID string
	role    string

	capability LLMCapability
	registry   StatusWriter
	bus        *events.Bus

	mu        sync.Mutex
	status    types.AgentStatus
	sessionID string
	onUpdate  SessionUpdater

	cancel  context.CancelFunc
	aborted bool
}

// New creates a Shim for one agent.
func New(agentID, role string, capability LLMCapability, registry StatusWriter, bus *events.Bus) *Shim {
	return &Shim{
		agentID:    agentID,
		role:       role,
		capability: capability,
		registry:   registry,
		bus:        bus,
		status:     types.AgentStatusOnline,
	}
}

// OnSessionUpdate registers the callback invoked whenever SendMessage
// observes a new session id from the LLM capability.
func (s *Shim) OnSessionUpdate(cb SessionUpdater) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = cb
}

// GetInfo returns a point-in-time snapshot of the shim's tracked state.
func (s *Shim) GetInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{AgentID: s.agentID, Role: s.role, Status: s.status, SessionID: s.sessionID}
}

// Abort signals cancellation to any in-flight invocation and suppresses
// further frame forwarding.
func (s *Shim) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	if s.cancel != nil {
		s.cancel()
	}
}

// SendMessage invokes the LLM capability with content, tracking status
// and session transitions and translating the streaming response into
// a single terminal string or error.
func (s *Shim) SendMessage(ctx context.Context, content string, cfg types.AgentConfig, sessionID string, forceNewSession bool) (string, error) {
	if forceNewSession {
		sessionID = ""
	}

	callCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.aborted = false
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.setStatus(callCtx, types.AgentStatusBusy)
	defer s.setStatus(context.Background(), types.AgentStatusOnline)

	cfg.Tools = NormalizeTools(cfg.Tools)

	frames, err := s.capability.Invoke(callCtx, content, cfg, sessionID)
	if err != nil {
		return "", errors.ClaudeCodeFailed(err.Error(), err)
	}

	var final string
	for frame := range frames {
		if s.isAborted() {
			continue // further frames received after abort must not be forwarded
		}

		if frame.SessionID != "" {
			s.updateSession(callCtx, frame.SessionID)
		}

		switch frame.Type {
		case FrameUser:
			// User frames echo the prompt back into the transcript and
			// carry no state beyond the session id, which every frame
			// type already contributes above; nothing to forward.
		case FrameAssistant:
			final = frame.Content
			if frame.Usage != nil {
				s.publish(events.KindAgentTokenUsage, map[string]any{
					"agentId": s.agentID, "tokens": frame.Usage.Tokens, "maxTokens": frame.Usage.MaxTokens,
				})
			}
		case FrameSystem, FrameTool:
			s.publish(events.KindAgentStatusChanged, map[string]any{
				"agentId": s.agentID, "isMeta": true, "content": frame.Content,
			})
		case FrameError:
			if frame.ErrorKind == ErrorKindAborted {
				return "", errors.Aborted()
			}
			msg := frame.Content
			if frame.Err != nil {
				msg = frame.Err.Error()
			}
			return "", errors.ClaudeCodeError(msg)
		case FrameResult:
			if frame.ResultSubtype == "error" {
				return "", errors.ClaudeCodeError(frame.Content)
			}
			final = frame.Content
		}
	}

	if s.isAborted() {
		return "", errors.Aborted()
	}
	return final, nil
}

func (s *Shim) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *Shim) setStatus(ctx context.Context, status types.AgentStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	if s.registry != nil {
		_ = s.registry.UpdateStatus(ctx, s.agentID, status, time.Now())
	}
	s.publish(events.KindAgentStatusChanged, map[string]any{"agentId": s.agentID, "status": string(status)})
}

func (s *Shim) updateSession(ctx context.Context, sessionID string) {
	s.mu.Lock()
	changed := sessionID != s.sessionID
	if changed {
		s.sessionID = sessionID
	}
	cb := s.onUpdate
	s.mu.Unlock()

	if !changed {
		return
	}
	if s.registry != nil {
		_ = s.registry.UpdateSessionID(ctx, s.agentID, sessionID)
	}
	if cb != nil {
		cb(sessionID)
	}
}

func (s *Shim) publish(kind events.Kind, data map[string]any) {
	if s.bus != nil {
		s.bus.Publish(kind, data)
	}
}
