package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meow-stack/meowctl/internal/ipc"
)

// Simulator is a scripted stand-in for a real coding agent: it matches an
// incoming prompt against a list of behaviors and replies the way that
// behavior prescribes, deterministically, for use in integration tests.
type Simulator struct {
	config  SimConfig
	logger  *slog.Logger
	agentID string

	mu sync.Mutex
	// pendingAsk tracks senders the simulator asked a clarifying question
	// of; their next message is treated as the answer rather than a new
	// prompt to match against behaviors.
	pendingAsk map[string]bool
	// attemptCounts tracks fail_then_succeed attempts per behavior pattern.
	attemptCounts map[string]int
	// sequenceCounts tracks outputs_sequence position per sender.
	sequenceCounts map[string]int
}

// NewSimulator creates a new simulator instance bound to agentID.
func NewSimulator(agentID string, config SimConfig, logger *slog.Logger) *Simulator {
	return &Simulator{
		config:         config,
		logger:         logger,
		agentID:        agentID,
		pendingAsk:     make(map[string]bool),
		attemptCounts:  make(map[string]int),
		sequenceCounts: make(map[string]int),
	}
}

// Handler adapts a Simulator to the IPC server's Handler interface,
// standing in for the orchestrator-socket client earlier revisions of this
// package dialed out to: the simulator now answers whatever mentions the
// Message Router routes to it, synchronously, on its own socket.
type Handler struct {
	sim *Simulator
}

// NewHandler wraps sim as an ipc.Handler.
func NewHandler(sim *Simulator) *Handler {
	return &Handler{sim: sim}
}

func (h *Handler) Handle(ctx context.Context, env *ipc.Envelope) *ipc.Envelope {
	switch env.Type {
	case ipc.MsgMention, ipc.MsgBroadcast:
		return h.sim.respond(ctx, env)
	default:
		return ipc.NewError(env.From, env.CorrelationID, fmt.Sprintf("agent-sim does not handle message type %q", env.Type))
	}
}

// respond produces the reply envelope for an incoming mention.
func (s *Simulator) respond(ctx context.Context, env *ipc.Envelope) *ipc.Envelope {
	prompt := env.Content

	s.mu.Lock()
	awaitingAnswer := s.pendingAsk[env.From]
	if awaitingAnswer {
		delete(s.pendingAsk, env.From)
	}
	s.mu.Unlock()

	var (
		result BehaviorResult
		err    error
	)
	if awaitingAnswer {
		s.logger.Debug("received answer to question", "from", env.From, "answer", truncate(prompt, 50))
		result = BehaviorResult{Action: ActionComplete, Outputs: map[string]any{"answer": prompt}}
	} else {
		behavior := s.matchBehavior(prompt)
		result, err = s.executeBehavior(ctx, behavior, env.From)
	}
	if err != nil {
		return ipc.NewError(env.From, env.CorrelationID, err.Error())
	}

	switch result.Action {
	case ActionAsk:
		s.mu.Lock()
		s.pendingAsk[env.From] = true
		s.mu.Unlock()
		return &ipc.Envelope{From: s.agentID, To: env.From, Type: ipc.MsgMention, Content: result.Question, CorrelationID: env.CorrelationID}
	case ActionFail, ActionFailThenSucceed:
		return ipc.NewError(env.From, env.CorrelationID, result.ErrMessage)
	default:
		data, marshalErr := json.Marshal(result.Outputs)
		if marshalErr != nil {
			return ipc.NewError(env.From, env.CorrelationID, marshalErr.Error())
		}
		return &ipc.Envelope{From: s.agentID, To: env.From, Type: ipc.MsgResponse, Content: string(data), CorrelationID: env.CorrelationID}
	}
}

// truncate shortens a string to max length, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if maxLen < 4 {
		if maxLen <= 0 {
			return ""
		}
		if len(s) <= maxLen {
			return s
		}
		return s[:maxLen]
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
