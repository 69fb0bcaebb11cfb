package shim

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/meow-stack/meowctl/internal/types"
)

// MockLLM is the deterministic stand-in LLM capability that the serve
// command wires for every agent and this repo's tests use: it echoes the
// prompt back as its assistant response and synthesizes a stable session
// id from the prompt, rather than calling out to a real provider.
type MockLLM struct{}

// NewMockLLM creates the mock capability.
func NewMockLLM() *MockLLM { return &MockLLM{} }

// Invoke yields a single assistant frame followed by a success result,
// synchronously populating the channel before returning so callers never
// need to worry about goroutine leaks in tests.
func (m *MockLLM) Invoke(ctx context.Context, prompt string, cfg types.AgentConfig, sessionID string) (<-chan Frame, error) {
	ch := make(chan Frame, 3)

	if sessionID == "" {
		sessionID = mockSessionID(prompt)
	}

	go func() {
		defer close(ch)

		select {
		case <-ctx.Done():
			ch <- Frame{Type: FrameError, ErrorKind: ErrorKindAborted, Err: ctx.Err()}
			return
		default:
		}

		ch <- Frame{
			Type:      FrameAssistant,
			Content:   prompt,
			SessionID: sessionID,
			Usage:     &TokenUsage{Tokens: len(prompt), MaxTokens: cfg.MaxTokens},
		}
		ch <- Frame{Type: FrameResult, ResultSubtype: "success", Content: prompt, SessionID: sessionID}
	}()

	return ch, nil
}

// mockSessionID derives a stable, non-random session id from the prompt
// text so mock-mode runs are reproducible across invocations.
func mockSessionID(prompt string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	return fmt.Sprintf("mock-session-%x", h.Sum64())
}
