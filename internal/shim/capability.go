// Package shim implements the Agent Runtime Shim: a thin wrapper
// around the LLM capability interface that tracks session identity,
// forwards streaming events onto the typed event bus, and supports
// cooperative cancellation.
package shim

import (
	"context"

	"github.com/meow-stack/meowctl/internal/types"
)

// FrameType discriminates the streaming events an LLMCapability yields.
type FrameType string

const (
	FrameUser      FrameType = "user"
	FrameAssistant FrameType = "assistant"
	FrameSystem    FrameType = "system"
	FrameTool      FrameType = "tool"
	FrameError     FrameType = "error"
	FrameResult    FrameType = "result"
)

// ErrorKind classifies an error frame's kind, used to detect cancellation.
type ErrorKind string

const (
	ErrorKindAborted   ErrorKind = "aborted"
	ErrorKindExecution ErrorKind = "execution"
)

// TokenUsage carries the per-turn token accounting an assistant frame may
// report.
type TokenUsage struct {
	Tokens    int
	MaxTokens int
}

// Frame is one event yielded by an LLMCapability invocation.
type Frame struct {
	Type          FrameType
	Content       string
	SessionID     string // present when this frame updates the tracked session
	IsMeta        bool   // system/tool frames are forwarded with this flag set
	Usage         *TokenUsage
	ErrorKind     ErrorKind
	ResultSubtype string // "success" | "error", set on FrameResult
	Err           error
}

// LLMCapability is the pluggable seam for the underlying LLM SDK: one
// invocation in, a stream of frames out, cancellation via ctx.
type LLMCapability interface {
	Invoke(ctx context.Context, prompt string, cfg types.AgentConfig, sessionID string) (<-chan Frame, error)
}

// toolNormalization is the small fixed mapping from a role-facing tool
// name to the capability's canonical form.
var toolNormalization = map[string]string{
	"bash":      "Bash",
	"read":      "Read",
	"write":     "Write",
	"edit":      "Edit",
	"grep":      "Grep",
	"glob":      "Glob",
	"webfetch":  "WebFetch",
	"websearch": "WebSearch",
	"task":      "Task",
	"todowrite": "TodoWrite",
	"notebook":  "NotebookEdit",
}

// NormalizeTool maps a tool name to the LLM capability's canonical form.
// Unknown tools are title-cased rather than rejected.
func NormalizeTool(name string) string {
	if canon, ok := toolNormalization[name]; ok {
		return canon
	}
	if name == "" {
		return name
	}
	return titleCase(name)
}

func titleCase(s string) string {
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}

// NormalizeTools maps a whole tool list.
func NormalizeTools(tools []string) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = NormalizeTool(t)
	}
	return out
}
