package router

import (
	"context"
	"time"

	"github.com/meow-stack/meowctl/internal/ipc"
)

// IPCSender adapts internal/ipc.Client to the Router's Sender
// capability, resolving each target's socket path fresh per call and
// holding the connection only for the duration of one delivery.
type IPCSender struct{}

// NewIPCSender creates the default IPC-backed Sender.
func NewIPCSender() *IPCSender { return &IPCSender{} }

// Send implements Sender over a real Unix-domain-socket IPC connection.
func (s *IPCSender) Send(ctx context.Context, agentID, from, content, correlationID string, wait bool, timeout time.Duration) (string, error) {
	client := ipc.NewClientForAgent(agentID)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	now := time.Now().UnixMilli()

	if !wait {
		env := &ipc.Envelope{
			From: from, To: agentID, Type: ipc.MsgMention,
			Content: content, CorrelationID: correlationID, Timestamp: now,
		}
		return "", client.SendFireAndForget(env)
	}

	resp, err := client.SendMention(from, agentID, content, correlationID, now)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
