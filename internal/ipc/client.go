package ipc

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Client connects to an agent's IPC server to deliver mentions, responses,
// and broadcasts.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client for an arbitrary socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

// NewClientForAgent creates a client targeting a specific agent's socket.
func NewClientForAgent(agentID string) *Client {
	return NewClient(SocketPath(agentID))
}

// SetTimeout sets the connection and read/write timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Send delivers an envelope and waits for the reply envelope.
func (c *Client) Send(msg *Envelope) (*Envelope, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IPC socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	data, err := Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	reader := bufio.NewReader(conn)
	responseLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	response, err := ParseMessage(responseLine)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	env, ok := response.(*Envelope)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", response)
	}
	return env, nil
}

// SendFireAndForget writes an envelope and closes the connection without
// waiting for a reply, used by the Router's non-wait delivery mode
//.
func (c *Client) SendFireAndForget(msg *Envelope) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to IPC socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	data, err := Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	_, err = conn.Write(data)
	return err
}

// SendMention delivers a mention message and waits for the ack/response.
func (c *Client) SendMention(from, to, content, correlationID string, timestamp int64) (*Envelope, error) {
	msg := &Envelope{
		From:          from,
		To:            to,
		Type:          MsgMention,
		Content:       content,
		CorrelationID: correlationID,
		Timestamp:     timestamp,
	}
	resp, err := c.Send(msg)
	if err != nil {
		return nil, err
	}
	if resp.Type == MsgError {
		return resp, fmt.Errorf("server error: %s", resp.Error)
	}
	return resp, nil
}

// SendBroadcast delivers a broadcast message to a fixed fan-out list.
func (c *Client) SendBroadcast(from, content string, targets []string, timestamp int64) (*Envelope, error) {
	msg := &Envelope{
		From:      from,
		Type:      MsgBroadcast,
		Content:   content,
		Targets:   targets,
		Timestamp: timestamp,
	}
	resp, err := c.Send(msg)
	if err != nil {
		return nil, err
	}
	if resp.Type == MsgError {
		return resp, fmt.Errorf("server error: %s", resp.Error)
	}
	return resp, nil
}
