// Package ipc provides message framing and utilities for agent-to-router
// communication.
//
// The protocol uses newline-delimited JSON over Unix domain sockets: each
// message is a single JSON object on one line, socket path
// <tmp>/claude-agents.<agentId>.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/meow-stack/meowctl/internal/types"
)

// MessageType identifies the IPC message kind, matching the four message
// types the Message Router understands.
type MessageType = types.IPCMessageType

const (
	MsgMention   = types.IPCMention
	MsgResponse  = types.IPCResponse
	MsgBroadcast = types.IPCBroadcast
	MsgError     = types.IPCError
)

// Envelope is the wire representation of an IPC message: a thin frame
// around types.IPCMessage plus the fields only relevant on the wire
// (broadcast fan-out and error detail).
type Envelope struct {
	From          string         `json:"from"`
	To            string         `json:"to,omitempty"`
	Type          MessageType    `json:"type"`
	Content       string         `json:"content,omitempty"`
	Timestamp     int64          `json:"timestamp"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Targets       []string       `json:"targets,omitempty"` // broadcast fan-out list
	Error         string         `json:"error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// Message is the interface implemented by all IPC messages.
type Message interface {
	MessageType() MessageType
}

func (e *Envelope) MessageType() MessageType { return e.Type }

// ToIPCMessage projects the wire envelope onto the domain type used by the
// router and registry.
func (e *Envelope) ToIPCMessage() types.IPCMessage {
	return types.IPCMessage{
		From:          e.From,
		To:            e.To,
		Type:          e.Type,
		Content:       e.Content,
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}

// FromIPCMessage builds a wire envelope from a domain message.
func FromIPCMessage(m types.IPCMessage) *Envelope {
	return &Envelope{
		From:          m.From,
		To:            m.To,
		Type:          m.Type,
		Content:       m.Content.(string),
		Timestamp:     m.Timestamp,
		CorrelationID: m.CorrelationID,
	}
}

// RawMessage is used for initial parsing to determine message type.
type RawMessage struct {
	Type MessageType `json:"type"`
}

// ParseMessage parses a single newline-delimited JSON frame.
func ParseMessage(data []byte) (Message, error) {
	var raw RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if !raw.Type.Valid() {
		return nil, fmt.Errorf("unknown message type: %q", raw.Type)
	}

	msg := &Envelope{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to parse %s message: %w", raw.Type, err)
	}
	return msg, nil
}

// Marshal serializes a message to JSON as a single line (no pretty printing).
func Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// NewError builds an error-type envelope, e.g. for a target-not-found reply.
func NewError(to, correlationID, message string) *Envelope {
	return &Envelope{
		To:            to,
		Type:          MsgError,
		Error:         message,
		CorrelationID: correlationID,
	}
}
