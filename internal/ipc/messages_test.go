package ipc

import (
	"strings"
	"testing"

	"github.com/meow-stack/meowctl/internal/types"
)

func TestMessageType_Valid(t *testing.T) {
	tests := []struct {
		mt   MessageType
		want bool
	}{
		{MsgMention, true},
		{MsgResponse, true},
		{MsgBroadcast, true},
		{MsgError, true},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.mt.Valid(); got != tt.want {
			t.Errorf("MessageType(%q).Valid() = %v, want %v", tt.mt, got, tt.want)
		}
	}
}

func TestEnvelope_MentionRoundTrip(t *testing.T) {
	msg := &Envelope{
		From:          "agent-a",
		To:            "agent-b",
		Type:          MsgMention,
		Content:       "@agent-b please review",
		Timestamp:     1704825600,
		CorrelationID: "corr-1",
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Count(string(data), "\n") > 0 {
		t.Errorf("Marshal() produced multi-line output: %s", data)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	got, ok := parsed.(*Envelope)
	if !ok {
		t.Fatalf("ParseMessage() returned %T, want *Envelope", parsed)
	}
	if got.From != msg.From || got.To != msg.To || got.Content != msg.Content {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, msg)
	}
	if got.CorrelationID != msg.CorrelationID {
		t.Errorf("CorrelationID = %q, want %q", got.CorrelationID, msg.CorrelationID)
	}
}

func TestEnvelope_Broadcast(t *testing.T) {
	msg := &Envelope{
		From:      "orchestrator",
		Type:      MsgBroadcast,
		Content:   "workflow thread-1 done",
		Timestamp: 1704825600,
		Targets:   []string{"agent-a", "agent-b", "agent-c"},
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	got := parsed.(*Envelope)
	if len(got.Targets) != 3 {
		t.Errorf("Targets = %v, want 3 entries", got.Targets)
	}
}

func TestNewError(t *testing.T) {
	msg := NewError("agent-a", "corr-1", "target not found: agent-z")

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	got := parsed.(*Envelope)
	if got.Type != MsgError {
		t.Errorf("Type = %q, want error", got.Type)
	}
	if got.Error != "target not found: agent-z" {
		t.Errorf("Error = %q, want target-not-found message", got.Error)
	}
}

func TestParseMessage_UnknownType(t *testing.T) {
	data := []byte(`{"type":"unknown_type"}`)

	_, err := ParseMessage(data)
	if err == nil {
		t.Fatal("ParseMessage() expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "unknown message type") {
		t.Errorf("error = %q, want to contain 'unknown message type'", err.Error())
	}
}

func TestParseMessage_MalformedJSON(t *testing.T) {
	data := []byte(`{not valid json}`)

	_, err := ParseMessage(data)
	if err == nil {
		t.Fatal("ParseMessage() expected error for malformed JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("error = %q, want to contain 'invalid JSON'", err.Error())
	}
}

func TestParseMessage_MissingType(t *testing.T) {
	data := []byte(`{"from":"agent-a"}`)

	_, err := ParseMessage(data)
	if err == nil {
		t.Fatal("ParseMessage() expected error for missing type")
	}
}

func TestMarshal_SingleLine(t *testing.T) {
	msg := &Envelope{
		From:    "agent-a",
		To:      "agent-b",
		Type:    MsgMention,
		Content: "Line 1\nLine 2\nLine 3",
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	newlineCount := 0
	for _, b := range data {
		if b == '\n' {
			newlineCount++
		}
	}
	if newlineCount > 0 {
		t.Errorf("Marshal() output contains %d literal newlines, want 0", newlineCount)
	}
	if !strings.Contains(string(data), `\n`) {
		t.Error("Marshal() should contain escaped newline sequences")
	}
}

func TestToIPCMessage_RoundTrip(t *testing.T) {
	env := &Envelope{
		From:          "agent-a",
		To:            "agent-b",
		Type:          MsgResponse,
		Content:       "done",
		Timestamp:     42,
		CorrelationID: "corr-9",
	}

	domain := env.ToIPCMessage()
	if domain.From != env.From || domain.To != env.To || domain.Type != env.Type {
		t.Errorf("ToIPCMessage() = %+v, want fields matching %+v", domain, env)
	}

	back := FromIPCMessage(domain)
	if back.From != env.From || back.CorrelationID != env.CorrelationID {
		t.Errorf("FromIPCMessage() round trip mismatch: %+v", back)
	}
}

func TestMessageType_MatchesDomainType(t *testing.T) {
	var _ types.IPCMessageType = MsgMention
}
