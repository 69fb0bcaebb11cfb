package main

import "time"

// SimConfig holds the complete simulator configuration.
type SimConfig struct {
	Timing    TimingConfig  `yaml:"timing"`
	Hooks     HooksConfig   `yaml:"hooks"`
	Behaviors []Behavior    `yaml:"behaviors"`
	Default   DefaultConfig `yaml:"default"`
	Logging   LoggingConfig `yaml:"logging"`
}

type TimingConfig struct {
	DefaultWorkDelay time.Duration `yaml:"default_work_delay"`
}

// HooksConfig toggles the informational logging that stands in for the
// tool-use events a real coding agent would stream mid-task; this
// simulator has no separate event channel to carry them on, so they
// become structured log lines instead.
type HooksConfig struct {
	FireToolEvents bool `yaml:"fire_tool_events"`
}

type DefaultConfig struct {
	Behavior Behavior `yaml:"behavior"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ActionType defines what the simulator does when a prompt matches.
type ActionType string

const (
	ActionComplete        ActionType = "complete"
	ActionAsk             ActionType = "ask"
	ActionFail            ActionType = "fail"
	ActionFailThenSucceed ActionType = "fail_then_succeed"
	ActionHang            ActionType = "hang"
	ActionCrash           ActionType = "crash"
)

// Behavior defines how the simulator responds to a prompt pattern.
type Behavior struct {
	Match  string `yaml:"match"`
	Type   string `yaml:"type"` // "contains" or "regex"
	Action Action `yaml:"action"`
}

// Action defines the simulator's response action.
type Action struct {
	Type            ActionType       `yaml:"type"`
	Delay           time.Duration    `yaml:"delay"`
	Outputs         map[string]any   `yaml:"outputs"`
	OutputsSequence []map[string]any `yaml:"outputs_sequence"` // sequence mode: different outputs per call
	Events          []EventDef       `yaml:"events"`
	Question        string           `yaml:"question"`
	FailCount       int              `yaml:"fail_count"`
	FailMessage     string           `yaml:"fail_message"`
	ExitCode        int              `yaml:"exit_code"`
}

// EventDef describes a tool-use event to log while executing an action.
type EventDef struct {
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data"`
	When time.Duration  `yaml:"when"`
}

// BehaviorResult is what executing a Behavior produced, translated into
// an IPC reply by Handler.Handle.
type BehaviorResult struct {
	Action     ActionType
	Outputs    map[string]any
	Question   string
	ErrMessage string
}
