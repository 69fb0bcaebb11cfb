package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meow-stack/meowctl/internal/config"
)

func TestNewFromConfig_NoFileStillReturnsCloser(t *testing.T) {
	cfg := &config.Config{
		Logging: config.LoggingConfig{
			Level:  config.LogLevelInfo,
			Format: config.LogFormatJSON,
			File:   "",
		},
	}

	logger, closer, err := NewFromConfig(cfg, t.TempDir())
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	if logger == nil {
		t.Fatal("logger is nil")
	}
	if closer == nil {
		t.Fatal("closer must be non-nil even without a log file")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewFromConfig_WritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Logging: config.LoggingConfig{
			Level:  config.LogLevelInfo,
			Format: config.LogFormatJSON,
			File:   "logs/meowctl.log",
		},
	}

	logger, closer, err := NewFromConfig(cfg, dir)
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	logger.Info("hello from test")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "logs", "meowctl.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		input config.LogLevel
		want  slog.Level
	}{
		{config.LogLevelDebug, slog.LevelDebug},
		{config.LogLevelInfo, slog.LevelInfo},
		{config.LogLevelWarn, slog.LevelWarn},
		{config.LogLevelError, slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := level(tt.input); got != tt.want {
				t.Errorf("level(%s) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestHandlerFor_FormatSelection(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(handlerFor(config.LogFormatJSON, &buf, slog.LevelInfo))
	logger.Info("json line", "key", "value")
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("json format did not produce JSON: %v", err)
	}
	if record["key"] != "value" {
		t.Errorf("key = %v, want value", record["key"])
	}

	buf.Reset()
	logger = slog.New(handlerFor(config.LogFormatText, &buf, slog.LevelInfo))
	logger.Info("text line")
	if !strings.Contains(buf.String(), "msg=") {
		t.Errorf("text format output = %q, want key=value pairs", buf.String())
	}
}

// captureJSON runs fn against a JSON logger and decodes the single
// record it emits.
func captureJSON(t *testing.T, fn func(*slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	fn(slog.New(slog.NewJSONHandler(&buf, nil)))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decoding log record: %v (raw %q)", err, buf.String())
	}
	return record
}

func TestForRun_CarriesThreadAndProject(t *testing.T) {
	record := captureJSON(t, func(base *slog.Logger) {
		ForRun(base, "th-1", "proj-a").Info("tick")
	})
	if record["thread"] != "th-1" || record["project"] != "proj-a" {
		t.Errorf("record = %v, want thread=th-1 project=proj-a", record)
	}

	record = captureJSON(t, func(base *slog.Logger) {
		ForRun(base, "th-2", "").Info("tick")
	})
	if record["thread"] != "th-2" {
		t.Errorf("thread = %v, want th-2", record["thread"])
	}
	if _, ok := record["project"]; ok {
		t.Error("projectless run must not carry a project attribute")
	}
}

func TestForStep_NarrowsRunLogger(t *testing.T) {
	record := captureJSON(t, func(base *slog.Logger) {
		ForStep(ForRun(base, "th-1", "proj-a"), "build").Error("step failed", "error", "boom")
	})
	if record["thread"] != "th-1" || record["step"] != "build" || record["error"] != "boom" {
		t.Errorf("record = %v, want thread/step/error attrs", record)
	}
}

func TestForApproval_TiesGateToWorkflowPosition(t *testing.T) {
	record := captureJSON(t, func(base *slog.Logger) {
		ForApproval(base, "ap-1", "th-1", "gate").Info("approval resolved", "status", "approved")
	})
	if record["approval"] != "ap-1" || record["thread"] != "th-1" || record["step"] != "gate" {
		t.Errorf("record = %v, want approval/thread/step attrs", record)
	}
}

func TestScopedHelpers_NilBaseFallsBackToDefault(t *testing.T) {
	if ForRun(nil, "th", "") == nil {
		t.Error("ForRun(nil, ...) must not return nil")
	}
	if ForStep(nil, "s") == nil {
		t.Error("ForStep(nil, ...) must not return nil")
	}
	if ForApproval(nil, "a", "th", "s") == nil {
		t.Error("ForApproval(nil, ...) must not return nil")
	}
}
