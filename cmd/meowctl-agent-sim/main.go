// Command meowctl-agent-sim is a deterministic stand-in for a real coding
// agent process, used to exercise the Message Router, Process Registry and
// Process Cleaner in integration tests without shelling out to a real LLM
// CLI. It self-registers online and answers mentions over the same IPC
// protocol a real agent's runtime shim speaks.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meow-stack/meowctl/internal/ipc"
	"github.com/meow-stack/meowctl/internal/registry"
	"github.com/meow-stack/meowctl/internal/types"
)

var (
	configPath string
	logLevel   string
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to behavior config YAML")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug/info/warn/error)")
}

func main() {
	flag.Parse()

	if envConfig := os.Getenv("MEOW_SIM_CONFIG"); envConfig != "" && configPath == "" {
		configPath = envConfig
	}
	if envLevel := os.Getenv("MEOW_SIM_LOG_LEVEL"); envLevel != "" {
		logLevel = envLevel
	}

	logger := setupLogger(logLevel)

	agentID := os.Getenv("MEOW_AGENT")
	registryFile := os.Getenv("MEOW_REGISTRY_FILE")
	if agentID == "" {
		logger.Error("MEOW_AGENT is required")
		os.Exit(1)
	}

	var config SimConfig
	if configPath != "" {
		var err error
		config, err = LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
	} else {
		config = NewDefaultSimConfig()
	}

	sim := NewSimulator(agentID, config, logger)
	server := ipc.NewServer(agentID, NewHandler(sim), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.StartAsync(ctx); err != nil {
		logger.Error("failed to start IPC server", "error", err)
		os.Exit(1)
	}

	if registryFile != "" {
		if err := registerOnline(ctx, registryFile, agentID); err != nil {
			logger.Error("failed to register online", "agent", agentID, "error", err)
		}
	}

	logger.Info("agent-sim ready", "agent", agentID, "socket", server.Path())
	<-ctx.Done()
}

// registerOnline flips the agent's own record from "ready" (set by the
// process that spawned it) to "online", letting the Spawner's poll loop
// observe the process as ready to receive mentions.
func registerOnline(ctx context.Context, registryFile, agentID string) error {
	store := registry.NewStore(registryFile)
	if err := store.Load(ctx); err != nil {
		return err
	}
	return store.UpdateStatus(ctx, agentID, types.AgentStatusOnline, time.Now())
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// NewDefaultSimConfig returns a default simulator configuration.
func NewDefaultSimConfig() SimConfig {
	return SimConfig{
		Timing: TimingConfig{
			DefaultWorkDelay: 100 * time.Millisecond,
		},
		Hooks: HooksConfig{
			FireToolEvents: true,
		},
		Behaviors: []Behavior{},
		Default: DefaultConfig{
			Behavior: Behavior{
				Match: "",
				Type:  "contains",
				Action: Action{
					Type:    ActionComplete,
					Delay:   100 * time.Millisecond,
					Outputs: map[string]any{},
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
