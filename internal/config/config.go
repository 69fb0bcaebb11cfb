// Package config provides TOML-backed configuration for meowctl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// PathsConfig holds path configuration.
type PathsConfig struct {
	RegistryFile  string `toml:"registry_file"`
	CheckpointDir string `toml:"checkpoint_dir"`
	ApprovalsDir  string `toml:"approvals_dir"`
	AgentConfigs  string `toml:"agent_configs"`
	LogsDir       string `toml:"logs_dir"`
	SocketDir     string `toml:"socket_dir"`
}

// RegistryConfig holds Process Registry settings.
type RegistryConfig struct {
	HealthCheckInterval time.Duration `toml:"health_check_interval"`
}

// CleanerConfig holds Process Cleaner settings.
type CleanerConfig struct {
	ProcessPattern  string        `toml:"process_pattern"`
	GracefulTimeout time.Duration `toml:"graceful_timeout"`
	SweepInterval   time.Duration `toml:"sweep_interval"`
}

// RouterConfig holds Message Router settings.
type RouterConfig struct {
	DefaultConcurrency int           `toml:"default_concurrency"`
	DefaultTimeout     time.Duration `toml:"default_timeout"`
}

// ShimConfig holds Agent Runtime Shim settings.
type ShimConfig struct {
	MockAI bool `toml:"mock_ai"`
}

// ApprovalConfig holds Approval Orchestrator settings.
type ApprovalConfig struct {
	PollInterval         time.Duration `toml:"poll_interval"`
	InfinitePollInterval time.Duration `toml:"infinite_poll_interval"`
	SweepInterval        time.Duration `toml:"sweep_interval"`
}

// OrchestratorConfig holds Workflow Orchestrator settings.
type OrchestratorConfig struct {
	PollInterval time.Duration `toml:"poll_interval"`
}

// HTTPConfig holds the REST/WebSocket transport settings.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"`
}

// Config is the main configuration struct for meowctl.
type Config struct {
	Version      string             `toml:"version"`
	Paths        PathsConfig        `toml:"paths"`
	Registry     RegistryConfig     `toml:"registry"`
	Cleaner      CleanerConfig      `toml:"cleaner"`
	Router       RouterConfig       `toml:"router"`
	Shim         ShimConfig         `toml:"shim"`
	Approval     ApprovalConfig     `toml:"approval"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	HTTP         HTTPConfig         `toml:"http"`
	Logging      LoggingConfig      `toml:"logging"`
}

// Default returns a Config with sensible defaults: 30s health checks,
// a 2s kill grace window, 2s/5s approval polling.
func Default() *Config {
	return &Config{
		Version: "1",
		Paths: PathsConfig{
			RegistryFile:  filepath.Join(os.TempDir(), "claude-agents", "registry.json"),
			CheckpointDir: ".meowctl/checkpoints",
			ApprovalsDir:  ".meowctl/approvals",
			AgentConfigs:  ".meowctl/agent-configs.json",
			LogsDir:       ".meowctl/logs",
			SocketDir:     os.TempDir(),
		},
		Registry: RegistryConfig{
			HealthCheckInterval: 30 * time.Second,
		},
		Cleaner: CleanerConfig{
			ProcessPattern:  `claude-code|claude-code \((--api|api)\)`,
			GracefulTimeout: 2 * time.Second,
			SweepInterval:   60 * time.Second,
		},
		Router: RouterConfig{
			DefaultConcurrency: 2,
			DefaultTimeout:     5 * time.Minute,
		},
		Shim: ShimConfig{
			MockAI: false,
		},
		Approval: ApprovalConfig{
			PollInterval:         2 * time.Second,
			InfinitePollInterval: 5 * time.Second,
			SweepInterval:        10 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			PollInterval: 100 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Addr: ":8787",
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatJSON,
			File:   ".meowctl/logs/meowctl.log",
		},
	}
}

// Load loads configuration from file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from the standard locations in a
// directory: defaults -> ~/.meowctl/config.toml -> .meowctl/config.toml,
// later configs overriding earlier ones (project-level wins).
func LoadFromDir(dir string) (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(home, ".meowctl", "config.toml")
		if data, err := os.ReadFile(globalConfig); err == nil {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	projectConfig := filepath.Join(dir, ".meowctl", "config.toml")
	if data, err := os.ReadFile(projectConfig); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing project config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variables on top of any
// file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("USE_MOCK_AI"); v != "" && v != "0" && v != "false" {
		cfg.Shim.MockAI = true
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version is required")
	}
	if c.Registry.HealthCheckInterval <= 0 {
		return fmt.Errorf("registry.health_check_interval must be positive")
	}
	if c.Orchestrator.PollInterval <= 0 {
		return fmt.Errorf("orchestrator.poll_interval must be positive")
	}
	return nil
}

// CheckpointDir returns the absolute checkpoint directory path.
func (c *Config) CheckpointDir(baseDir string) string {
	return resolvePath(c.Paths.CheckpointDir, baseDir)
}

// ApprovalsDir returns the absolute approvals directory path.
func (c *Config) ApprovalsDir(baseDir string) string {
	return resolvePath(c.Paths.ApprovalsDir, baseDir)
}

// ApprovalsFile returns the absolute path of the approval store's
// backing JSON file.
func (c *Config) ApprovalsFile(baseDir string) string {
	return filepath.Join(c.ApprovalsDir(baseDir), "approvals.json")
}

// AgentConfigsFile returns the absolute path of the project/global
// agent-config catalog file.
func (c *Config) AgentConfigsFile(baseDir string) string {
	return resolvePath(c.Paths.AgentConfigs, baseDir)
}

// LogFile returns the absolute log file path.
func (c *Config) LogFile(baseDir string) string {
	return resolvePath(c.Logging.File, baseDir)
}

func resolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
