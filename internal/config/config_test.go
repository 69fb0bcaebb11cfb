package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Version != "1" {
		t.Errorf("Version = %s, want 1", cfg.Version)
	}
	if cfg.Paths.CheckpointDir != ".meowctl/checkpoints" {
		t.Errorf("CheckpointDir = %s, want .meowctl/checkpoints", cfg.Paths.CheckpointDir)
	}
	if cfg.Paths.ApprovalsDir != ".meowctl/approvals" {
		t.Errorf("ApprovalsDir = %s, want .meowctl/approvals", cfg.Paths.ApprovalsDir)
	}
	if cfg.Registry.HealthCheckInterval != 30*time.Second {
		t.Errorf("Registry.HealthCheckInterval = %v, want 30s", cfg.Registry.HealthCheckInterval)
	}
	if cfg.Orchestrator.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.Orchestrator.PollInterval)
	}
	if cfg.Router.DefaultConcurrency != 2 {
		t.Errorf("Router.DefaultConcurrency = %d, want 2", cfg.Router.DefaultConcurrency)
	}
	if cfg.Approval.PollInterval != 2*time.Second {
		t.Errorf("Approval.PollInterval = %v, want 2s", cfg.Approval.PollInterval)
	}
	if cfg.HTTP.Addr != ":8787" {
		t.Errorf("HTTP.Addr = %s, want :8787", cfg.HTTP.Addr)
	}
	if cfg.Logging.Level != LogLevelInfo {
		t.Errorf("Logging.Level = %s, want info", cfg.Logging.Level)
	}
	if cfg.Shim.MockAI != false {
		t.Errorf("Shim.MockAI = %v, want false", cfg.Shim.MockAI)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
version = "2"

[paths]
checkpoint_dir = "custom/checkpoints"
approvals_dir = "custom/approvals"

[registry]
health_check_interval = "10s"

[orchestrator]
poll_interval = "200ms"

[logging]
level = "debug"
format = "text"
file = "custom.log"
`

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Version != "2" {
		t.Errorf("Version = %s, want 2", cfg.Version)
	}
	if cfg.Paths.CheckpointDir != "custom/checkpoints" {
		t.Errorf("CheckpointDir = %s, want custom/checkpoints", cfg.Paths.CheckpointDir)
	}
	if cfg.Registry.HealthCheckInterval != 10*time.Second {
		t.Errorf("Registry.HealthCheckInterval = %v, want 10s", cfg.Registry.HealthCheckInterval)
	}
	if cfg.Orchestrator.PollInterval != 200*time.Millisecond {
		t.Errorf("PollInterval = %v, want 200ms", cfg.Orchestrator.PollInterval)
	}
	if cfg.Logging.Level != LogLevelDebug {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load should not fail for non-existent file: %v", err)
	}

	if cfg.Version != "1" {
		t.Errorf("Should return defaults, got version = %s", cfg.Version)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `invalid = [toml content`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load should fail for invalid TOML")
	}
}

func TestLoad_ReadError(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	if err == nil {
		t.Error("Load should fail when trying to read a directory")
	}
}

func TestLoadFromDir(t *testing.T) {
	t.Run("project-local config", func(t *testing.T) {
		dir := t.TempDir()
		meowDir := filepath.Join(dir, ".meowctl")
		if err := os.MkdirAll(meowDir, 0755); err != nil {
			t.Fatalf("Failed to create .meowctl dir: %v", err)
		}

		configPath := filepath.Join(meowDir, "config.toml")
		content := `version = "project-local"`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatalf("LoadFromDir failed: %v", err)
		}

		if cfg.Version != "project-local" {
			t.Errorf("Version = %s, want project-local", cfg.Version)
		}
	})

	t.Run("no config file - uses defaults", func(t *testing.T) {
		dir := t.TempDir()

		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatalf("LoadFromDir failed: %v", err)
		}

		if cfg.Version != "1" {
			t.Errorf("Version = %s, want 1 (default)", cfg.Version)
		}
	})

	t.Run("invalid project config", func(t *testing.T) {
		dir := t.TempDir()
		meowDir := filepath.Join(dir, ".meowctl")
		if err := os.MkdirAll(meowDir, 0755); err != nil {
			t.Fatalf("Failed to create .meowctl dir: %v", err)
		}

		configPath := filepath.Join(meowDir, "config.toml")
		content := `invalid = [toml`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		_, err := LoadFromDir(dir)
		if err == nil {
			t.Error("LoadFromDir should fail with invalid TOML")
		}
	})

	t.Run("user global config", func(t *testing.T) {
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("Cannot get user home directory")
		}

		userConfigDir := filepath.Join(home, ".meowctl")
		userConfigPath := filepath.Join(userConfigDir, "config.toml")

		if _, err := os.Stat(userConfigPath); err == nil {
			t.Skip("User global config already exists, skipping to avoid modification")
		}

		if err := os.MkdirAll(userConfigDir, 0755); err != nil {
			t.Fatalf("Failed to create user config dir: %v", err)
		}
		defer os.RemoveAll(userConfigDir)

		content := `version = "user-global"`
		if err := os.WriteFile(userConfigPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write user config: %v", err)
		}

		dir := t.TempDir()
		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatalf("LoadFromDir failed: %v", err)
		}

		if cfg.Version != "user-global" {
			t.Errorf("Version = %s, want user-global", cfg.Version)
		}
	})
}

func TestLoadFromDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()

	os.Setenv("USE_MOCK_AI", "1")
	defer os.Unsetenv("USE_MOCK_AI")

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}
	if !cfg.Shim.MockAI {
		t.Error("expected Shim.MockAI = true when USE_MOCK_AI=1")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			cfg:     Default(),
			wantErr: false,
		},
		{
			name: "missing version",
			cfg: &Config{
				Registry:     RegistryConfig{HealthCheckInterval: time.Second},
				Orchestrator: OrchestratorConfig{PollInterval: time.Millisecond},
			},
			wantErr: true,
		},
		{
			name: "zero health_check_interval",
			cfg: &Config{
				Version:      "1",
				Registry:     RegistryConfig{HealthCheckInterval: 0},
				Orchestrator: OrchestratorConfig{PollInterval: time.Millisecond},
			},
			wantErr: true,
		},
		{
			name: "zero poll_interval",
			cfg: &Config{
				Version:      "1",
				Registry:     RegistryConfig{HealthCheckInterval: time.Second},
				Orchestrator: OrchestratorConfig{PollInterval: 0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_PathHelpers(t *testing.T) {
	cfg := Default()
	baseDir := "/project"

	if got := cfg.CheckpointDir(baseDir); got != "/project/.meowctl/checkpoints" {
		t.Errorf("CheckpointDir = %s, want /project/.meowctl/checkpoints", got)
	}
	if got := cfg.ApprovalsDir(baseDir); got != "/project/.meowctl/approvals" {
		t.Errorf("ApprovalsDir = %s, want /project/.meowctl/approvals", got)
	}
	if got := cfg.LogFile(baseDir); got != "/project/.meowctl/logs/meowctl.log" {
		t.Errorf("LogFile = %s, want /project/.meowctl/logs/meowctl.log", got)
	}

	cfg.Paths.CheckpointDir = "/absolute/checkpoints"
	if got := cfg.CheckpointDir(baseDir); got != "/absolute/checkpoints" {
		t.Errorf("CheckpointDir (abs) = %s, want /absolute/checkpoints", got)
	}

	cfg.Paths.ApprovalsDir = "/absolute/approvals"
	if got := cfg.ApprovalsDir(baseDir); got != "/absolute/approvals" {
		t.Errorf("ApprovalsDir (abs) = %s, want /absolute/approvals", got)
	}

	cfg.Logging.File = "/absolute/meowctl.log"
	if got := cfg.LogFile(baseDir); got != "/absolute/meowctl.log" {
		t.Errorf("LogFile (abs) = %s, want /absolute/meowctl.log", got)
	}
}
