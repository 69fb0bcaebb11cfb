// Package cmd implements the meowctl command-line interface: the
// process composition root that wires the Process Registry, Process
// Cleaner, Message Router, Agent Runtime Shim, Approval Orchestrator
// and Workflow Orchestrator into a running service, plus the
// operator-facing commands for inspecting and driving them. All wiring
// happens in the composition root; there are no package-level
// singletons or lazy accessors.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"

	// workDir is the project directory config/state is resolved
	// against; defaults to the current working directory.
	workDir string

	// serverAddr overrides http.addr from config for commands that talk
	// to a running meowctl serve instance over HTTP.
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "meowctl",
	Short: "Multi-agent orchestration platform",
	Long: `meowctl spawns, tracks, and coordinates long-lived AI agent
subprocesses across projects, routes inter-agent messages over local
IPC, and executes durable multi-step workflows with dependency
resolution, parallelism, looping, conditional branching, and
human-in-the-loop approvals.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "project directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "meowctl serve address (default: from config)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("meowctl {{.Version}}\n")
}

func getWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}
