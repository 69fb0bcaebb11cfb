package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meow-stack/meowctl/internal/cleaner"
	"github.com/meow-stack/meowctl/internal/cli"
	"github.com/meow-stack/meowctl/internal/config"
	"github.com/meow-stack/meowctl/internal/logging"
	"github.com/meow-stack/meowctl/internal/registry"
)

// Cleanup command flags.
var (
	cleanupEmergency bool
	cleanupYes       bool
)

// cleanupCmd runs the Process Cleaner directly against the registry
// file rather than through the HTTP transport, so a "meowctl serve"
// instance need not be running to reap zombies.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reap zombie agent processes not tracked by the registry",
	Long: `cleanup discovers agent-shaped OS processes that have no
corresponding live entry in the Process Registry and reclaims them:
first a graceful termination, then a forced kill if the process
survives the grace period.

--emergency force-kills every discovered agent process regardless of
registration and clears the registry entirely; use it only when the
registry itself is suspected of being out of sync with reality.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVar(&cleanupEmergency, "emergency", false, "force-kill every discovered agent process and clear the registry")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "skip the confirmation prompt")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dir, err := getWorkDir()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	agents := registry.NewStore(cfg.Paths.RegistryFile)
	if err := agents.Load(ctx); err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	procCleaner, err := cleaner.New(agents, nil, cfg.Cleaner.ProcessPattern, cfg.Cleaner.GracefulTimeout, logger)
	if err != nil {
		return fmt.Errorf("creating process cleaner: %w", err)
	}

	if cleanupEmergency {
		proceed, err := confirmCleanup("This force-kills every discovered agent process and clears the registry. Continue?")
		if err != nil {
			return err
		}
		if !proceed {
			fmt.Println("Emergency cleanup cancelled.")
			return nil
		}

		result, err := procCleaner.EmergencyCleanup(ctx)
		if err != nil {
			return fmt.Errorf("emergency cleanup: %w", err)
		}
		printCleanupResult("emergency cleanup", result)
		return nil
	}

	needsCleanup, err := procCleaner.NeedsCleanup(ctx)
	if err != nil {
		return fmt.Errorf("checking for zombie processes: %w", err)
	}
	if !needsCleanup {
		fmt.Println("No zombie agent processes found.")
		return nil
	}

	proceed, err := confirmCleanup("Zombie agent processes were found. Reap them?")
	if err != nil {
		return err
	}
	if !proceed {
		fmt.Println("Cleanup cancelled.")
		return nil
	}

	result, err := procCleaner.CleanupZombies(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up zombies: %w", err)
	}
	printCleanupResult("cleanup", result)
	return nil
}

// confirmCleanup asks for confirmation unless -y was passed.
func confirmCleanup(prompt string) (bool, error) {
	if cleanupYes {
		return true, nil
	}
	return cli.Confirm(prompt, false)
}

func printCleanupResult(label string, result *cleaner.CleanupResult) {
	fmt.Printf("%s: %d process(es) discovered, %d killed\n", label, result.Discovered, len(result.KilledProcesses))
	for _, k := range result.KilledProcesses {
		fmt.Printf("  killed %s\n", k)
	}
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	if len(result.HealthRemoved) > 0 {
		fmt.Printf("  pruned %d dead registry entr(y/ies)\n", len(result.HealthRemoved))
	}
}
