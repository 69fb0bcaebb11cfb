package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meow-stack/meowctl/internal/approval"
	"github.com/meow-stack/meowctl/internal/cleaner"
	"github.com/meow-stack/meowctl/internal/config"
	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/httpapi"
	"github.com/meow-stack/meowctl/internal/logging"
	"github.com/meow-stack/meowctl/internal/orchestrator"
	"github.com/meow-stack/meowctl/internal/project"
	"github.com/meow-stack/meowctl/internal/registry"
	"github.com/meow-stack/meowctl/internal/router"
	"github.com/meow-stack/meowctl/internal/shim"
	"github.com/meow-stack/meowctl/internal/spawn"
	"github.com/meow-stack/meowctl/internal/types"
)

var serveAgentBinary string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the meowctl daemon (registry, router, orchestrator, HTTP API)",
	Long: `serve is the composition root: it builds the Process Registry,
Process Cleaner, Message Router, Agent Runtime Shim, Approval
Orchestrator and Workflow Orchestrator, wires them together, and
exposes them over the REST/WebSocket transport until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAgentBinary, "agent-binary", "", "binary to exec when reviving an offline agent (empty disables auto-revival)")
}

// approvalGateAdapter satisfies orchestrator.ApprovalGate by
// translating the orchestrator's transport-agnostic request shape into
// the concrete approval.CreateRequest the Approval Orchestrator
// expects, keeping the seam between the two components narrow.
type approvalGateAdapter struct {
	orch *approval.Orchestrator
}

func (a *approvalGateAdapter) CreateApproval(ctx context.Context, req orchestrator.CreateApprovalRequest) (string, error) {
	created, err := a.orch.CreateApproval(ctx, approval.CreateRequest{
		ThreadID:                req.ThreadID,
		StepID:                  req.StepID,
		ProjectID:               req.ProjectID,
		WorkflowName:            req.WorkflowName,
		Task:                    req.Task,
		Prompt:                  req.Prompt,
		ContextData:             req.ContextData,
		RiskLevel:               req.RiskLevel,
		TimeoutSeconds:          req.TimeoutSeconds,
		ApprovalRequired:        req.ApprovalRequired,
		AutoApproveAfterTimeout: req.AutoApproveAfterTimeout,
	})
	if err != nil {
		return "", err
	}
	return created.ApprovalID, nil
}

func (a *approvalGateAdapter) WaitForDecision(ctx context.Context, approvalID string, timeoutSeconds int, behavior types.TimeoutBehavior) (bool, error) {
	return a.orch.WaitForDecision(ctx, approvalID, timeoutSeconds, behavior)
}

// runExpirySweeper resolves pending approvals whose deadline has passed
// on a fixed cadence.
func runExpirySweeper(ctx context.Context, orch *approval.Orchestrator, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = orch.ProcessExpiredApprovals(ctx)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := getWorkDir()
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	bus := events.NewBus(256)

	agents := registry.NewStore(cfg.Paths.RegistryFile)
	agents.SetBus(bus)
	if err := agents.Load(context.Background()); err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	healthChecker := registry.NewHealthChecker(agents, bus, cfg.Registry.HealthCheckInterval, logger)

	procCleaner, err := cleaner.New(agents, bus, cfg.Cleaner.ProcessPattern, cfg.Cleaner.GracefulTimeout, logger)
	if err != nil {
		return fmt.Errorf("creating process cleaner: %w", err)
	}

	agentSpawner := spawn.NewProcessSpawner(agents, cfg.Paths.RegistryFile, serveAgentBinary, 0, 0)
	locator := router.NewRegistryLocator(agents, agentSpawner)
	sender := router.NewIPCSender()
	msgRouter := router.New(locator, sender, bus,
		router.WithDefaultConcurrency(cfg.Router.DefaultConcurrency),
		router.WithDefaultTimeout(cfg.Router.DefaultTimeout))

	// The real LLM SDK is an external collaborator behind the
	// LLMCapability seam; this build ships the deterministic mock. A
	// provider-backed capability plugs in here without touching the shim.
	shimManager := shim.NewManager(agents, bus, func(agentID, role string) shim.LLMCapability {
		return shim.NewMockLLM()
	})

	approvalStore := approval.NewStore(cfg.ApprovalsFile(dir))
	approvalOrch := approval.New(approvalStore, bus, cfg.Approval.PollInterval, cfg.Approval.InfinitePollInterval)
	approvalOrch.SetLogger(logger)

	projectDir, err := project.LoadFile(cfg.AgentConfigsFile(dir))
	if err != nil {
		return fmt.Errorf("loading project catalog: %w", err)
	}

	checkpoints := orchestrator.NewCheckpointStore(cfg.CheckpointDir(dir))
	orch := orchestrator.New(agents, shimManager, &approvalGateAdapter{orch: approvalOrch}, checkpoints, bus, cfg.Shim.MockAI, cfg.Router.DefaultConcurrency)
	orch.SetConfigResolver(projectDir)
	orch.SetLogger(logger)

	api := httpapi.New(cfg.HTTP.Addr, orch, msgRouter, approvalOrch, agents, bus, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go healthChecker.Run(ctx)
	go procCleaner.Run(ctx, cfg.Cleaner.SweepInterval)
	go runExpirySweeper(ctx, approvalOrch, cfg.Approval.SweepInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- api.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Cleaner.GracefulTimeout)
		defer cancel()
		return api.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
