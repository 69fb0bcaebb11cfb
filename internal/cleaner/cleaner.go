// Package cleaner implements the Process Cleaner: a sweep that
// finds agent-shaped OS processes with no corresponding live registry
// entry ("zombies") and reclaims them, first politely (SIGTERM, with a
// grace period) then forcefully (SIGKILL).
//
// ESRCH from either signal is treated as success: the process being
// gone already is the outcome the sweep wanted.
package cleaner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/psutil"
	"github.com/meow-stack/meowctl/internal/registry"
)

// Cleaner periodically reaps zombie agent processes.
type Cleaner struct {
	store           *registry.Store
	bus             *events.Bus
	pattern         *regexp.Regexp
	gracefulTimeout time.Duration
	logger          *slog.Logger

	// Process-level operations, overridable in tests so a sweep can run
	// against a synthetic process table instead of the live host.
	discover  func(*regexp.Regexp) ([]psutil.DiscoveredProcess, error)
	isAlive   func(int) bool
	terminate func(int) error
	kill      func(int) error
}

// New creates a Cleaner that matches processes by pattern.
func New(store *registry.Store, bus *events.Bus, pattern string, gracefulTimeout time.Duration, logger *slog.Logger) (*Cleaner, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		store:           store,
		bus:             bus,
		pattern:         re,
		gracefulTimeout: gracefulTimeout,
		logger:          logger.With("component", "cleaner"),
		discover:        psutil.Discover,
		isAlive:         psutil.IsAlive,
		terminate:       psutil.Terminate,
		kill:            psutil.Kill,
	}, nil
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.CleanupZombies(ctx); err != nil {
				c.logger.Error("cleanup sweep failed", "error", err)
			}
		}
	}
}

// CleanupResult aggregates the outcome of a single zombie-reclamation pass
//. Errors from individual kill attempts are collected here rather
// than aborting the sweep.
type CleanupResult struct {
	Discovered      int      `json:"discovered"`
	KilledProcesses []string `json:"killedProcesses"`
	Errors          []string `json:"errors,omitempty"`
	HealthRemoved   []string `json:"healthRemoved,omitempty"`
}

// CleanupZombies runs one reclamation pass: discover agent-shaped
// processes via `ps`, diff against the registered pid set, gracefully then
// forcefully kill anything unregistered, then probe every registered pid
// and remove the registry entries whose process is gone.
func (c *Cleaner) CleanupZombies(ctx context.Context) (*CleanupResult, error) {
	registered, err := c.registeredPIDs(ctx)
	if err != nil {
		return nil, err
	}

	discovered, err := c.discover(c.pattern)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{Discovered: len(discovered)}
	for _, proc := range discovered {
		if registered[proc.PID] {
			continue
		}

		c.logger.Info("zombie process detected", "pid", proc.PID, "command", proc.Command)
		if c.bus != nil {
			c.bus.Publish(events.KindProcessZombieDetected, map[string]any{"pid": proc.PID, "command": proc.Command})
		}

		if err := c.reclaim(ctx, proc.PID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("PID %d: %v", proc.PID, err))
			continue
		}
		result.KilledProcesses = append(result.KilledProcesses, fmt.Sprintf("PID %d: %s", proc.PID, proc.Command))
	}

	removed, err := c.pruneDeadRegistryEntries(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.HealthRemoved = removed
	}

	if err := c.store.MarkCleanup(ctx, time.Now()); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	return result, nil
}

// EmergencyCleanup force-kills every discovered agent process regardless
// of registration, then clears the Registry entirely.
func (c *Cleaner) EmergencyCleanup(ctx context.Context) (*CleanupResult, error) {
	discovered, err := c.discover(c.pattern)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{Discovered: len(discovered)}
	for _, proc := range discovered {
		if err := c.kill(proc.PID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("PID %d: %v", proc.PID, err))
			continue
		}
		result.KilledProcesses = append(result.KilledProcesses, fmt.Sprintf("PID %d: %s", proc.PID, proc.Command))
	}

	registered, err := c.store.List(ctx, "")
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	for _, a := range registered {
		if err := c.store.Remove(ctx, a.AgentID); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
	return result, nil
}

// GetProcessCount returns the number of discovered agent-shaped processes.
func (c *Cleaner) GetProcessCount(ctx context.Context) (int, error) {
	discovered, err := c.discover(c.pattern)
	if err != nil {
		return 0, err
	}
	return len(discovered), nil
}

// NeedsCleanup reports whether more agent-shaped processes are running
// than are registered.
func (c *Cleaner) NeedsCleanup(ctx context.Context) (bool, error) {
	discovered, err := c.discover(c.pattern)
	if err != nil {
		return false, err
	}
	registered, err := c.store.List(ctx, "")
	if err != nil {
		return false, err
	}
	return len(discovered) > len(registered), nil
}

func (c *Cleaner) registeredPIDs(ctx context.Context) (map[int]bool, error) {
	registered, err := c.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	live := make(map[int]bool, len(registered))
	for _, a := range registered {
		if a.PID != 0 {
			live[a.PID] = true
		}
	}
	return live, nil
}

// pruneDeadRegistryEntries probes every registered agent's pid with
// isAlive, removes the entries whose process is gone, and returns the
// ids of the removed agents. An entry whose removal fails is skipped.
func (c *Cleaner) pruneDeadRegistryEntries(ctx context.Context) ([]string, error) {
	registered, err := c.store.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, a := range registered {
		if c.isAlive(a.PID) {
			continue
		}
		if err := c.store.Remove(ctx, a.AgentID); err != nil {
			continue
		}
		removed = append(removed, a.AgentID)
	}
	return removed, nil
}

// reclaim sends SIGTERM, waits up to gracefulTimeout, then escalates to
// SIGKILL if the process is still alive.
func (c *Cleaner) reclaim(ctx context.Context, pid int) error {
	if err := c.terminate(pid); err != nil {
		return err
	}

	deadline := time.Now().Add(c.gracefulTimeout)
	for time.Now().Before(deadline) {
		if !c.isAlive(pid) {
			c.reportReaped(pid, "sigterm")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	if c.isAlive(pid) {
		if err := c.kill(pid); err != nil {
			return err
		}
	}
	c.reportReaped(pid, "sigkill")
	return nil
}

func (c *Cleaner) reportReaped(pid int, method string) {
	c.logger.Info("zombie process reaped", "pid", pid, "method", method)
	if c.bus != nil {
		c.bus.Publish(events.KindProcessReaped, map[string]any{"pid": pid, "method": method})
	}
}
