// Package project implements the small query interface the Workflow
// Orchestrator consumes for agent-configuration
// resolution: a catalog of named configs scoped per project, with a
// global fallback, standing in for an external project-metadata store.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/types"
)

// Directory is the narrow capability the orchestrator needs to resolve a
// (project, role) pair to a concrete AgentConfig, or to check that an
// explicit agentId has a config on file at all.
type Directory interface {
	ResolveAgentConfig(ctx context.Context, projectID, role string) (types.AgentConfig, error)
	HasConfig(ctx context.Context, configID string) (bool, error)
}

// entry is one catalog row: a config plus the scope it was registered
// under (types.GlobalProject for a global config).
type entry struct {
	projectID string
	config    types.AgentConfig
}

// InMemoryDirectory is the default Directory implementation: a
// project-then-global catalog held in memory, with an optional
// file-backed load from a JSON document.
type InMemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	byScope map[string]map[string]*entry // projectID -> role (lowercased) -> entry
}

// NewInMemoryDirectory creates an empty catalog.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		byID:    make(map[string]*entry),
		byScope: make(map[string]map[string]*entry),
	}
}

// Register adds or replaces a config in the catalog, scoped to
// projectID (types.GlobalProject for a global config). Role matching is
// case-insensitive.
func (d *InMemoryDirectory) Register(projectID string, cfg types.AgentConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := &entry{projectID: projectID, config: cfg}
	if cfg.ConfigID != "" {
		d.byID[cfg.ConfigID] = e
	}

	scope, ok := d.byScope[projectID]
	if !ok {
		scope = make(map[string]*entry)
		d.byScope[projectID] = scope
	}
	scope[strings.ToLower(cfg.Role)] = e
}

// ResolveAgentConfig tries a project-scoped match first, then the
// global scope, else fails with "no agent found for role R".
func (d *InMemoryDirectory) ResolveAgentConfig(ctx context.Context, projectID, role string) (types.AgentConfig, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	key := strings.ToLower(role)
	if projectID != "" && projectID != types.GlobalProject {
		if scope, ok := d.byScope[projectID]; ok {
			if e, ok := scope[key]; ok {
				return e.config, nil
			}
		}
	}
	if scope, ok := d.byScope[types.GlobalProject]; ok {
		if e, ok := scope[key]; ok {
			return e.config, nil
		}
	}
	return types.AgentConfig{}, errors.Newf(errors.CodeValidationUnknownRole, "no agent found for role %s", role)
}

// HasConfig reports whether a configId is registered anywhere in the
// catalog, project or global scope.
func (d *InMemoryDirectory) HasConfig(ctx context.Context, configID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byID[configID]
	return ok, nil
}

// fileDoc is the on-disk shape LoadFile/SaveFile read and write: a flat
// list of configs, each tagged with the project scope it belongs to.
type fileDoc struct {
	Configs []fileEntry `json:"configs"`
}

type fileEntry struct {
	ProjectID string            `json:"projectId"`
	Config    types.AgentConfig `json:"config"`
}

// LoadFile populates an InMemoryDirectory from a JSON catalog file,
// tolerating a missing file as an empty catalog.
func LoadFile(path string) (*InMemoryDirectory, error) {
	d := NewInMemoryDirectory()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("reading agent config catalog: %w", err)
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing agent config catalog: %w", err)
	}
	for _, fe := range doc.Configs {
		scope := fe.ProjectID
		if scope == "" {
			scope = types.GlobalProject
		}
		d.Register(scope, fe.Config)
	}
	return d, nil
}
