// Package approval implements the Approval Orchestrator: the
// human-in-the-loop gate state machine consumed by the Workflow
// Orchestrator's human step node. Records persist through the same
// atomic tmp+rename file discipline as the Process Registry.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/types"
)

// Store is the file-backed, in-memory-cached approval record store.
type Store struct {
	path string

	mu        sync.RWMutex
	approvals map[string]*types.Approval
	loaded    bool
}

// NewStore creates an approval store backed by a single JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path, approvals: make(map[string]*types.Approval)}
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("reading approvals file: %w", err)
	}
	var list []*types.Approval
	if err := json.Unmarshal(data, &list); err != nil {
		s.approvals = make(map[string]*types.Approval)
		s.loaded = true
		return nil // corrupt file: treated as a fresh start
	}
	for _, a := range list {
		s.approvals[a.ApprovalID] = a
	}
	s.loaded = true
	return nil
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating approvals directory: %w", err)
	}
	list := make([]*types.Approval, 0, len(s.approvals))
	for _, a := range s.approvals {
		list = append(list, a)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) put(a *types.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	cp := *a
	s.approvals[a.ApprovalID] = &cp
	return s.saveLocked()
}

func (s *Store) get(id string) (*types.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, errors.Newf(errors.CodeResolutionNotFound, "approval not found: %s", id)
	}
	cp := *a
	return &cp, nil
}

func (s *Store) list(filter Filter) ([]*types.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Approval
	for _, a := range s.approvals {
		if filter.ProjectID != "" && a.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded()
}
