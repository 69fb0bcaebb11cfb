package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/meow-stack/meowctl/internal/errors"
	"github.com/meow-stack/meowctl/internal/types"
)

// CheckpointStore persists a durable history of Run snapshots, one file
// per thread, keyed by checkpoint sequence. Writes go through the same
// atomic tmp+rename discipline as the registry and approval stores, so
// the on-disk history is never a partial snapshot.
type CheckpointStore struct {
	dir string
	mu  sync.Mutex
}

// NewCheckpointStore creates a checkpoint store rooted at dir.
func NewCheckpointStore(dir string) *CheckpointStore {
	return &CheckpointStore{dir: dir}
}

func (c *CheckpointStore) path(threadID string) string {
	return filepath.Join(c.dir, threadID+".json")
}

// Save appends a new checkpoint capturing run's current state and
// returns it. Checkpoint IDs increment per thread starting at 1.
func (c *CheckpointStore) Save(ctx context.Context, run *types.Run) (*types.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history, err := c.readLocked(run.ThreadID)
	if err != nil {
		return nil, err
	}

	run.CheckpointSeq++
	cp := &types.Checkpoint{
		ThreadID:     run.ThreadID,
		CheckpointID: run.CheckpointSeq,
		Run:          *run,
		CreatedAt:    time.Now(),
	}
	history = append(history, cp)

	if err := c.writeLocked(run.ThreadID, history); err != nil {
		return nil, err
	}
	return cp, nil
}

// Load returns the most recent checkpoint's Run for threadID.
func (c *CheckpointStore) Load(ctx context.Context, threadID string) (*types.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history, err := c.readLocked(threadID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, errors.Newf(errors.CodeResolutionNotFound, "no checkpoints for thread %s", threadID)
	}
	run := history[len(history)-1].Run
	return &run, nil
}

// LoadAt returns the Run as of a specific checkpoint id.
func (c *CheckpointStore) LoadAt(ctx context.Context, threadID string, checkpointID int) (*types.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history, err := c.readLocked(threadID)
	if err != nil {
		return nil, err
	}
	for _, cp := range history {
		if cp.CheckpointID == checkpointID {
			run := cp.Run
			return &run, nil
		}
	}
	return nil, errors.Newf(errors.CodeResolutionNotFound, "checkpoint %d not found for thread %s", checkpointID, threadID)
}

// History returns every checkpoint recorded for threadID, oldest first.
func (c *CheckpointStore) History(ctx context.Context, threadID string) ([]*types.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(threadID)
}

// TruncateAfter discards every checkpoint recorded after checkpointID,
// so a resume from an older checkpoint makes that checkpoint's
// successors unreachable rather than leaving them as stale future
// history.
func (c *CheckpointStore) TruncateAfter(ctx context.Context, threadID string, checkpointID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	history, err := c.readLocked(threadID)
	if err != nil {
		return err
	}
	kept := history[:0]
	for _, cp := range history {
		if cp.CheckpointID <= checkpointID {
			kept = append(kept, cp)
		}
	}
	return c.writeLocked(threadID, kept)
}

func (c *CheckpointStore) readLocked(threadID string) ([]*types.Checkpoint, error) {
	data, err := os.ReadFile(c.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoints for %s: %w", threadID, err)
	}
	var history []*types.Checkpoint
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, nil // corrupt file: treated as a fresh start
	}
	sort.Slice(history, func(i, j int) bool { return history[i].CheckpointID < history[j].CheckpointID })
	return history, nil
}

func (c *CheckpointStore) writeLocked(threadID string, history []*types.Checkpoint) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	path := c.path(threadID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
