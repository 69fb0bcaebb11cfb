package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meow-stack/meowctl/internal/dag"
	"github.com/meow-stack/meowctl/internal/errors"
)

// WaitStrategy controls how Batch waits for its messages to terminate
//.
type WaitStrategy string

const (
	WaitAll  WaitStrategy = "all"
	WaitAny  WaitStrategy = "any"
	WaitNone WaitStrategy = "none"
)

// BatchMessage is one message submitted as part of a batch, optionally
// depending on sibling messages by id.
type BatchMessage struct {
	ID           string
	To           string
	From         string
	Content      string
	Dependencies []string
	Timeout      time.Duration // per-message override; wins over the batch timeout
}

// MessageOutcome is the per-message terminal result within a batch.
type MessageOutcome struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"` // success | failed
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// BatchResult is the aggregate outcome of Batch.
type BatchResult struct {
	BatchID  string                     `json:"batchId"`
	Outcomes map[string]*MessageOutcome `json:"outcomes"`
}

type batchRegistry struct {
	mu     sync.Mutex
	cancel map[string]context.CancelFunc
}

func newBatchRegistry() *batchRegistry {
	return &batchRegistry{cancel: make(map[string]context.CancelFunc)}
}

func (b *batchRegistry) register(id string, cancel context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel[id] = cancel
}

func (b *batchRegistry) unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cancel, id)
}

func (b *batchRegistry) abort(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cancel, ok := b.cancel[id]
	if !ok {
		return errors.Newf(errors.CodeResolutionNotFound, "batch not found: %s", id)
	}
	cancel()
	return nil
}

// AbortBatch cancels every pending message in a running batch (best
// effort); results already collected are preserved.
func (r *Router) AbortBatch(batchID string) error {
	return r.batches.abort(batchID)
}

// Batch builds a dependency DAG over messages and executes them in
// topological waves, bounded by concurrency, honoring waitStrategy
//. An empty input or a cyclic dependency graph is rejected
// up front as a client error.
func (r *Router) Batch(ctx context.Context, batchID string, messages []BatchMessage, strategy WaitStrategy, concurrency int, timeout time.Duration) (*BatchResult, error) {
	if len(messages) == 0 {
		return nil, errors.ValidationFailed("batch requires at least one message")
	}
	if concurrency <= 0 {
		concurrency = r.defaultConcurrency
	}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	graph := make(dag.Graph, len(messages))
	byID := make(map[string]BatchMessage, len(messages))
	for _, m := range messages {
		graph[m.ID] = m.Dependencies
		byID[m.ID] = m
	}
	if err := dag.Validate(graph); err != nil {
		return nil, err
	}

	batchCtx, cancel := context.WithCancel(ctx)
	r.batches.register(batchID, cancel)
	defer func() {
		cancel()
		r.batches.unregister(batchID)
	}()

	result := &BatchResult{BatchID: batchID, Outcomes: make(map[string]*MessageOutcome, len(messages))}

	if strategy == WaitNone {
		for id, m := range byID {
			go r.deliverBatchMessage(context.Background(), m, timeout)
			result.Outcomes[id] = &MessageOutcome{ID: id, Status: "success"}
		}
		return result, nil
	}

	var mu sync.Mutex
	done := make(map[string]bool, len(messages))
	failed := make(map[string]bool, len(messages))
	anySuccess := make(chan struct{}, 1)

	sem := make(chan struct{}, concurrency)
	for len(done) < len(messages) {
		mu.Lock()
		propagateFailures(byID, done, failed, result)
		ready := dag.Ready(graph, done)
		mu.Unlock()
		if len(ready) == 0 {
			break // remaining messages depend on a failed/missing sibling
		}

		var wg sync.WaitGroup
		for _, id := range ready {
			select {
			case <-batchCtx.Done():
				mu.Lock()
				for _, rid := range ready {
					if _, ok := result.Outcomes[rid]; !ok {
						result.Outcomes[rid] = &MessageOutcome{ID: rid, Status: "failed", Error: "batch cancelled"}
						done[rid] = true
					}
				}
				mu.Unlock()
				continue
			default:
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(m BatchMessage) {
				defer wg.Done()
				defer func() { <-sem }()

				mt := timeout
				if m.Timeout > 0 {
					mt = m.Timeout
				}
				outcome := r.deliverBatchMessage(batchCtx, m, mt)

				mu.Lock()
				result.Outcomes[m.ID] = outcome
				done[m.ID] = true
				if outcome.Status == "failed" {
					failed[m.ID] = true
				}
				mu.Unlock()

				if strategy == WaitAny && outcome.Status == "success" {
					select {
					case anySuccess <- struct{}{}:
					default:
					}
				}
			}(byID[id])
		}
		wg.Wait()

		if strategy == WaitAny {
			select {
			case <-anySuccess:
				cancel()
				return result, nil
			default:
			}
		}
	}

	return result, nil
}

// propagateFailures marks every not-yet-run message whose dependency
// failed as failed itself without delivering it, run to a fixed point so
// chains of dependants fall over in one pass; a message is only ever
// dispatched once every dependency has succeeded. Caller holds the
// batch mutex.
func propagateFailures(byID map[string]BatchMessage, done, failed map[string]bool, result *BatchResult) {
	for {
		changed := false
		for id, m := range byID {
			if done[id] {
				continue
			}
			for _, dep := range m.Dependencies {
				if failed[dep] {
					result.Outcomes[id] = &MessageOutcome{
						ID:     id,
						Status: "failed",
						Error:  fmt.Sprintf("dependency %s did not succeed", dep),
					}
					done[id] = true
					failed[id] = true
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

func (r *Router) deliverBatchMessage(ctx context.Context, m BatchMessage, timeout time.Duration) *MessageOutcome {
	start := time.Now()
	_, err := r.sender.Send(ctx, m.To, m.From, m.Content, m.ID, true, timeout)
	outcome := &MessageOutcome{ID: m.ID, Duration: time.Since(start)}
	if err != nil {
		outcome.Status = "failed"
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = "success"
	return outcome
}
