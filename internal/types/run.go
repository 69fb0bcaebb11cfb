package types

import "time"

// RunStatus is the lifecycle state of a workflow run (thread).
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusDone      RunStatus = "done"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether s is a final run status.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusDone, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Run is a single executing (or completed) instance of a workflow -
// the "thread" of the glossary. Owned exclusively by the Workflow
// Orchestrator and mediated by the checkpoint store.
type Run struct {
	ThreadID  string    `json:"threadId"`
	ProjectID string    `json:"projectId,omitempty"`
	Status    RunStatus `json:"status"`

	Steps map[string]*Step `json:"steps"`

	StepResults map[string]StepResult `json:"stepResults"`
	StepOutputs map[string]string     `json:"stepOutputs"`
	SessionIDs  map[string]string     `json:"sessionIds,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DoneAt    *time.Time `json:"doneAt,omitempty"`

	FailureReason string `json:"failureReason,omitempty"`

	// CheckpointSeq is the id of the most recently written checkpoint.
	CheckpointSeq int `json:"checkpointSeq"`
}

// NewRun builds an empty run ready for validation and scheduling.
func NewRun(threadID, projectID string, steps []*Step, now time.Time) *Run {
	m := make(map[string]*Step, len(steps))
	for _, s := range steps {
		m[s.ID] = s
	}
	return &Run{
		ThreadID:    threadID,
		ProjectID:   projectID,
		Status:      RunStatusPending,
		Steps:       m,
		StepResults: make(map[string]StepResult),
		StepOutputs: make(map[string]string),
		SessionIDs:  make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AllDone reports whether every step has a terminal result recorded.
func (r *Run) AllDone() bool {
	for id := range r.Steps {
		if _, ok := r.StepResults[id]; !ok {
			return false
		}
	}
	return true
}

// HasFailed reports whether any step result is failed.
func (r *Run) HasFailed() bool {
	for _, res := range r.StepResults {
		if res.Status == ResultFailed {
			return true
		}
	}
	return false
}

// Ready returns the ids of steps (container children included) whose
// deps are all recorded success, that have not yet been given a result. Deterministic order
// (sorted by id) so scheduling is reproducible.
func (r *Run) Ready() []string {
	var ready []string
	for id, step := range r.Steps {
		if _, done := r.StepResults[id]; done {
			continue
		}
		if r.depsSatisfied(step) {
			ready = append(ready, id)
		}
	}
	sortStrings(ready)
	return ready
}

func (r *Run) depsSatisfied(step *Step) bool {
	for _, dep := range step.Deps {
		res, ok := r.StepResults[dep]
		if !ok || res.Status != ResultSuccess {
			return false
		}
	}
	return true
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// Checkpoint is a durable, point-in-time snapshot of a Run, addressable
// by (threadId, checkpointId) per the glossary.
type Checkpoint struct {
	ThreadID     string    `json:"threadId"`
	CheckpointID int       `json:"checkpointId"`
	Run          Run       `json:"run"`
	CreatedAt    time.Time `json:"createdAt"`
}
