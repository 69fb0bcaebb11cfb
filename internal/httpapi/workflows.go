package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meow-stack/meowctl/internal/orchestrator"
	"github.com/meow-stack/meowctl/internal/types"
)

// invokeRequest is the "POST /invoke" body: {workflow: Step | Step[],
// threadId, projectId?}. A single step is accepted as well as a list.
type invokeRequest struct {
	Workflow  json.RawMessage `json:"workflow"`
	ThreadID  string          `json:"threadId"`
	ProjectID string          `json:"projectId"`
}

func decodeSteps(raw json.RawMessage) ([]*types.Step, error) {
	var steps []*types.Step
	if err := json.Unmarshal(raw, &steps); err == nil {
		return steps, nil
	}
	var single types.Step
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("workflow must be a step or an array of steps: %w", err)
	}
	return []*types.Step{&single}, nil
}

// handleInvoke implements "POST /invoke": validates and runs a new
// workflow thread, returning the final run state. Validation failures
// return 400 with a human-readable error.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}

	steps, err := decodeSteps(req.Workflow)
	if err != nil {
		badRequest(w, err)
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	run, err := s.orchestrator.Start(r.Context(), threadID, req.ProjectID, steps)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, run)
}

// handleWorkflowState returns the active in-memory run if one exists,
// else the latest checkpoint, optionally verified against a supplied
// step list.
func (s *Server) handleWorkflowState(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	steps, _, err := decodeResumeSteps(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	run, err := s.orchestrator.GetRun(r.Context(), threadID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if steps != nil {
		if err := orchestrator.CheckCompatible(run.Steps, steps); err != nil {
			respondErr(w, err)
			return
		}
	}
	ok(w, run)
}

// handleWorkflowHistory returns the full checkpoint list, optionally
// verified against a supplied step list.
func (s *Server) handleWorkflowHistory(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	steps, _, err := decodeResumeSteps(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	history, err := s.orchestrator.GetStateHistory(r.Context(), threadID, steps)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, history)
}

// resumeRequest is the optional resume body: a workflow step list to
// verify structural compatibility against (absent means skip the
// check) and the project to resume within.
type resumeRequest struct {
	Workflow  json.RawMessage `json:"workflow"`
	ProjectID string          `json:"projectId"`
}

// decodeResumeSteps reads an optional resumeRequest body, returning a
// nil step list (and no error) when the body is empty or carries no
// workflow field, since the steps argument is optional over this
// transport.
func decodeResumeSteps(r *http.Request) ([]*types.Step, string, error) {
	var req resumeRequest
	if r.ContentLength == 0 {
		return nil, "", nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", fmt.Errorf("invalid request body: %w", err)
	}
	if len(req.Workflow) == 0 {
		return nil, req.ProjectID, nil
	}
	steps, err := decodeSteps(req.Workflow)
	return steps, req.ProjectID, err
}

func (s *Server) handleWorkflowCheckpoint(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	checkpointID, err := strconv.Atoi(chi.URLParam(r, "checkpointId"))
	if err != nil {
		badRequest(w, fmt.Errorf("invalid checkpointId: %w", err))
		return
	}
	steps, _, err := decodeResumeSteps(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	run, err := s.orchestrator.GetCheckpoint(r.Context(), threadID, checkpointID, steps)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, run)
}

func (s *Server) handleWorkflowResume(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	checkpointParam := chi.URLParam(r, "checkpointId")

	steps, projectID, err := decodeResumeSteps(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	if checkpointParam == "" {
		run, err := s.orchestrator.ResumeWorkflow(r.Context(), threadID, steps, projectID)
		if err != nil {
			respondErr(w, err)
			return
		}
		ok(w, run)
		return
	}

	checkpointID, err := strconv.Atoi(checkpointParam)
	if err != nil {
		badRequest(w, fmt.Errorf("invalid checkpointId: %w", err))
		return
	}
	run, err := s.orchestrator.ResumeFromCheckpoint(r.Context(), threadID, checkpointID, steps, projectID)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, run)
}
