package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meow-stack/meowctl/internal/approval"
	"github.com/meow-stack/meowctl/internal/types"
)

// createApprovalRequest is the "POST /approvals" body.
type createApprovalRequest struct {
	ThreadID                string         `json:"threadId"`
	StepID                  string         `json:"stepId"`
	ProjectID               string         `json:"projectId"`
	WorkflowName            string         `json:"workflowName"`
	Task                    string         `json:"task"`
	Prompt                  string         `json:"prompt"`
	ContextData             map[string]any `json:"contextData"`
	RiskLevel               string         `json:"riskLevel"`
	TimeoutSeconds          int            `json:"timeoutSeconds"`
	ApprovalRequired        bool           `json:"approvalRequired"`
	AutoApproveAfterTimeout bool           `json:"autoApproveAfterTimeout"`
}

func (s *Server) handleCreateApproval(w http.ResponseWriter, r *http.Request) {
	var req createApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	a, err := s.approvals.CreateApproval(r.Context(), approval.CreateRequest{
		ThreadID:                req.ThreadID,
		StepID:                  req.StepID,
		ProjectID:               req.ProjectID,
		WorkflowName:            req.WorkflowName,
		Task:                    req.Task,
		Prompt:                  req.Prompt,
		ContextData:             req.ContextData,
		RiskLevel:               types.RiskLevel(req.RiskLevel),
		TimeoutSeconds:          req.TimeoutSeconds,
		ApprovalRequired:        req.ApprovalRequired,
		AutoApproveAfterTimeout: req.AutoApproveAfterTimeout,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, a)
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	enriched := r.URL.Query().Get("enriched") == "true"
	a, err := s.approvals.GetApproval(r.Context(), id, enriched)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, a)
}

// decideApprovalRequest is the "POST /approvals/:id/decide" body.
type decideApprovalRequest struct {
	Decision string `json:"decision"` // approved | rejected
	By       string `json:"by"`
}

func (s *Server) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req decideApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	target := types.ApprovalStatus(req.Decision)
	if target != types.ApprovalApproved && target != types.ApprovalRejected {
		badRequest(w, fmt.Errorf("decision must be \"approved\" or \"rejected\", got %q", req.Decision))
		return
	}
	a, err := s.approvals.ProcessDecision(r.Context(), id, target, req.By)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, a)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	filter := approval.Filter{
		ProjectID: r.URL.Query().Get("projectId"),
		Status:    types.ApprovalStatus(r.URL.Query().Get("status")),
	}
	list, err := s.approvals.ListApprovals(r.Context(), filter)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, list)
}

func (s *Server) handleCancelApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		By string `json:"by"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req) // a missing body just means an anonymous cancel
	a, err := s.approvals.CancelApproval(r.Context(), id, req.By)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, a)
}

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	list, err := s.approvals.GetPendingForProject(r.Context(), projectID)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, list)
}

func (s *Server) handleProcessExpiredApprovals(w http.ResponseWriter, r *http.Request) {
	count, err := s.approvals.ProcessExpiredApprovals(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, map[string]int{"processed": count})
}
