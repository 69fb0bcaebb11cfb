package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListAgents implements "GET /agents?projectId=": the Process
// Registry's agent list for a project, used by the CLI's
// "agents list" subcommand.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	agents, err := s.agents.List(r.Context(), projectID)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	agent, err := s.agents.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, agent)
}

func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.agents.Remove(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}
	ok(w, map[string]string{"agentId": id, "status": "removed"})
}
