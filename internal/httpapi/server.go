// Package httpapi implements the REST + WebSocket transport boundary:
// a thin net/http surface over the Workflow Orchestrator, Message
// Router, and Approval Orchestrator, with a gorilla/websocket hub
// fanning the event bus out to connected observers.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/meow-stack/meowctl/internal/approval"
	"github.com/meow-stack/meowctl/internal/events"
	"github.com/meow-stack/meowctl/internal/orchestrator"
	"github.com/meow-stack/meowctl/internal/registry"
	"github.com/meow-stack/meowctl/internal/router"
)

// Server is the HTTP surface: a chi router plus a WebSocket event hub,
// wired to the components callers actually reach through it.
type Server struct {
	router       *chi.Mux
	hub          *Hub
	orchestrator *orchestrator.Orchestrator
	messages     *router.Router
	approvals    *approval.Orchestrator
	agents       *registry.Store
	logger       *slog.Logger

	httpServer *http.Server
}

// New builds the HTTP surface. bus, if non-nil, feeds every published
// event to the WebSocket hub for fan-out to connected subscribers.
// agents, if non-nil, exposes the Process Registry's read/remove
// operations the CLI's "agents" subcommands drive.
func New(addr string, orch *orchestrator.Orchestrator, msgRouter *router.Router, approvals *approval.Orchestrator, agents *registry.Store, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:          NewHub(logger),
		orchestrator: orch,
		messages:     msgRouter,
		approvals:    approvals,
		agents:       agents,
		logger:       logger.With("component", "httpapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Post("/invoke", s.handleInvoke)
	r.Post("/workflows/state/{threadId}", s.handleWorkflowState)
	r.Post("/workflows/history/{threadId}", s.handleWorkflowHistory)
	r.Post("/workflows/checkpoint/{threadId}/{checkpointId}", s.handleWorkflowCheckpoint)
	r.Post("/workflows/resume/{threadId}", s.handleWorkflowResume)
	r.Post("/workflows/resume/{threadId}/{checkpointId}", s.handleWorkflowResume)

	r.Post("/approvals", s.handleCreateApproval)
	r.Get("/approvals/{id}", s.handleGetApproval)
	r.Post("/approvals/{id}/decide", s.handleDecideApproval)
	r.Get("/approvals", s.handleListApprovals)
	r.Post("/approvals/{id}/cancel", s.handleCancelApproval)
	r.Get("/approvals/projects/{projectId}/pending", s.handlePendingApprovals)
	r.Post("/approvals/process-expired", s.handleProcessExpiredApprovals)

	r.Get("/agents", s.handleListAgents)
	r.Get("/agents/{id}", s.handleGetAgent)
	r.Delete("/agents/{id}", s.handleRemoveAgent)

	r.Post("/messages/mention", s.handleMention)
	r.Post("/messages/batch", s.handleBatch)
	r.Post("/messages/batch/{batchId}/abort", s.handleBatchAbort)

	r.Get("/ws", s.hub.ServeHTTP)

	if bus != nil {
		go s.hub.Pump(bus)
	}

	s.router = r
	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start listens and serves, blocking until the server stops or errors.
func (s *Server) Start() error {
	s.logger.Info("http api listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying chi.Mux, mostly for tests using
// httptest.NewServer/NewRecorder.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

// envelope is the uniform response shape: {success: true, data} on
// success, {success: false, error} on failure.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// fail writes a stable, display-ready error string. Validation errors
// get 400, not-found errors get 404, anything else 500.
func fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func badRequest(w http.ResponseWriter, err error) { fail(w, http.StatusBadRequest, err) }
