package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meow-stack/meowctl/internal/router"
)

// mentionRequest is the "POST /messages/mention" body.
type mentionRequest struct {
	Message         string `json:"message"`
	From            string `json:"from"`
	ProjectID       string `json:"projectId"`
	TargetProjectID string `json:"targetProjectId"`
	Wait            bool   `json:"wait"`
	TimeoutMS       int    `json:"timeoutMs"`
	CorrelationID   string `json:"correlationId"`
}

func (s *Server) handleMention(w http.ResponseWriter, r *http.Request) {
	var req mentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	opts := router.RouteOptions{
		Wait:            req.Wait,
		CorrelationID:   req.CorrelationID,
		ProjectID:       req.ProjectID,
		TargetProjectID: req.TargetProjectID,
	}
	if req.TimeoutMS > 0 {
		opts.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	result, err := s.messages.Route(r.Context(), req.Message, req.From, opts)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, result)
}

// batchMessageRequest mirrors router.BatchMessage over the wire.
type batchMessageRequest struct {
	ID           string   `json:"id"`
	To           string   `json:"to"`
	From         string   `json:"from"`
	Content      string   `json:"content"`
	Dependencies []string `json:"dependencies"`
	TimeoutMS    int      `json:"timeoutMs"`
}

// batchRequest is the "POST /messages/batch" body.
type batchRequest struct {
	BatchID     string                `json:"batchId"`
	Messages    []batchMessageRequest `json:"messages"`
	Wait        string                `json:"wait"` // all | any | none
	Concurrency int                   `json:"concurrency"`
	TimeoutMS   int                   `json:"timeoutMs"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}

	batchID := req.BatchID
	if batchID == "" {
		badRequest(w, fmt.Errorf("batchId is required"))
		return
	}

	messages := make([]router.BatchMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		bm := router.BatchMessage{
			ID:           m.ID,
			To:           m.To,
			From:         m.From,
			Content:      m.Content,
			Dependencies: m.Dependencies,
		}
		if m.TimeoutMS > 0 {
			bm.Timeout = time.Duration(m.TimeoutMS) * time.Millisecond
		}
		messages = append(messages, bm)
	}

	strategy := router.WaitStrategy(req.Wait)
	if strategy == "" {
		strategy = router.WaitAll
	}
	var timeout time.Duration
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	result, err := s.messages.Batch(r.Context(), batchID, messages, strategy, req.Concurrency, timeout)
	if err != nil {
		respondErr(w, err)
		return
	}
	ok(w, result)
}

func (s *Server) handleBatchAbort(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")
	if err := s.messages.AbortBatch(batchID); err != nil {
		respondErr(w, err)
		return
	}
	ok(w, map[string]string{"batchId": batchID, "status": "aborted"})
}
