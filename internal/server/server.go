// Package server exposes the answering pipeline over HTTP as an
// OpenAI-style SSE stream.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"paperqa/internal/pipeline"
)

// Answerer runs one question/document request and streams events back. The
// returned channel closes after the terminal Done event.
type Answerer interface {
	Answer(ctx context.Context, query, pdfContent string) <-chan pipeline.StreamEvent
}

// Server routes HTTP traffic to the pipeline.
type Server struct {
	answerer Answerer
	origins  []string
	log      *slog.Logger
}

// New creates a Server. Empty origins default to allowing everything.
func New(answerer Answerer, origins []string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{answerer: answerer, origins: origins, log: log}
}

// Routes returns the handler tree with CORS and request logging applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /paper_qa", s.handlePaperQA)
	mux.HandleFunc("GET /health", s.handleHealth)
	return withRequestLog(s.log, withCORS(s.origins, mux))
}

type qaRequest struct {
	Query      string `json:"query"`
	PDFContent string `json:"pdf_content"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","service":"paperqa"}` + "\n"))
}

// writeError emits the JSON error body clients expect: {"detail": "..."}.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func (s *Server) handlePaperQA(w http.ResponseWriter, r *http.Request) {
	var req qaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}
	if strings.TrimSpace(req.PDFContent) == "" {
		writeError(w, http.StatusBadRequest, "PDF content cannot be empty")
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The stream must be drained to its close even after a write error, so
	// the pipeline goroutine always finishes.
	var writeErr error
	for ev := range s.answerer.Answer(r.Context(), req.Query, req.PDFContent) {
		if writeErr != nil {
			continue
		}
		switch e := ev.(type) {
		case pipeline.Content:
			writeErr = sse.content(e.Text)
		case pipeline.Done:
			writeErr = sse.done()
		}
	}
	if writeErr != nil {
		s.log.Debug("stream write aborted", "err", writeErr)
	}
}
