// internal/httpapi/server.go
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/user/eventflow/internal/processor"
	"github.com/user/eventflow/internal/types"
)

// Server is the HTTP surface over the batch processor.
type Server struct {
	proc *processor.Processor
	mux  *http.ServeMux
}

// NewServer creates a Server for the given processor.
func NewServer(proc *processor.Processor) *Server {
	s := &Server{
		proc: proc,
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /events", s.handleEvent)
	s.mux.HandleFunc("POST /events/batch", s.handleBatch)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev types.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	id, err := s.proc.SubmitEvent(&ev)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"eventId":  string(id),
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var events []*types.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		http.Error(w, `{"error":"payload must be a JSON array of events"}`, http.StatusBadRequest)
		return
	}
	if len(events) == 0 {
		http.Error(w, `{"error":"events array must not be empty"}`, http.StatusBadRequest)
		return
	}

	batchID, count, err := s.proc.SubmitBatch(events)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batchId":    string(batchID),
		"eventCount": count,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.Status())
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	slog.Error("intake failed", "error", err)
	http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
