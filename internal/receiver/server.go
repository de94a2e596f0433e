package receiver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

const maxBodyBytes = 1 << 20

// Server exposes the Handler over plain HTTP for local and container use.
type Server struct {
	handler *Handler
	mux     *http.ServeMux
}

// NewServer creates a Server. Slack events are accepted on POST
// /slack/events and on POST / so either request URL works.
func NewServer(handler *Handler) *Server {
	s := &Server{handler: handler, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /slack/events", s.handleEvents)
	s.mux.HandleFunc("POST /{$}", s.handleEvents)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("read slack request", "error", err)
		writeResponse(w, errorResponse(http.StatusBadRequest, err))
		return
	}
	writeResponse(w, s.handler.Handle(r.Context(), r.Header, body))
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.Status)
	w.Write(encodeBody(resp.Body))
}
