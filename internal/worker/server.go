// Package worker is the agent process deployed into the AgentCore runtime.
// It serves the runtime's HTTP contract and answers each invocation with a
// bounded tool-calling loop.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"
)

// sessionHeader carries the runtimeSessionId of the invocation.
const sessionHeader = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

const defaultPrompt = "Hello"

// Runner answers one prompt.
type Runner interface {
	Run(ctx context.Context, prompt string) (*Result, error)
}

// Server implements GET /ping and POST /invocations.
type Server struct {
	agent Runner
	mux   *http.ServeMux
}

// NewServer creates a Server around agent.
func NewServer(agent Runner) *Server {
	s := &Server{agent: agent, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /ping", s.handlePing)
	s.mux.HandleFunc("POST /invocations", s.handleInvocations)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "Healthy"})
}

type invocationRequest struct {
	Prompt  *string `json:"prompt"`
	Verbose bool    `json:"verbose"`
}

type verboseResult struct {
	Message   string      `json:"message"`
	ToolCalls []ToolTrace `json:"tool_calls"`
	Thinking  string      `json:"thinking,omitempty"`
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	var req invocationRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	prompt := defaultPrompt
	if req.Prompt != nil {
		prompt = *req.Prompt
	}

	slog.Info("invocation", "session_id", r.Header.Get(sessionHeader), "verbose", req.Verbose, "prompt", preview(prompt, 100))

	res, err := s.agent.Run(r.Context(), prompt)
	if err != nil {
		slog.Error("invocation failed", "session_id", r.Header.Get(sessionHeader), "error", err)
		writeError(w, err)
		return
	}
	slog.Info("invocation completed", "chars", utf8.RuneCountInString(res.Message), "iterations", res.Metrics.Iterations, "tool_calls", res.Metrics.ToolCalls)

	if !req.Verbose {
		writeJSON(w, map[string]any{"result": res.Message})
		return
	}
	calls := res.ToolCalls
	if calls == nil {
		calls = []ToolTrace{}
	}
	writeJSON(w, map[string]any{
		"result":  verboseResult{Message: res.Message, ToolCalls: calls, Thinking: res.Thinking},
		"metrics": res.Metrics,
	})
}

// writeError replies 200 with the error as the result text, which the
// bridge shows to the user verbatim.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, map[string]string{"result": "Error: " + err.Error()})
}

// writeJSON encodes v before writing anything, so an encoding failure still
// produces an error reply.
func writeJSON(w http.ResponseWriter, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("encode response", "error", err)
		buf.Reset()
		enc.Encode(map[string]string{"result": "Error: encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
