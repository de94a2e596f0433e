// Package receiver acknowledges Slack Events API requests and forwards
// message events to the queue. Everything slow happens downstream; the
// handler does one queue send at most.
package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/slack-go/slack/slackevents"

	"github.com/user/agentrelay/internal/slack"
	"github.com/user/agentrelay/internal/types"
)

// ErrChallengeMissing is returned for a url_verification request without a
// string challenge.
var ErrChallengeMissing = errors.New("url_verification without challenge")

// Enqueuer sends one message body to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, body []byte) error
}

// Response is the status and JSON body returned to Slack.
type Response struct {
	Status int
	Body   any
}

var (
	okMessage = map[string]any{"message": "OK"}
	okTrue    = map[string]any{"ok": true}
)

func errorResponse(status int, err error) Response {
	return Response{Status: status, Body: map[string]string{"error": err.Error()}}
}

// Handler holds the receiver dependencies. A nil queue means the queue URL
// is not configured: events are logged and dropped.
type Handler struct {
	queue    Enqueuer
	verifier *slack.Verifier
}

// New creates a Handler. queue and verifier may both be nil.
func New(queue Enqueuer, verifier *slack.Verifier) *Handler {
	return &Handler{queue: queue, verifier: verifier}
}

// Handle processes one inbound request body. It never returns an error;
// failures are expressed as the response.
func (h *Handler) Handle(ctx context.Context, header http.Header, body []byte) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("receiver panic", "panic", r)
			resp = errorResponse(http.StatusInternalServerError, fmt.Errorf("%v", r))
		}
	}()

	if h.verifier.Enabled() {
		if err := h.verifier.Verify(header, body); err != nil {
			slog.Warn("rejected slack request", "error", err)
			return errorResponse(http.StatusUnauthorized, slack.ErrInvalidSignature)
		}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return Response{Status: http.StatusOK, Body: okMessage}
	}

	var env types.InboundEvent
	if err := json.Unmarshal(body, &env); err != nil {
		slog.Error("invalid slack payload", "error", err)
		return errorResponse(http.StatusInternalServerError, err)
	}

	switch env.Type {
	case slackevents.URLVerification:
		challenge, ok := env.ChallengeToken()
		if !ok {
			slog.Error("url verification failed", "error", ErrChallengeMissing)
			return errorResponse(http.StatusInternalServerError, ErrChallengeMissing)
		}
		slog.Info("answered url verification challenge")
		return Response{Status: http.StatusOK, Body: map[string]string{"challenge": challenge}}

	case slackevents.CallbackEvent:
		if env.Event != nil && env.Event.FromBot() {
			slog.Debug("ignoring bot message", "channel", env.Event.Channel)
			return Response{Status: http.StatusOK, Body: okTrue}
		}
		h.forward(ctx, body, &env)
		return Response{Status: http.StatusOK, Body: okTrue}
	}

	return Response{Status: http.StatusOK, Body: okMessage}
}

// forward enqueues the compacted envelope. Errors are logged so Slack still
// gets its acknowledgment and does not retry the webhook.
func (h *Handler) forward(ctx context.Context, body []byte, env *types.InboundEvent) {
	if h.queue == nil {
		slog.Error("queue url not configured, dropping event", "event_id", env.EventID)
		return
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		slog.Error("compact payload", "event_id", env.EventID, "error", err)
		return
	}
	if err := h.queue.Enqueue(ctx, buf.Bytes()); err != nil {
		slog.Error("enqueue slack event", "event_id", env.EventID, "error", err)
		return
	}
	slog.Info("slack event forwarded to queue", "event_id", env.EventID, "team_id", env.TeamID)
}

// encodeBody marshals a response body without HTML escaping so challenge
// tokens and error text are echoed verbatim.
func encodeBody(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return []byte(`{"error":"encode response"}`)
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
