// Package bridge consumes queued Slack events, invokes the agent runtime for
// each message and posts the normalized reply back to the channel.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/user/agentrelay/internal/agentcore"
	"github.com/user/agentrelay/internal/slack"
	"github.com/user/agentrelay/internal/types"
)

// DefaultStatusText is the placeholder shown while the runtime works.
const DefaultStatusText = ":thinking_face: Thinking..."

// ErrMalformedRecord marks a queue record whose body is not JSON.
var ErrMalformedRecord = errors.New("malformed queue record")

// Record is one queue delivery.
type Record struct {
	MessageID    string
	Body         string
	ReceiveCount int
}

// Invoker calls the agent runtime.
type Invoker interface {
	Invoke(ctx context.Context, sessionID types.SessionID, req agentcore.Request) (*agentcore.Response, error)
}

// Outcome is the terminal state of a processed record.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeFiltered
	OutcomeDuplicate
	OutcomeDelivered
	OutcomeErrorDelivered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFiltered:
		return "filtered-out"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeErrorDelivered:
		return "error-delivered"
	default:
		return "skipped"
	}
}

// Options configures a Bridge.
type Options struct {
	// BotUserID is the relay's own Slack user; its messages are ignored.
	BotUserID string
	// StatusText is posted before the runtime call. Empty disables it.
	StatusText string
	// Verbose asks the runtime to include its tool trace.
	Verbose   bool
	Policy    Policy
	DedupSize int
}

// Bridge relays queued messages to the runtime and back to Slack.
type Bridge struct {
	runtime Invoker
	slack   slack.Messenger
	opts    Options
	seen    *dedup
}

// New creates a Bridge. Both clients are required.
func New(runtime Invoker, messenger slack.Messenger, opts Options) *Bridge {
	if opts.Policy == "" {
		opts.Policy = PolicyNotify
	}
	return &Bridge{
		runtime: runtime,
		slack:   messenger,
		opts:    opts,
		seen:    newDedup(opts.DedupSize),
	}
}

// HandleBatch processes records in order and returns the message ids of the
// ones that failed. A failure does not stop the batch.
func (b *Bridge) HandleBatch(ctx context.Context, records []Record) []string {
	slog.Info("processing queue batch", "records", len(records))
	var failed []string
	for _, r := range records {
		outcome, err := b.ProcessRecord(ctx, r)
		if err != nil {
			slog.Error("record failed", "message_id", r.MessageID, "outcome", outcome, "error", err)
			failed = append(failed, r.MessageID)
			continue
		}
		slog.Debug("record processed", "message_id", r.MessageID, "outcome", outcome)
	}
	return failed
}

// ProcessRecord runs one record through the relay. A non-nil error means
// the queue should redeliver the record.
func (b *Bridge) ProcessRecord(ctx context.Context, r Record) (Outcome, error) {
	var env types.InboundEvent
	if err := json.Unmarshal([]byte(r.Body), &env); err != nil {
		return OutcomeSkipped, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if env.Event == nil || env.Event.Type != "message" {
		slog.Debug("skipping non-message event", "type", env.Type)
		return OutcomeSkipped, nil
	}

	ev := env.Event
	text, ok := b.accept(ev)
	if !ok {
		return OutcomeFiltered, nil
	}

	key := env.DedupKey()
	if b.seen.Contains(key) {
		slog.Info("skipping duplicate delivery", "key", key)
		return OutcomeDuplicate, nil
	}

	slog.Info("processing message", "user", ev.User, "channel", ev.Channel, "text", preview(text, 100))

	statusTS := b.postStatus(ctx, ev.Channel)
	reply, runErr := b.ask(ctx, ev, text)
	outcome := OutcomeDelivered
	if runErr != nil {
		slog.Error("agent runtime call failed", "channel", ev.Channel, "error", runErr)
		reply = b.errorReply(runErr, r.ReceiveCount)
		outcome = OutcomeErrorDelivered
	}

	if err := b.deliver(ctx, ev.Channel, statusTS, reply); err != nil {
		if b.opts.Policy == PolicyRetry {
			return outcome, fmt.Errorf("deliver reply: %w", err)
		}
		slog.Error("reply not delivered", "channel", ev.Channel, "error", err)
	}

	if runErr != nil && b.opts.Policy == PolicyRetry {
		return outcome, runErr
	}
	b.seen.Add(key)
	return outcome, nil
}

func (b *Bridge) accept(ev *types.MessageEvent) (string, bool) {
	if ev.FromBot() {
		slog.Debug("skipping bot message", "channel", ev.Channel)
		return "", false
	}
	if b.opts.BotUserID != "" && ev.User == b.opts.BotUserID {
		slog.Debug("skipping own message", "channel", ev.Channel)
		return "", false
	}
	if ev.IsEdit() {
		slog.Debug("skipping message subtype", "subtype", ev.Subtype)
		return "", false
	}
	text, ok := ev.PromptText()
	if !ok {
		slog.Debug("skipping empty message", "channel", ev.Channel)
		return "", false
	}
	return text, true
}

// postStatus posts the placeholder and returns its ts, or "" when disabled
// or the post failed.
func (b *Bridge) postStatus(ctx context.Context, channel string) string {
	if b.opts.StatusText == "" {
		return ""
	}
	ts, err := b.slack.Post(ctx, channel, b.opts.StatusText)
	if err != nil {
		slog.Warn("status message not posted", "channel", channel, "error", err)
		return ""
	}
	return ts
}

func (b *Bridge) ask(ctx context.Context, ev *types.MessageEvent, text string) (string, error) {
	sid := types.NewSessionID(ev.Channel, ev.User)
	slog.Info("invoking agent runtime", "session_id", sid)

	resp, err := b.runtime.Invoke(ctx, sid, agentcore.Request{Prompt: text, Verbose: b.opts.Verbose})
	if err != nil {
		return "", err
	}
	slog.Info("agent runtime responded", "session_id", sid, "kind", resp.Kind)
	if len(resp.Metrics) > 0 {
		slog.Info("agent runtime metrics", "session_id", sid, "metrics", string(resp.Metrics))
	}
	return resp.Display(), nil
}

// deliver replaces the status message when there is one and falls back to
// a new post if the edit fails. A failed continuation after a successful
// edit is not re-posted.
func (b *Bridge) deliver(ctx context.Context, channel, statusTS, text string) error {
	if statusTS != "" {
		err := b.slack.Update(ctx, channel, statusTS, text)
		if err == nil || errors.Is(err, slack.ErrPartialDelivery) {
			return err
		}
		slog.Warn("status update failed, posting instead", "channel", channel, "ts", statusTS, "error", err)
	}
	_, err := b.slack.Post(ctx, channel, text)
	return err
}

func (b *Bridge) errorReply(err error, receiveCount int) string {
	msg := ":x: An error occurred: " + err.Error()
	if b.opts.Policy == PolicyRetry && receiveCount > 0 {
		msg += fmt.Sprintf(" (attempt %d)", receiveCount)
	}
	return msg
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
