// internal/types/models.go
package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Message subtypes that describe edits to an earlier message rather than a
// new one.
const (
	SubtypeMessageChanged = "message_changed"
	SubtypeMessageDeleted = "message_deleted"
)

// InboundEvent is the outer envelope Slack posts to the Events API endpoint.
// Only the fields the relay reads are decoded; the queue carries the
// raw request bytes.
type InboundEvent struct {
	Type      string          `json:"type"`
	Challenge json.RawMessage `json:"challenge,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	Event     *MessageEvent   `json:"event,omitempty"`
}

// MessageEvent is the inner event of an event_callback envelope.
type MessageEvent struct {
	Type    string          `json:"type"`
	User    string          `json:"user,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Text    json.RawMessage `json:"text,omitempty"`
	TS      string          `json:"ts,omitempty"`
	BotID   json.RawMessage `json:"bot_id,omitempty"`
	Subtype string          `json:"subtype,omitempty"`
}

// ChallengeToken returns the url_verification challenge when it is a JSON
// string.
func (e *InboundEvent) ChallengeToken() (string, bool) {
	return jsonString(e.Challenge)
}

// DedupKey identifies the inbound event across redeliveries. Slack's
// event_id is preferred; channel and message ts are the fallback.
func (e *InboundEvent) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	if e.Event == nil || e.Event.TS == "" {
		return ""
	}
	return e.Event.Channel + ":" + e.Event.TS
}

// FromBot reports whether the event carries a bot identity marker. Any
// non-null, non-empty value counts.
func (m *MessageEvent) FromBot() bool {
	raw := bytes.TrimSpace(m.BotID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return false
	}
	if s, ok := jsonString(raw); ok {
		return s != ""
	}
	return true
}

// PromptText returns the message text if it exists, is a JSON string, and is
// not blank after trimming.
func (m *MessageEvent) PromptText() (string, bool) {
	s, ok := jsonString(m.Text)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// IsEdit reports whether the subtype marks an edit or delete of an earlier
// message.
func (m *MessageEvent) IsEdit() bool {
	return m.Subtype == SubtypeMessageChanged || m.Subtype == SubtypeMessageDeleted
}

func jsonString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
