package agentcore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind tags which response shape the Agent Runtime produced.
type Kind int

const (
	// KindUnknown carries a value of no recognized shape; it is displayed
	// as compact JSON.
	KindUnknown Kind = iota
	KindResultText
	KindResultMessage
	KindResultContent
	KindOutputMessage
	KindOutputText
	KindMessage
	// KindPlainText is a body that was not a JSON object: a bare JSON string
	// or non-JSON text.
	KindPlainText
)

func (k Kind) String() string {
	switch k {
	case KindResultText:
		return "result_text"
	case KindResultMessage:
		return "result_message"
	case KindResultContent:
		return "result_content"
	case KindOutputMessage:
		return "output_message"
	case KindOutputText:
		return "output_text"
	case KindMessage:
		return "message"
	case KindPlainText:
		return "plain_text"
	default:
		return "unknown"
	}
}

// EmptyReply is displayed when the runtime answered with blank text.
const EmptyReply = "_(the agent returned an empty response)_"

// traceLimit bounds tool input, tool output and thinking excerpts.
const traceLimit = 200

var (
	ErrEmptyResponse = errors.New("agent runtime returned an empty response")
	ErrInvalidUTF8   = errors.New("agent runtime response is not valid UTF-8")
)

// Response is a normalized Agent Runtime reply.
type Response struct {
	Kind Kind
	// Raw is the value the display text is derived from. For KindUnknown it
	// is the whole value that failed to match a shape.
	Raw     json.RawMessage
	Trace   Trace
	Metrics json.RawMessage

	text string
}

// Trace is the optional record of what the agent did on the way to its
// answer.
type Trace struct {
	ToolCalls []ToolCall
	Thinking  string
}

// ToolCall is one tool invocation reported by the runtime.
type ToolCall struct {
	Name   string
	Input  json.RawMessage
	Output string
}

// Empty reports whether the trace has nothing to show.
func (t Trace) Empty() bool {
	return len(t.ToolCalls) == 0 && t.Thinking == ""
}

// Parse decodes a raw runtime body. It only fails for empty bodies and
// invalid UTF-8; everything else maps to some variant.
func Parse(body []byte) (*Response, error) {
	if !utf8.Valid(body) {
		return nil, ErrInvalidUTF8
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrEmptyResponse
	}
	if !json.Valid(trimmed) {
		return &Response{Kind: KindPlainText, text: string(body)}, nil
	}

	var obj map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &obj) != nil {
		if s, ok := asString(trimmed); ok {
			return &Response{Kind: KindPlainText, Raw: trimmed, text: s}, nil
		}
		return &Response{Kind: KindUnknown, Raw: trimmed}, nil
	}

	resp := &Response{Metrics: obj["metrics"]}
	switch {
	case has(obj, "result"):
		resp.classifyResult(obj["result"])
	case has(obj, "output"):
		resp.classifyOutput(obj["output"])
	case has(obj, "message"):
		resp.Kind = KindMessage
		resp.Raw = obj["message"]
		resp.text = textOf(obj["message"])
	default:
		resp.Kind = KindUnknown
		resp.Raw = trimmed
	}
	return resp, nil
}

func (r *Response) classifyResult(raw json.RawMessage) {
	r.Raw = raw
	if s, ok := asString(raw); ok {
		r.Kind = KindResultText
		r.text = s
		return
	}
	obj, ok := asObject(raw)
	if !ok {
		r.Kind = KindUnknown
		return
	}
	r.Trace = parseTrace(obj)
	if has(obj, "message") {
		r.Kind = KindResultMessage
		r.text = textOf(obj["message"])
		return
	}
	if text, ok := contentText(obj["content"]); ok {
		r.Kind = KindResultContent
		r.text = text
		return
	}
	r.Kind = KindUnknown
}

func (r *Response) classifyOutput(raw json.RawMessage) {
	r.Raw = raw
	if s, ok := asString(raw); ok {
		r.Kind = KindOutputText
		r.text = s
		return
	}
	if obj, ok := asObject(raw); ok && has(obj, "message") {
		r.Kind = KindOutputMessage
		r.text = textOf(obj["message"])
		return
	}
	r.Kind = KindUnknown
}

// Text maps the variant to the answer shown in the channel. It never
// returns an empty string.
func (r *Response) Text() string {
	text := r.text
	if r.Kind == KindUnknown {
		text = compact(r.Raw)
	}
	if strings.TrimSpace(text) == "" {
		return EmptyReply
	}
	return text
}

// Display is Text preceded by the trace lines and a divider when a trace is
// present.
func (r *Response) Display() string {
	lines := r.Trace.Lines()
	if len(lines) == 0 {
		return r.Text()
	}
	return strings.Join(lines, "\n\n") + "\n\n---\n\n" + r.Text()
}

// Lines renders the trace as short annotated lines.
func (t Trace) Lines() []string {
	var lines []string
	for _, tc := range t.ToolCalls {
		lines = append(lines, fmt.Sprintf(":wrench: *Tool*: `%s`", tc.Name))
		if in := compact(tc.Input); in != "" && in != "{}" && in != "null" && in != `""` {
			lines = append(lines, "   Input: "+truncate(in, traceLimit))
		}
		if tc.Output != "" {
			lines = append(lines, "   Output: "+truncate(tc.Output, traceLimit))
		}
	}
	if t.Thinking != "" {
		lines = append(lines, ":thought_balloon: *Thinking*: "+truncate(t.Thinking, traceLimit))
	}
	return lines
}

func parseTrace(result map[string]json.RawMessage) Trace {
	var t Trace
	var calls []map[string]json.RawMessage
	if raw, ok := result["tool_calls"]; ok && json.Unmarshal(raw, &calls) == nil {
		for _, c := range calls {
			name, ok := asString(c["name"])
			if !ok || name == "" {
				name = "unknown"
			}
			out, ok := asString(c["output"])
			if !ok {
				out = compact(c["output"])
				if out == "null" {
					out = ""
				}
			}
			t.ToolCalls = append(t.ToolCalls, ToolCall{Name: name, Input: c["input"], Output: out})
		}
	}
	if s, ok := asString(result["thinking"]); ok {
		t.Thinking = s
	}
	return t
}

// textOf resolves a message value: a string, a message object with a
// content list, or anything else as compact JSON.
func textOf(raw json.RawMessage) string {
	if s, ok := asString(raw); ok {
		return s
	}
	if obj, ok := asObject(raw); ok {
		if text, ok := contentText(obj["content"]); ok {
			return text
		}
	}
	return compact(raw)
}

// contentText joins the text blocks of a content list. Blocks without a
// string text field (tool use, reasoning) are skipped.
func contentText(raw json.RawMessage) (string, bool) {
	var blocks []map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &blocks) != nil {
		return "", false
	}
	var parts []string
	for _, b := range blocks {
		if s, ok := asString(b["text"]); ok {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

func has(obj map[string]json.RawMessage, key string) bool {
	_, ok := obj[key]
	return ok
}

func asString(raw json.RawMessage) (string, bool) {
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

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
