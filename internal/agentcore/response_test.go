package agentcore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind Kind
		wantText string
	}{
		{"result text", `{"result":"hello"}`, KindResultText, "hello"},
		{"result message", `{"result":{"message":"from message"}}`, KindResultMessage, "from message"},
		{"result content", `{"result":{"content":[{"text":"hi there"}]}}`, KindResultContent, "hi there"},
		{"result content multi", `{"result":{"content":[{"text":"a"},{"toolUse":{}},{"text":"b"}]}}`, KindResultContent, "a\nb"},
		{"result strands message", `{"result":{"role":"assistant","message":{"role":"assistant","content":[{"text":"nested"}]}}}`, KindResultMessage, "nested"},
		{"result role content", `{"result":{"role":"assistant","content":[{"text":"strands"}]}}`, KindResultContent, "strands"},
		{"output message", `{"output":{"message":"ok"}}`, KindOutputMessage, "ok"},
		{"output text", `{"output":"plain output"}`, KindOutputText, "plain output"},
		{"message", `{"message":"top level"}`, KindMessage, "top level"},
		{"bare json string", `"just a string"`, KindPlainText, "just a string"},
		{"non-json", `plain text reply`, KindPlainText, "plain text reply"},
		{"non-ascii", `{"result":"연차 수당은 통상임금의 100%입니다"}`, KindResultText, "연차 수당은 통상임금의 100%입니다"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Parse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, resp.Kind, "kind %s", resp.Kind)
			assert.Equal(t, tt.wantText, resp.Text())
		})
	}
}

func TestParseUnknownFallsBackToJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unrecognized object", `{"foo": 1}`, `{"foo":1}`},
		{"result number", `{"result": 42}`, `42`},
		{"result object without text", `{"result": {"stop_reason": "end_turn"}}`, `{"stop_reason":"end_turn"}`},
		{"result empty content", `{"result": {"content": []}}`, `{"content":[]}`},
		{"output object without message", `{"output": {"text": "x"}}`, `{"text":"x"}`},
		{"json array", `[1, 2]`, `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Parse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, KindUnknown, resp.Kind)
			assert.Equal(t, tt.want, resp.Text())
			assert.NotEmpty(t, resp.Display())
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = Parse([]byte{0xff, 0xfe, '{', '}'})
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestTextNeverEmpty(t *testing.T) {
	resp, err := Parse([]byte(`{"result":"   "}`))
	require.NoError(t, err)
	assert.Equal(t, EmptyReply, resp.Text())
}

func TestParseMetrics(t *testing.T) {
	resp, err := Parse([]byte(`{"result":"hi","metrics":{"latency_ms":120}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"latency_ms":120}`, string(resp.Metrics))

	resp, err = Parse([]byte(`{"result":"hi"}`))
	require.NoError(t, err)
	assert.Nil(t, resp.Metrics)
}

func TestDisplayWithTrace(t *testing.T) {
	body := `{"result":{"message":"The answer is 50.","tool_calls":[
		{"name":"calculator","input":{"expression":"10 * 5"},"output":"Result: 50"},
		{"input":{},"output":""}
	],"thinking":"multiply the two numbers"}}`

	resp, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, resp.Trace.ToolCalls, 2)

	want := strings.Join([]string{
		":wrench: *Tool*: `calculator`",
		`   Input: {"expression":"10 * 5"}`,
		"   Output: Result: 50",
		":wrench: *Tool*: `unknown`",
		":thought_balloon: *Thinking*: multiply the two numbers",
	}, "\n\n") + "\n\n---\n\nThe answer is 50."
	assert.Equal(t, want, resp.Display())
}

func TestDisplayWithoutTrace(t *testing.T) {
	resp, err := Parse([]byte(`{"result":{"message":"plain"}}`))
	require.NoError(t, err)
	assert.True(t, resp.Trace.Empty())
	assert.Equal(t, "plain", resp.Display())
}

func TestTraceTruncatesOutput(t *testing.T) {
	long := strings.Repeat("가", 250)
	body := `{"result":{"message":"done","tool_calls":[{"name":"search_documents","output":"` + long + `"}]}}`

	resp, err := Parse([]byte(body))
	require.NoError(t, err)
	lines := resp.Trace.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "   Output: "+strings.Repeat("가", 200)+"...", lines[1])
}

func TestTraceNonStringOutput(t *testing.T) {
	resp, err := Parse([]byte(`{"result":{"message":"m","tool_calls":[{"name":"t","output":{"rows":2}}]}}`))
	require.NoError(t, err)
	require.Len(t, resp.Trace.ToolCalls, 1)
	assert.Equal(t, `{"rows":2}`, resp.Trace.ToolCalls[0].Output)
}

func TestTraceIgnoresMalformedToolCalls(t *testing.T) {
	resp, err := Parse([]byte(`{"result":{"message":"m","tool_calls":"oops"}}`))
	require.NoError(t, err)
	assert.True(t, resp.Trace.Empty())
	assert.Equal(t, "m", resp.Display())
}
