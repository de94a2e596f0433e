package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	slackgo "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/agentrelay/internal/agentcore"
	"github.com/user/agentrelay/internal/slack"
	"github.com/user/agentrelay/internal/types"
)

type sent struct {
	kind    string
	channel string
	ts      string
	text    string
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sent
	failPost  int // fail the first n posts
	failUpd   bool
	postCount int
}

func (m *fakeMessenger) Post(_ context.Context, channel, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postCount++
	if m.postCount <= m.failPost {
		return "", errors.New("channel_not_found")
	}
	m.sent = append(m.sent, sent{kind: "post", channel: channel, text: text})
	return "1700000000.000100", nil
}

func (m *fakeMessenger) Update(_ context.Context, channel, ts, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpd {
		return errors.New("message_not_found")
	}
	m.sent = append(m.sent, sent{kind: "update", channel: channel, ts: ts, text: text})
	return nil
}

func (m *fakeMessenger) last() sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type fakeRuntime struct {
	body     string
	err      error
	sessions []types.SessionID
	requests []agentcore.Request
}

func (f *fakeRuntime) Invoke(_ context.Context, sid types.SessionID, req agentcore.Request) (*agentcore.Response, error) {
	f.sessions = append(f.sessions, sid)
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return agentcore.Parse([]byte(f.body))
}

func messageRecord(id, text string) Record {
	return Record{
		MessageID: id,
		Body:      `{"type":"event_callback","event_id":"` + id + `","event":{"type":"message","user":"U1","channel":"C1","text":"` + text + `","ts":"1.1"}}`,
	}
}

func newTestBridge(rt *fakeRuntime, m *fakeMessenger, opts Options) *Bridge {
	if opts.StatusText == "" {
		opts.StatusText = DefaultStatusText
	}
	return New(rt, m, opts)
}

func TestProcessRecordDeliversNormalizedText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"result text", `{"result":"hello"}`, "hello"},
		{"result content", `{"result":{"content":[{"text":"hi there"}]}}`, "hi there"},
		{"output message", `{"output":{"message":"ok"}}`, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMessenger{}
			b := newTestBridge(&fakeRuntime{body: tt.body}, m, Options{})

			outcome, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "question"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDelivered, outcome)

			require.Len(t, m.sent, 2)
			assert.Equal(t, sent{kind: "post", channel: "C1", text: DefaultStatusText}, m.sent[0])
			assert.Equal(t, sent{kind: "update", channel: "C1", ts: "1700000000.000100", text: tt.want}, m.sent[1])
		})
	}
}

func TestProcessRecordUnknownShape(t *testing.T) {
	m := &fakeMessenger{}
	b := newTestBridge(&fakeRuntime{body: `{"foo": 1}`}, m, Options{})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "q"))
	require.NoError(t, err)
	assert.Equal(t, `{"foo":1}`, m.last().text)
}

func TestProcessRecordRuntimeErrorUpdatesStatus(t *testing.T) {
	m := &fakeMessenger{}
	b := newTestBridge(&fakeRuntime{err: errors.New("ThrottlingException")}, m, Options{})

	outcome, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "q"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeErrorDelivered, outcome)

	got := m.last()
	assert.Equal(t, "update", got.kind)
	assert.Equal(t, ":x: An error occurred: ThrottlingException", got.text)
}

func TestProcessRecordRuntimeErrorWithoutStatusPosts(t *testing.T) {
	m := &fakeMessenger{failPost: 1}
	b := newTestBridge(&fakeRuntime{err: errors.New("boom")}, m, Options{})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "q"))
	require.NoError(t, err)

	require.Len(t, m.sent, 1)
	assert.Equal(t, "post", m.sent[0].kind)
	assert.Contains(t, m.sent[0].text, ":x:")
	assert.Contains(t, m.sent[0].text, "boom")
}

func TestProcessRecordStatusDisabled(t *testing.T) {
	m := &fakeMessenger{}
	b := New(&fakeRuntime{body: `{"result":"hello"}`}, m, Options{})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "q"))
	require.NoError(t, err)
	assert.Equal(t, []sent{{kind: "post", channel: "C1", text: "hello"}}, m.sent)
}

func TestProcessRecordUpdateFailureFallsBackToPost(t *testing.T) {
	m := &fakeMessenger{failUpd: true}
	b := newTestBridge(&fakeRuntime{body: `{"result":"hello"}`}, m, Options{})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "q"))
	require.NoError(t, err)
	assert.Equal(t, sent{kind: "post", channel: "C1", text: "hello"}, m.last())
}

// chatAPI fakes the Slack Web API below slack.Client.
type chatAPI struct {
	posts    int
	updates  int
	failPost int // fail the nth post, 1-based
	failUpd  bool
}

func (a *chatAPI) PostMessageContext(context.Context, string, ...slackgo.MsgOption) (string, string, error) {
	a.posts++
	if a.posts == a.failPost {
		return "", "", errors.New("ratelimited")
	}
	return "C1", "1700000000.000100", nil
}

func (a *chatAPI) UpdateMessageContext(_ context.Context, _, ts string, _ ...slackgo.MsgOption) (string, string, string, error) {
	a.updates++
	if a.failUpd {
		return "", "", "", errors.New("message_not_found")
	}
	return "C1", ts, "", nil
}

func TestProcessRecordLongReplyContinuationFailureNotReposted(t *testing.T) {
	api := &chatAPI{failPost: 2}
	client := slack.New("", slack.WithAPI(api), slack.WithRateLimit(0))
	long := strings.Repeat("a", 4500)
	b := New(&fakeRuntime{body: `{"result":"` + long + `"}`}, client, Options{StatusText: DefaultStatusText})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "q"))
	require.NoError(t, err)
	assert.Equal(t, 1, api.updates)
	assert.Equal(t, 2, api.posts, "status post and one continuation only")
}

func TestProcessRecordLongReplyEditFailureReposts(t *testing.T) {
	api := &chatAPI{failUpd: true}
	client := slack.New("", slack.WithAPI(api), slack.WithRateLimit(0))
	long := strings.Repeat("a", 4500)
	b := New(&fakeRuntime{body: `{"result":"` + long + `"}`}, client, Options{StatusText: DefaultStatusText})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "q"))
	require.NoError(t, err)
	assert.Equal(t, 1, api.updates)
	assert.Equal(t, 3, api.posts)
}

func TestProcessRecordTrace(t *testing.T) {
	m := &fakeMessenger{}
	rt := &fakeRuntime{body: `{"result":{"message":"50","tool_calls":[{"name":"calculator","input":{"expression":"10*5"},"output":"Result: 50"}]}}`}
	b := newTestBridge(rt, m, Options{Verbose: true})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "what is 10*5"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.last().text, ":wrench: *Tool*: `calculator`"))
	assert.True(t, strings.HasSuffix(m.last().text, "\n\n---\n\n50"))
	assert.Equal(t, agentcore.Request{Prompt: "what is 10*5", Verbose: true}, rt.requests[0])
}

func TestProcessRecordFilters(t *testing.T) {
	bodies := map[string]string{
		"bot":        `{"event":{"type":"message","bot_id":"B1","user":"U1","channel":"C1","text":"hi"}}`,
		"self":       `{"event":{"type":"message","user":"UBOT","channel":"C1","text":"hi"}}`,
		"blank":      `{"event":{"type":"message","user":"U1","channel":"C1","text":"   "}}`,
		"no text":    `{"event":{"type":"message","user":"U1","channel":"C1"}}`,
		"non-string": `{"event":{"type":"message","user":"U1","channel":"C1","text":42}}`,
		"edited":     `{"event":{"type":"message","subtype":"message_changed","user":"U1","channel":"C1","text":"hi"}}`,
		"deleted":    `{"event":{"type":"message","subtype":"message_deleted","user":"U1","channel":"C1","text":"hi"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			m := &fakeMessenger{}
			rt := &fakeRuntime{body: `{"result":"x"}`}
			b := newTestBridge(rt, m, Options{BotUserID: "UBOT"})

			outcome, err := b.ProcessRecord(context.Background(), Record{MessageID: "m", Body: body})
			require.NoError(t, err)
			assert.Equal(t, OutcomeFiltered, outcome)
			assert.Empty(t, m.sent)
			assert.Empty(t, rt.sessions)
		})
	}
}

func TestProcessRecordSkipsNonMessage(t *testing.T) {
	for _, body := range []string{`{"type":"event_callback","event":{"type":"app_mention","text":"hi"}}`, `{"type":"event_callback"}`} {
		m := &fakeMessenger{}
		outcome, err := newTestBridge(&fakeRuntime{}, m, Options{}).ProcessRecord(context.Background(), Record{Body: body})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Empty(t, m.sent)
	}
}

func TestProcessRecordMalformedFailsUnderBothPolicies(t *testing.T) {
	for _, p := range []Policy{PolicyNotify, PolicyRetry} {
		b := newTestBridge(&fakeRuntime{}, &fakeMessenger{}, Options{Policy: p})
		_, err := b.ProcessRecord(context.Background(), Record{MessageID: "m", Body: "{oops"})
		assert.ErrorIs(t, err, ErrMalformedRecord, p)
	}
}

func TestSessionIDsDistinct(t *testing.T) {
	rt := &fakeRuntime{body: `{"result":"hello"}`}
	b := newTestBridge(rt, &fakeMessenger{}, Options{})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "a"))
	require.NoError(t, err)
	_, err = b.ProcessRecord(context.Background(), messageRecord("Ev2", "b"))
	require.NoError(t, err)

	require.Len(t, rt.sessions, 2)
	assert.NotEqual(t, rt.sessions[0], rt.sessions[1])
	for _, sid := range rt.sessions {
		assert.GreaterOrEqual(t, len(sid), types.MinSessionIDLength)
		assert.True(t, strings.HasPrefix(string(sid), "slack-C1-U1-"))
	}
}

func TestDuplicateDeliverySuppressed(t *testing.T) {
	rt := &fakeRuntime{body: `{"result":"hello"}`}
	b := newTestBridge(rt, &fakeMessenger{}, Options{})

	_, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "a"))
	require.NoError(t, err)
	outcome, err := b.ProcessRecord(context.Background(), messageRecord("Ev1", "a"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Len(t, rt.sessions, 1)
}

func TestRetryPolicy(t *testing.T) {
	m := &fakeMessenger{}
	rt := &fakeRuntime{err: errors.New("boom")}
	b := newTestBridge(rt, m, Options{Policy: PolicyRetry})

	rec := messageRecord("Ev1", "a")
	rec.ReceiveCount = 2
	outcome, err := b.ProcessRecord(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, OutcomeErrorDelivered, outcome)
	assert.Equal(t, ":x: An error occurred: boom (attempt 2)", m.last().text)

	// A failed attempt must not be remembered as delivered.
	rt.err = nil
	rt.body = `{"result":"ok"}`
	outcome, err = b.ProcessRecord(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
}

func TestHandleBatchContinuesPastFailures(t *testing.T) {
	m := &fakeMessenger{}
	b := newTestBridge(&fakeRuntime{body: `{"result":"hello"}`}, m, Options{})

	failed := b.HandleBatch(context.Background(), []Record{
		{MessageID: "bad", Body: "not json"},
		messageRecord("good", "q"),
	})
	assert.Equal(t, []string{"bad"}, failed)
	assert.Equal(t, "hello", m.last().text)
}

func TestHandleBatchPolicies(t *testing.T) {
	records := []Record{messageRecord("m1", "q")}

	notify := newTestBridge(&fakeRuntime{err: errors.New("boom")}, &fakeMessenger{}, Options{Policy: PolicyNotify})
	assert.Empty(t, notify.HandleBatch(context.Background(), records))

	retry := newTestBridge(&fakeRuntime{err: errors.New("boom")}, &fakeMessenger{}, Options{Policy: PolicyRetry})
	assert.Equal(t, []string{"m1"}, retry.HandleBatch(context.Background(), records))
}

func TestHandleSQS(t *testing.T) {
	b := newTestBridge(&fakeRuntime{err: errors.New("boom")}, &fakeMessenger{}, Options{Policy: PolicyRetry})

	resp, err := b.HandleSQS(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: messageRecord("m1", "q").Body, Attributes: map[string]string{"ApproximateReceiveCount": "1"}},
		{MessageId: "m2", Body: `{"type":"event_callback"}`},
	}})
	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m1"}}, resp.BatchItemFailures)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyNotify, p)

	p, err = ParsePolicy("retry")
	require.NoError(t, err)
	assert.Equal(t, PolicyRetry, p)

	_, err = ParsePolicy("drop")
	assert.Error(t, err)
}
