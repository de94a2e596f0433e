package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage(t *testing.T) {
	short := "hello"
	parts := splitMessage(short)
	assert.Equal(t, []string{"hello"}, parts)
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", maxSlackMessage+100)
	parts := splitMessage(long)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], maxSlackMessage)
	assert.Len(t, parts[1], 100)
}

func TestSplitMessagePrefersNewline(t *testing.T) {
	text := strings.Repeat("x", 3000) + "\n" + strings.Repeat("y", 2000)
	parts := splitMessage(text)
	require.Len(t, parts, 2)
	assert.Equal(t, strings.Repeat("x", 3000), parts[0])
	assert.Equal(t, strings.Repeat("y", 2000), parts[1])
}

func TestSplitMessageRunes(t *testing.T) {
	text := strings.Repeat("휴", maxSlackMessage*2+1)
	parts := splitMessage(text)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), maxSlackMessage)
		assert.True(t, utf8.ValidString(p))
	}
}

// slackServer fakes the two chat endpoints and records form posts.
type slackServer struct {
	mu       sync.Mutex
	calls    []string
	texts    []string
	unfurls  []string
	failPost bool
	failUpd  bool
}

func (s *slackServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		s.record("post", r)
		if s.failPost {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": "1700000000.000100"})
	})
	mux.HandleFunc("/chat.update", func(w http.ResponseWriter, r *http.Request) {
		s.record("update", r)
		if s.failUpd {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "message_not_found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": r.FormValue("ts"), "text": r.FormValue("text")})
	})
	return mux
}

func (s *slackServer) record(kind string, r *http.Request) {
	r.ParseForm()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, kind)
	s.texts = append(s.texts, r.FormValue("text"))
	s.unfurls = append(s.unfurls, r.FormValue("unfurl_links")+","+r.FormValue("unfurl_media"))
}

func newTestClient(t *testing.T, s *slackServer) *Client {
	t.Helper()
	srv := httptest.NewServer(s.handler())
	t.Cleanup(srv.Close)
	return New("xoxb-test", WithAPIURL(srv.URL+"/"), WithRateLimit(0))
}

func TestClientPost(t *testing.T) {
	s := &slackServer{}
	c := newTestClient(t, s)

	ts, err := c.Post(context.Background(), "C123", "**hello**")
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000100", ts)
	assert.Equal(t, []string{"post"}, s.calls)
	assert.Equal(t, []string{"*hello*"}, s.texts)
	assert.Equal(t, []string{"false,false"}, s.unfurls)
}

func TestClientPostSplitsLongText(t *testing.T) {
	s := &slackServer{}
	c := newTestClient(t, s)

	_, err := c.Post(context.Background(), "C123", strings.Repeat("a", maxSlackMessage+1))
	require.NoError(t, err)
	assert.Equal(t, []string{"post", "post"}, s.calls)
}

func TestClientPostError(t *testing.T) {
	s := &slackServer{failPost: true}
	c := newTestClient(t, s)

	_, err := c.Post(context.Background(), "C123", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestClientUpdate(t *testing.T) {
	s := &slackServer{}
	c := newTestClient(t, s)

	err := c.Update(context.Background(), "C123", "1700000000.000100", "done")
	require.NoError(t, err)
	assert.Equal(t, []string{"update"}, s.calls)
	assert.Equal(t, []string{"done"}, s.texts)
	assert.Equal(t, []string{"false,false"}, s.unfurls)
}

func TestClientUpdateLongPostsContinuation(t *testing.T) {
	s := &slackServer{}
	c := newTestClient(t, s)

	err := c.Update(context.Background(), "C123", "1.2", strings.Repeat("b", maxSlackMessage*2))
	require.NoError(t, err)
	assert.Equal(t, []string{"update", "post"}, s.calls)
}

func TestClientUpdateError(t *testing.T) {
	s := &slackServer{failUpd: true}
	c := newTestClient(t, s)

	err := c.Update(context.Background(), "C123", "1.2", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message_not_found")
	assert.False(t, errors.Is(err, ErrPartialDelivery))
}

func TestClientUpdateContinuationError(t *testing.T) {
	s := &slackServer{failPost: true}
	c := newTestClient(t, s)

	err := c.Update(context.Background(), "C123", "1.2", strings.Repeat("b", maxSlackMessage+10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialDelivery)
	assert.Contains(t, err.Error(), "channel_not_found")
	assert.Equal(t, []string{"update", "post"}, s.calls)
}

func TestClientNotConfigured(t *testing.T) {
	c := New("")

	_, err := c.Post(context.Background(), "C1", "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.Update(context.Background(), "C1", "1.2", "hi"), ErrNotConfigured)
}

type cancelAPI struct{ called bool }

func (a *cancelAPI) PostMessageContext(context.Context, string, ...slack.MsgOption) (string, string, error) {
	a.called = true
	return "C1", "1.1", nil
}

func (a *cancelAPI) UpdateMessageContext(context.Context, string, string, ...slack.MsgOption) (string, string, string, error) {
	a.called = true
	return "C1", "1.1", "", nil
}

func TestClientRateLimitHonorsContext(t *testing.T) {
	api := &cancelAPI{}
	c := New("", WithAPI(api), WithRateLimit(0.001))

	// The burst allows the first calls through.
	_, err := c.Post(context.Background(), "C1", "one")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, err = c.Post(ctx, "C1", "again")
		if err != nil {
			break
		}
	}
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotConfigured))
}
