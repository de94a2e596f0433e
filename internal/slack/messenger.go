// Package slack sends and edits channel messages through the Slack Web API
// and verifies inbound Events API requests.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// maxSlackMessage is the longest text sent in one chat.postMessage or
// chat.update call; longer replies are split.
const maxSlackMessage = 4000

// maxTrackedChannels bounds the per-channel limiter cache.
const maxTrackedChannels = 1024

// ErrNotConfigured is returned by every call when no bot token is set.
var ErrNotConfigured = errors.New("slack bot token not configured")

// ErrPartialDelivery is returned by Update when the edited message was
// replaced but a continuation chunk could not be posted.
var ErrPartialDelivery = errors.New("reply partially delivered")

// Messenger posts new messages and edits existing ones.
type Messenger interface {
	// Post sends text to channel and returns the ts handle of the first
	// message posted.
	Post(ctx context.Context, channel, text string) (string, error)
	// Update replaces the message identified by ts. An error wrapping
	// ErrPartialDelivery means the edit itself succeeded.
	Update(ctx context.Context, channel, ts, text string) error
}

// API is the subset of slack.Client used here.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// Client is the Slack Messenger. Link and media unfurling are disabled on
// every outbound call.
type Client struct {
	api      API
	apiURL   string
	perSec   float64
	limiters *lru.Cache[string, *rate.Limiter]
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outbound calls per channel. A value <= 0 disables
// limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.perSec = perSecond }
}

// WithAPI replaces the Slack API client, typically with a fake in tests.
func WithAPI(api API) Option {
	return func(c *Client) { c.api = api }
}

// WithAPIURL points the Web API client at url instead of slack.com.
func WithAPIURL(url string) Option {
	return func(c *Client) { c.apiURL = url }
}

// New creates a Client for token. An empty token yields a Client whose
// calls log a configuration error and return ErrNotConfigured.
func New(token string, opts ...Option) *Client {
	c := &Client{perSec: 1}
	for _, opt := range opts {
		opt(c)
	}
	if c.api == nil && token != "" {
		var sopts []slack.Option
		if c.apiURL != "" {
			sopts = append(sopts, slack.OptionAPIURL(c.apiURL))
		}
		c.api = slack.New(token, sopts...)
	}
	c.limiters, _ = lru.New[string, *rate.Limiter](maxTrackedChannels)
	return c
}

// Post implements Messenger.
func (c *Client) Post(ctx context.Context, channel, text string) (string, error) {
	if c.api == nil {
		slog.Error("slack message dropped", "channel", channel, "error", ErrNotConfigured)
		return "", ErrNotConfigured
	}
	var first string
	for i, part := range splitMessage(ToMrkdwn(text)) {
		if err := c.wait(ctx, channel); err != nil {
			return first, err
		}
		_, ts, err := c.api.PostMessageContext(ctx, channel, msgOptions(part)...)
		if err != nil {
			return first, fmt.Errorf("post message (part %d): %w", i+1, err)
		}
		if first == "" {
			first = ts
		}
		slog.Info("slack message sent", "channel", channel, "ts", ts)
	}
	return first, nil
}

// Update implements Messenger. Text beyond the first chunk is posted as
// follow-up messages.
func (c *Client) Update(ctx context.Context, channel, ts, text string) error {
	if c.api == nil {
		slog.Error("slack update dropped", "channel", channel, "ts", ts, "error", ErrNotConfigured)
		return ErrNotConfigured
	}
	parts := splitMessage(ToMrkdwn(text))
	if err := c.wait(ctx, channel); err != nil {
		return err
	}
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channel, ts, msgOptions(parts[0])...); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	slog.Info("slack message updated", "channel", channel, "ts", ts)

	for i, part := range parts[1:] {
		if err := c.wait(ctx, channel); err != nil {
			return err
		}
		if _, _, err := c.api.PostMessageContext(ctx, channel, msgOptions(part)...); err != nil {
			return fmt.Errorf("%w: post continuation (part %d): %w", ErrPartialDelivery, i+2, err)
		}
	}
	return nil
}

func msgOptions(text string) []slack.MsgOption {
	return []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
		slack.MsgOptionDisableMediaUnfurl(),
	}
}

func (c *Client) wait(ctx context.Context, channel string) error {
	if c.perSec <= 0 {
		return nil
	}
	lim, ok := c.limiters.Get(channel)
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.perSec), 3)
		c.limiters.Add(channel, lim)
	}
	return lim.Wait(ctx)
}

// splitMessage cuts text into chunks of at most maxSlackMessage runes,
// preferring to break after a newline.
func splitMessage(text string) []string {
	if utf8.RuneCountInString(text) <= maxSlackMessage {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		end := maxSlackMessage
		if end >= len(runes) {
			parts = append(parts, string(runes))
			break
		}
		if nl := lastNewline(runes[:end]); nl > end/2 {
			end = nl + 1
		}
		parts = append(parts, strings.TrimRight(string(runes[:end]), "\n"))
		runes = runes[end:]
	}
	return parts
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
