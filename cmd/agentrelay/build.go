package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/agentrelay/internal/agentcore"
	"github.com/user/agentrelay/internal/awsclient"
	"github.com/user/agentrelay/internal/bridge"
	"github.com/user/agentrelay/internal/config"
	"github.com/user/agentrelay/internal/queue"
	"github.com/user/agentrelay/internal/receiver"
	"github.com/user/agentrelay/internal/slack"
)

// newReceiver wires the inbound handler to the queue. Without a queue URL
// events are acknowledged and dropped.
func newReceiver(ctx context.Context, cfg *config.Config) (*receiver.Handler, error) {
	verifier := slack.NewVerifier(cfg.Slack.SigningSecret)
	if !verifier.Enabled() {
		slog.Warn("slack signature verification disabled (no signing secret)")
	}
	if cfg.Queue.URL == "" {
		slog.Warn("queue url not configured; events will be dropped")
		return receiver.New(nil, verifier), nil
	}
	client, err := awsclient.SQS(ctx, cfg.Queue.Region)
	if err != nil {
		return nil, err
	}
	return receiver.New(queue.NewSender(client, cfg.Queue.URL), verifier), nil
}

func newRuntime(ctx context.Context, cfg *config.Config) (*agentcore.Client, error) {
	if cfg.Runtime.ARN == "" {
		slog.Warn("agentcore runtime arn not configured")
		return agentcore.New(nil, "", cfg.Runtime.Qualifier), nil
	}
	client, err := awsclient.AgentCore(ctx, cfg.Runtime.Region)
	if err != nil {
		return nil, err
	}
	return agentcore.New(client, cfg.Runtime.ARN, cfg.Runtime.Qualifier), nil
}

func newMessenger(cfg *config.Config) *slack.Client {
	if cfg.Slack.BotToken == "" {
		slog.Warn("slack bot token not configured; replies cannot be delivered")
	}
	return slack.New(cfg.Slack.BotToken, slack.WithRateLimit(cfg.Slack.MessagesPerSecond))
}

func newBridge(ctx context.Context, cfg *config.Config) (*bridge.Bridge, error) {
	policy, err := bridge.ParsePolicy(cfg.Bridge.FailurePolicy)
	if err != nil {
		return nil, err
	}
	runtime, err := newRuntime(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("agentcore client: %w", err)
	}
	return bridge.New(runtime, newMessenger(cfg), bridge.Options{
		BotUserID:  cfg.Slack.BotUserID,
		StatusText: cfg.Slack.StatusText,
		Verbose:    cfg.Runtime.Verbose,
		Policy:     policy,
		DedupSize:  cfg.Bridge.DedupSize,
	}), nil
}
