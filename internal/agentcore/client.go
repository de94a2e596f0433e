// Package agentcore invokes a Bedrock AgentCore runtime and normalizes the
// heterogeneous responses it returns.
package agentcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"

	"github.com/user/agentrelay/internal/types"
)

// ErrNotConfigured is returned when no runtime ARN is set.
var ErrNotConfigured = errors.New("agent runtime ARN not configured")

// API is the subset of the AgentCore data-plane client the relay uses.
type API interface {
	InvokeAgentRuntime(ctx context.Context, params *bedrockagentcore.InvokeAgentRuntimeInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error)
}

// Request is the JSON payload sent to the runtime entrypoint.
type Request struct {
	Prompt  string `json:"prompt"`
	Verbose bool   `json:"verbose,omitempty"`
}

// Client invokes one configured agent runtime.
type Client struct {
	api       API
	arn       string
	qualifier string
}

// New creates a Client for the runtime identified by arn. qualifier selects
// an endpoint (for example "DEFAULT") and may be empty.
func New(api API, arn, qualifier string) *Client {
	return &Client{api: api, arn: arn, qualifier: qualifier}
}

// Invoke sends req under sessionID, reads the whole response stream and
// parses it. The call blocks for the full runtime round trip.
func (c *Client) Invoke(ctx context.Context, sessionID types.SessionID, req Request) (*Response, error) {
	if c.arn == "" {
		return nil, ErrNotConfigured
	}
	if len(sessionID) < types.MinSessionIDLength {
		return nil, fmt.Errorf("session id %q shorter than %d characters", sessionID, types.MinSessionIDLength)
	}

	payload, err := encodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	input := &bedrockagentcore.InvokeAgentRuntimeInput{
		AgentRuntimeArn:  aws.String(c.arn),
		RuntimeSessionId: aws.String(string(sessionID)),
		Payload:          payload,
		ContentType:      aws.String("application/json"),
		Accept:           aws.String("application/json"),
	}
	if c.qualifier != "" {
		input.Qualifier = aws.String(c.qualifier)
	}

	out, err := c.api.InvokeAgentRuntime(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("invoke agent runtime: %w", err)
	}
	if out.Response == nil {
		return nil, ErrEmptyResponse
	}
	defer out.Response.Close()

	body, err := io.ReadAll(out.Response)
	if err != nil {
		return nil, fmt.Errorf("read runtime response: %w", err)
	}
	return Parse(body)
}

// encodeRequest marshals without HTML escaping so prompt text reaches the
// runtime as written.
func encodeRequest(req Request) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
