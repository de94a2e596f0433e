// Package openai implements llm.Provider for OpenAI-compatible chat
// completion endpoints, including the Bedrock runtime's /openai/v1 surface.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/user/agentrelay/pkg/llm"
)

// BedrockBaseURL returns the OpenAI-compatible endpoint of the Bedrock
// runtime in region.
func BedrockBaseURL(region string) string {
	return "https://bedrock-runtime." + region + ".amazonaws.com/openai/v1"
}

// Client implements the llm.Provider interface for OpenAI-compatible APIs.
type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

// New creates a new OpenAI-compatible client with the given configuration.
func New(config *llm.Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []requestMessage `json:"messages"`
	Tools       []llm.Tool       `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
}

type requestMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// wireToolCall carries arguments as a JSON-encoded string, as the chat
// completions API does.
type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []choice      `json:"choices"`
	Usage   responseUsage `json:"usage"`
}

type choice struct {
	Message responseMessage `json:"message"`
}

type responseMessage struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	ToolCalls        []wireToolCall `json:"tool_calls,omitempty"`
}

type responseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

var reasoningTag = regexp.MustCompile(`(?s)<reasoning>(.*?)</reasoning>`)

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	reqMessages := make([]requestMessage, len(messages))
	for i, msg := range messages {
		rm := requestMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.Role == "tool" && len(msg.Tools) > 0 {
			rm.ToolCallID = msg.Tools[0].ID
		} else if len(msg.Tools) > 0 {
			calls, err := toWire(msg.Tools)
			if err != nil {
				return nil, err
			}
			rm.ToolCalls = calls
		}
		reqMessages[i] = rm
	}

	reqBody := chatRequest{
		Model:    c.config.Model,
		Messages: reqMessages,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
	}
	if c.config.MaxTokens > 0 {
		reqBody.MaxTokens = c.config.MaxTokens
	}
	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		reqBody.Temperature = &temp
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	msg := chatResp.Choices[0].Message
	content, reasoning := splitReasoning(msg.Content)
	if msg.ReasoningContent != "" {
		reasoning = msg.ReasoningContent
	}
	calls, err := fromWire(msg.ToolCalls)
	if err != nil {
		return nil, err
	}
	return &llm.Response{
		Content:   content,
		Reasoning: reasoning,
		ToolCalls: calls,
		Usage: llm.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:  chatResp.Usage.TotalTokens,
		},
	}, nil
}

// splitReasoning removes inline <reasoning> blocks from content.
func splitReasoning(content string) (string, string) {
	matches := reasoningTag.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return content, ""
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, strings.TrimSpace(m[1]))
	}
	return strings.TrimSpace(reasoningTag.ReplaceAllString(content, "")), strings.Join(parts, "\n")
}

func toWire(calls []llm.ToolCall) ([]wireToolCall, error) {
	out := make([]wireToolCall, len(calls))
	for i, tc := range calls {
		args := tc.Function.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		encoded, err := json.Marshal(string(args))
		if err != nil {
			return nil, fmt.Errorf("encoding arguments for %s: %w", tc.Function.Name, err)
		}
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		out[i].ID = tc.ID
		out[i].Type = typ
		out[i].Function.Name = tc.Function.Name
		out[i].Function.Arguments = encoded
	}
	return out, nil
}

// fromWire accepts arguments either as a JSON-encoded string or as an
// inline object; some compatible servers send the latter.
func fromWire(calls []wireToolCall) ([]llm.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]llm.ToolCall, len(calls))
	for i, wc := range calls {
		args := bytes.TrimSpace(wc.Function.Arguments)
		if len(args) > 0 && args[0] == '"' {
			var s string
			if err := json.Unmarshal(args, &s); err != nil {
				return nil, fmt.Errorf("decoding arguments for %s: %w", wc.Function.Name, err)
			}
			args = []byte(strings.TrimSpace(s))
		}
		if len(args) == 0 {
			args = []byte("{}")
		}
		if !json.Valid(args) {
			// Truncated or garbled arguments travel as a JSON string so the
			// tool reports a parse error instead of the reply failing to encode.
			args, _ = json.Marshal(string(args))
		}
		out[i] = llm.ToolCall{
			ID:   wc.ID,
			Type: wc.Type,
			Function: llm.FunctionCall{
				Name:      wc.Function.Name,
				Arguments: json.RawMessage(args),
			},
		}
	}
	return out, nil
}
