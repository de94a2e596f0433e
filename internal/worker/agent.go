package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/agentrelay/pkg/llm"
)

// DefaultMaxIterations bounds the model rounds of one request.
const DefaultMaxIterations = 5

// ErrMaxIterations is returned when the model keeps calling tools past the
// iteration bound.
var ErrMaxIterations = errors.New("max iterations exceeded")

// ToolTrace records one tool invocation for verbose replies.
type ToolTrace struct {
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input"`
	Output string          `json:"output"`
}

// Metrics summarizes one request.
type Metrics struct {
	Iterations   int   `json:"iterations"`
	ToolCalls    int   `json:"tool_calls"`
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	LatencyMS    int64 `json:"latency_ms"`
}

// Result is the outcome of one agent run.
type Result struct {
	Message   string
	ToolCalls []ToolTrace
	Thinking  string
	Metrics   Metrics
}

// Agent runs the bounded tool-calling loop. It keeps no state between
// runs; every request starts from the system prompt.
type Agent struct {
	provider      llm.Provider
	registry      *Registry
	prompt        *Prompt
	budget        *Budget
	maxIterations int
}

// NewAgent creates an Agent. budget may be nil to skip output trimming.
func NewAgent(provider llm.Provider, registry *Registry, prompt *Prompt, budget *Budget, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Agent{
		provider:      provider,
		registry:      registry,
		prompt:        prompt,
		budget:        budget,
		maxIterations: maxIterations,
	}
}

// Run answers userPrompt.
func (a *Agent) Run(ctx context.Context, userPrompt string) (*Result, error) {
	start := time.Now()
	sys, err := a.prompt.Render(start, a.registry.Names())
	if err != nil {
		return nil, err
	}

	messages := []llm.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: userPrompt},
	}
	tools := a.registry.AsLLMTools()

	res := &Result{}
	var usage llm.Usage
	var thinking []string
	for round := 0; round < a.maxIterations; round++ {
		resp, err := a.provider.Complete(ctx, messages, tools)
		if err != nil {
			return nil, fmt.Errorf("LLM call: %w", err)
		}
		res.Metrics.Iterations++
		usage.Add(a.usage(messages, resp))
		res.Metrics.InputTokens, res.Metrics.OutputTokens = usage.InputTokens, usage.OutputTokens
		if resp.Reasoning != "" {
			thinking = append(thinking, resp.Reasoning)
		}

		if len(resp.ToolCalls) == 0 {
			res.Message = resp.Content
			res.Thinking = strings.Join(thinking, "\n")
			res.Metrics.LatencyMS = time.Since(start).Milliseconds()
			return res, nil
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content, Tools: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			output := a.execute(ctx, tc)
			res.ToolCalls = append(res.ToolCalls, ToolTrace{Name: tc.Function.Name, Input: traceInput(tc.Function.Arguments), Output: output})
			res.Metrics.ToolCalls++
			messages = append(messages, llm.Message{
				Role:    "tool",
				Content: output,
				Tools:   []llm.ToolCall{{ID: tc.ID}},
			})
		}
	}
	return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, a.maxIterations)
}

func (a *Agent) execute(ctx context.Context, tc llm.ToolCall) string {
	tool, ok := a.registry.Get(tc.Function.Name)
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", tc.Function.Name)
	}
	slog.Info("tool call", "tool", tc.Function.Name, "input", string(tc.Function.Arguments))
	result, err := tool.Execute(ctx, tc.Function.Arguments)
	if err != nil {
		slog.Warn("tool failed", "tool", tc.Function.Name, "error", err)
		return fmt.Sprintf("error: %v", err)
	}
	if a.budget != nil {
		result = a.budget.Trim(result)
	}
	return result
}

// traceInput keeps arguments that are not valid JSON as a JSON string.
func traceInput(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	if json.Valid(args) {
		return args
	}
	b, _ := json.Marshal(string(args))
	return b
}

// usage returns the provider's token counts, estimating them with the
// tokenizer when the provider reports none.
func (a *Agent) usage(messages []llm.Message, resp *llm.Response) llm.Usage {
	u := resp.Usage
	if u.InputTokens == 0 && a.budget != nil {
		for _, msg := range messages {
			u.InputTokens += a.budget.Count(msg.Content)
		}
		u.OutputTokens = a.budget.Count(resp.Content)
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}
