package worker

import (
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"
)

// DefaultPrompt is the built-in system prompt template used when no custom
// prompt file is configured. It uses Go text/template syntax with PromptData
// fields: .Time, .Tools
const DefaultPrompt = `You are an HR assistant for company employees. Your goal is to answer questions about company policy, benefits, leave and pay accurately and kindly, grounded in the company's internal documents.

## Current Context

- Time: {{.Time}}
- Available tools: {{.Tools}}

## Procedure

1. **Search first**: before answering, always call ` + "`search_documents`" + ` to find the relevant documents. Do not answer from prior knowledge.
2. **Check the evidence**: confirm the retrieved documents actually answer the question. You may reason from what the documents say.
3. **Calculate when needed**: for pay, leave days or allowances, take the formula and figures from the documents and compute the value with ` + "`calculator`" + `.
4. **Answer**: reply using the confirmed information and calculation results.

## Principles

- **Evidence-based**: treat only what ` + "`search_documents`" + ` returned as fact. If the documents do not cover the question, never guess. Say you could not find a relevant document and suggest contacting the HR team directly.
- **Tone**: polite and friendly, as if talking to a colleague. Reply in the language the user wrote in.
- **Clarity**: explain legal terms and complicated rules in plain words.

## Slack Formatting

Replies are shown in Slack. Follow these rules:

- Do not wrap the answer, or any part of it, in code blocks.
- Do not use tables. Use lists and line breaks instead.
- For emphasis use a single asterisk on each side (*important*).
- Use simple lists with hyphens (-) or numbers (1.).
`

// PromptData is the data available to system prompt templates.
type PromptData struct {
	Time  string
	Tools string
}

// Prompt renders the system prompt for each request.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses the template at path, or DefaultPrompt when path is
// empty.
func NewPrompt(path string) (*Prompt, error) {
	text := DefaultPrompt
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		text = string(data)
	}
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	return &Prompt{tmpl: tmpl}, nil
}

// Render executes the template for the given tool names.
func (p *Prompt) Render(now time.Time, tools []string) (string, error) {
	var b strings.Builder
	data := PromptData{Time: now.Format(time.RFC3339), Tools: strings.Join(tools, ", ")}
	if err := p.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return b.String(), nil
}
