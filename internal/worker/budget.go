package worker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Budget counts tokens and trims tool output so a single retrieval cannot
// crowd the model's context window.
type Budget struct {
	tokenizer *tiktoken.Tiktoken
	limit     int
}

// NewBudget creates a Budget. model selects the tokenizer; unknown models
// (every Bedrock id) fall back to cl100k_base. limit <= 0 disables trimming.
func NewBudget(model string, limit int) (*Budget, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Budget{tokenizer: enc, limit: limit}, nil
}

// Count returns the token count for text.
func (b *Budget) Count(text string) int {
	return len(b.tokenizer.Encode(text, nil, nil))
}

// Trim cuts text to the token limit and marks the cut.
func (b *Budget) Trim(text string) string {
	if b.limit <= 0 {
		return text
	}
	tokens := b.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= b.limit {
		return text
	}
	return b.tokenizer.Decode(tokens[:b.limit]) + "\n\n[output truncated]"
}
