package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	kbtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

const defaultKBResults = 5

var htmlChunk = regexp.MustCompile(`(?i)</?(p|div|table|tr|td|th|ul|ol|li|h[1-6]|br|span)\b[^>]*>`)

// RetrieveAPI is the subset of the Bedrock agent runtime client used for
// knowledge-base retrieval.
type RetrieveAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// KnowledgeSearch retrieves passages from a Bedrock knowledge base.
type KnowledgeSearch struct {
	api     RetrieveAPI
	kbID    string
	results int32
}

// NewKnowledgeSearch creates the search tool. An empty kbID yields a tool
// that reports the knowledge base as not configured.
func NewKnowledgeSearch(api RetrieveAPI, kbID string, results int) *KnowledgeSearch {
	if results <= 0 {
		results = defaultKBResults
	}
	return &KnowledgeSearch{api: api, kbID: kbID, results: int32(results)}
}

func (k *KnowledgeSearch) Name() string { return "search_documents" }
func (k *KnowledgeSearch) Description() string {
	return "Search the company HR documents (policies, benefits, leave, pay) and return the most relevant passages"
}
func (k *KnowledgeSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The question or keywords to search for"}
		},
		"required": ["query"]
	}`)
}

// Execute returns the passages, each prefixed with its relevance score.
// Retrieval failures are returned as result text.
func (k *KnowledgeSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", errors.New("query is required")
	}
	if k.kbID == "" || k.api == nil {
		return "Knowledge base is not configured.", nil
	}

	slog.Info("knowledge search", "query", params.Query)
	out, err := k.api.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(k.kbID),
		RetrievalQuery:  &kbtypes.KnowledgeBaseQuery{Text: aws.String(params.Query)},
		RetrievalConfiguration: &kbtypes.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &kbtypes.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(k.results),
			},
		},
	})
	if err != nil {
		slog.Error("knowledge search failed", "error", err)
		return "Search error: " + err.Error(), nil
	}

	var parts []string
	for _, r := range out.RetrievalResults {
		text := ""
		if r.Content != nil {
			text = passage(aws.ToString(r.Content.Text))
		}
		parts = append(parts, fmt.Sprintf("[relevance: %.2f]\n%s", aws.ToFloat64(r.Score), text))
	}
	if len(parts) == 0 {
		return "No relevant documents found.", nil
	}
	slog.Info("knowledge search done", "documents", len(parts))
	return strings.Join(parts, "\n\n---\n\n"), nil
}

// passage converts HTML chunks (tables exported from wiki pages) to
// Markdown and leaves plain text alone.
func passage(text string) string {
	if !htmlChunk.MatchString(text) {
		return text
	}
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(md)
}
