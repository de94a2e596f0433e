// Package awsclient builds the AWS service clients from the default
// credential chain.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Load resolves credentials and region. An empty region leaves the SDK's
// own lookup (AWS_REGION, shared config) in charge.
func Load(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// SQS returns a queue client for region.
func SQS(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := Load(ctx, region)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg), nil
}

// AgentCore returns a runtime invocation client for region.
func AgentCore(ctx context.Context, region string) (*bedrockagentcore.Client, error) {
	cfg, err := Load(ctx, region)
	if err != nil {
		return nil, err
	}
	return bedrockagentcore.NewFromConfig(cfg), nil
}

// KnowledgeBase returns a retrieval client for region.
func KnowledgeBase(ctx context.Context, region string) (*bedrockagentruntime.Client, error) {
	cfg, err := Load(ctx, region)
	if err != nil {
		return nil, err
	}
	return bedrockagentruntime.NewFromConfig(cfg), nil
}
