package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/user/agentrelay/internal/config"
)

func init() {
	rootCmd.AddCommand(lambdaCmd)
}

var lambdaCmd = &cobra.Command{
	Use:       "lambda <receiver|bridge>",
	Short:     "Run as an AWS Lambda handler",
	Long:      "Runs the receiver (API Gateway proxy) or the bridge (SQS event source with partial batch responses) as a Lambda function. The root command does the same when " + lambdaHandlerEnv + " is set.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"receiver", "bridge"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLambda(cmd.Context(), args[0])
	},
}

func runLambda(ctx context.Context, name string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	handler, err := lambdaHandler(ctx, cfg, name)
	if err != nil {
		return err
	}
	slog.Info("lambda handler starting", "handler", name)
	lambda.StartWithOptions(handler, lambda.WithContext(ctx))
	return nil
}

// lambdaHandler builds the handler function for name. Clients are created
// once per cold start.
func lambdaHandler(ctx context.Context, cfg *config.Config, name string) (any, error) {
	switch name {
	case "receiver":
		h, err := newReceiver(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return h.HandleAPIGateway, nil
	case "bridge":
		b, err := newBridge(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b.HandleSQS, nil
	}
	return nil, fmt.Errorf("unknown lambda handler %q (want receiver or bridge)", name)
}
