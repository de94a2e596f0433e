// Command agentrelay relays Slack messages through a queue to a Bedrock
// AgentCore runtime and posts the answers back. The same binary runs the
// receiver and bridge locally, as Lambda functions, and as the agent
// worker inside the runtime.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/user/agentrelay/internal/config"
	"github.com/user/agentrelay/internal/logging"
)

// lambdaHandlerEnv selects the Lambda handler when the binary runs as a
// function bootstrap without arguments.
const lambdaHandlerEnv = "RELAY_LAMBDA_HANDLER"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "agentrelay",
	Short:         "Slack to Bedrock AgentCore relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if name := os.Getenv(lambdaHandlerEnv); name != "" {
			return runLambda(cmd.Context(), name)
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
}
