package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/agentrelay/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "agentrelay setup")
		fmt.Fprintln(out, "Press Enter to accept the default value shown in brackets.")
		fmt.Fprintln(out)

		if err := runWizard(bufio.NewScanner(cmd.InOrStdin()), out, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Configuration saved to", cfgPath)
		return nil
	},
}

// runWizard asks for the settings a first deployment needs.
func runWizard(scanner *bufio.Scanner, out io.Writer, cfg *config.Config) error {
	cfg.Queue.URL = prompt(scanner, out, "SQS queue URL", cfg.Queue.URL)
	cfg.Queue.Region = prompt(scanner, out, "SQS region", cfg.Queue.Region)
	cfg.Runtime.ARN = prompt(scanner, out, "AgentCore runtime ARN", cfg.Runtime.ARN)
	cfg.Runtime.Region = prompt(scanner, out, "AgentCore region", cfg.Runtime.Region)
	cfg.Slack.BotToken = prompt(scanner, out, "Slack bot token", cfg.Slack.BotToken)
	cfg.Slack.SigningSecret = prompt(scanner, out, "Slack signing secret (optional)", cfg.Slack.SigningSecret)
	cfg.Slack.BotUserID = prompt(scanner, out, "Slack bot user id (optional)", cfg.Slack.BotUserID)
	cfg.Bridge.FailurePolicy = prompt(scanner, out, "Failure policy (notify or retry)", cfg.Bridge.FailurePolicy)

	rate := prompt(scanner, out, "Slack messages per second per channel", strconv.FormatFloat(cfg.Slack.MessagesPerSecond, 'f', -1, 64))
	n, err := strconv.ParseFloat(rate, 64)
	if err != nil {
		return fmt.Errorf("messages per second: %w", err)
	}
	cfg.Slack.MessagesPerSecond = n
	return nil
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, out io.Writer, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
