package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/agentrelay/internal/agentcore"
	"github.com/user/agentrelay/internal/types"
)

func init() {
	rootCmd.AddCommand(invokeCmd)
	invokeCmd.Flags().Bool("verbose", false, "request tool traces and metrics")
	invokeCmd.Flags().String("channel", "CLI", "channel id used in the session id")
	invokeCmd.Flags().String("user", "local", "user id used in the session id")
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <prompt>",
	Short: "Send one prompt to the agent runtime and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		verbose, _ := cmd.Flags().GetBool("verbose")
		channel, _ := cmd.Flags().GetString("channel")
		user, _ := cmd.Flags().GetString("user")

		runtime, err := newRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		sid := types.NewSessionID(channel, user)
		resp, err := runtime.Invoke(cmd.Context(), sid, agentcore.Request{
			Prompt:  strings.Join(args, " "),
			Verbose: verbose || cfg.Runtime.Verbose,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Display())
		return nil
	},
}
