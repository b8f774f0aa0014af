package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/essket/pixorbi-bot/convo"
	"github.com/essket/pixorbi-bot/internal/logutil"
)

// newChatCmd runs a local console conversation against the same
// orchestrator the bot uses; handy for checking providers and personas
// without a bot token.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured persona on the console",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			orch, err := orchestratorFromViper(logger)
			if err != nil {
				return err
			}

			const sessionID = "cli:local"
			ctx := cmd.Context()
			fmt.Println(orch.HandleLifecycle(ctx, sessionID, convo.Event{Kind: convo.EventBegin}))

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}
				if line == "/reset" {
					fmt.Println(orch.HandleLifecycle(ctx, sessionID, convo.Event{Kind: convo.EventReset}))
					continue
				}
				fmt.Println(orch.HandleMessage(ctx, sessionID, line))
			}
		},
	}
}
