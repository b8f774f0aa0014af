package main

import (
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/essket/pixorbi-bot/internal/logutil"
	"github.com/essket/pixorbi-bot/internal/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			orch, err := orchestratorFromViper(logger)
			if err != nil {
				return err
			}

			allowed, err := allowedChatIDsFromViper()
			if err != nil {
				return err
			}

			rt, err := telegram.NewRuntime(logger, orch, telegram.Options{
				BotToken:       viper.GetString("telegram.bot_token"),
				PollTimeout:    viper.GetDuration("telegram.poll_timeout"),
				TypingInterval: viper.GetDuration("telegram.typing_interval"),
				MaxConcurrency: viper.GetInt("telegram.max_concurrency"),
				AllowedChatIDs: allowed,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info("telegram_stop")
			return nil
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	_ = viper.BindPFlag("telegram.bot_token", cmd.Flags().Lookup("telegram-bot-token"))

	return cmd
}

func allowedChatIDsFromViper() ([]int64, error) {
	var out []int64
	for _, s := range viper.GetStringSlice("telegram.allowed_chat_ids") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
