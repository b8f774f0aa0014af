package main

import (
	"github.com/spf13/viper"

	"github.com/essket/pixorbi-bot/convo"
	"github.com/essket/pixorbi-bot/internal/sanitize"
	"github.com/essket/pixorbi-bot/session"
)

func initViperDefaults() {
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)

	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.timeout", convo.DefaultCallTimeout)
	viper.SetDefault("llm.temperature", convo.DefaultTemperature)
	viper.SetDefault("llm.retry_temperature_step", convo.DefaultRetryTemperatureStep)

	viper.SetDefault("runpod.endpoint_url", "")
	viper.SetDefault("runpod.api_key", "")
	viper.SetDefault("runpod.timeout", convo.DefaultCallTimeout)

	viper.SetDefault("chat.default_character", "")
	viper.SetDefault("chat.default_language", "ru")
	viper.SetDefault("chat.history_pairs", session.DefaultMaxPairs)
	viper.SetDefault("chat.max_sentences", sanitize.DefaultMaxSentences)
	viper.SetDefault("chat.mismatch_threshold", convo.DefaultMismatchThreshold)
	viper.SetDefault("chat.min_letter_ratio", 0.25)
	viper.SetDefault("chat.debug", false)

	viper.SetDefault("personas.path", "")

	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.poll_timeout", "30s")
	viper.SetDefault("telegram.typing_interval", "4s")
	viper.SetDefault("telegram.max_concurrency", 8)
	viper.SetDefault("telegram.allowed_chat_ids", []string{})
}
