package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/essket/pixorbi-bot/convo"
	"github.com/essket/pixorbi-bot/internal/langdetect"
	"github.com/essket/pixorbi-bot/llm"
	"github.com/essket/pixorbi-bot/persona"
	"github.com/essket/pixorbi-bot/providers/openai"
	"github.com/essket/pixorbi-bot/providers/runpod"
	"github.com/essket/pixorbi-bot/session"
)

// orchestratorFromViper wires the conversation core from configuration.
// At least one provider must be configured or startup fails.
func orchestratorFromViper(logger *slog.Logger) (*convo.Orchestrator, error) {
	personas, err := personasFromViper()
	if err != nil {
		return nil, err
	}

	var primary llm.Client
	apiKey := strings.TrimSpace(viper.GetString("llm.api_key"))
	baseURL := strings.TrimSpace(viper.GetString("llm.base_url"))
	if apiKey != "" || baseURL != "" {
		primary = openai.New(baseURL, apiKey, viper.GetDuration("llm.timeout"))
	}

	var secondary llm.FallbackClient
	if endpoint := strings.TrimSpace(viper.GetString("runpod.endpoint_url")); endpoint != "" {
		secondary, err = runpod.New(endpoint, strings.TrimSpace(viper.GetString("runpod.api_key")), viper.GetDuration("runpod.timeout"))
		if err != nil {
			return nil, err
		}
	}
	if primary == nil && secondary == nil {
		return nil, fmt.Errorf("no provider configured: set llm.api_key/llm.base_url or runpod.endpoint_url")
	}

	cfg := convo.Config{
		DefaultCharacter:     viper.GetString("chat.default_character"),
		DefaultLanguage:      viper.GetString("chat.default_language"),
		Model:                viper.GetString("llm.model"),
		Temperature:          viper.GetFloat64("llm.temperature"),
		RetryTemperatureStep: viper.GetFloat64("llm.retry_temperature_step"),
		MaxSentences:         viper.GetInt("chat.max_sentences"),
		MismatchThreshold:    viper.GetInt("chat.mismatch_threshold"),
		MinLetterRatio:       viper.GetFloat64("chat.min_letter_ratio"),
		CallTimeout:          viper.GetDuration("llm.timeout"),
		Debug:                viper.GetBool("chat.debug"),
	}

	store := session.NewMemoryStore(viper.GetInt("chat.history_pairs"))
	return convo.New(cfg, logger, store, personas, langdetect.NewRussianEnglish(), primary, secondary)
}

func personasFromViper() (*persona.Registry, error) {
	if path := strings.TrimSpace(viper.GetString("personas.path")); path != "" {
		return persona.LoadFile(path)
	}
	return persona.Default(), nil
}
