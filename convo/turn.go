package convo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/essket/pixorbi-bot/internal/langdetect"
	"github.com/essket/pixorbi-bot/internal/sanitize"
	"github.com/essket/pixorbi-bot/llm"
	"github.com/essket/pixorbi-bot/session"
)

const maxPrimaryAttempts = 2

// generate runs the provider fallback state machine for one turn: up to
// two primary attempts (the second at lowered temperature, only after a
// quality-gate failure), then one secondary attempt, then the fixed
// in-character placeholder. At most three external calls happen per turn.
// The returned error is non-nil only on the placeholder path.
func (o *Orchestrator) generate(ctx context.Context, log *slog.Logger, s session.Session, userText string) (string, error) {
	var lastErr error

	if o.primary != nil {
		messages := make([]llm.Message, 0, len(s.History)+2)
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: o.personas.Build(s.Character, s.Language)})
		messages = append(messages, s.History...)
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})

		temperature := o.cfg.Temperature
		for attempt := 1; attempt <= maxPrimaryAttempts; attempt++ {
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
			res, err := o.primary.Chat(callCtx, llm.Request{
				Model:       o.cfg.Model,
				Messages:    messages,
				Temperature: temperature,
			})
			cancel()
			if err != nil {
				lastErr = err
				logProviderError(log, "primary_call_error", err)
				break
			}

			cleaned := sanitize.Sanitize(res.Text, o.cfg.MaxSentences)
			ratio := o.classifier.LetterRatio(cleaned, langdetect.Tag(s.Language))
			if !sanitize.IsLowQuality(cleaned, ratio, o.cfg.MinLetterRatio) {
				log.Info("primary_ok",
					"attempt", attempt,
					"temperature", temperature,
					"duration", res.Duration.String(),
					"total_tokens", res.Usage.TotalTokens,
				)
				return cleaned, nil
			}

			log.Warn("primary_low_quality",
				"attempt", attempt,
				"temperature", temperature,
				"script_ratio", ratio,
				"preview", preview(res.Text),
			)
			lastErr = fmt.Errorf("primary output failed quality gate")
			temperature -= o.cfg.RetryTemperatureStep
			if temperature < 0 {
				temperature = 0
			}
		}
	}

	if o.secondary != nil {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		text, err := o.secondary.Generate(callCtx, llm.FallbackRequest{
			SessionID: s.ID,
			Character: s.Character,
			Language:  s.Language,
			Message:   userText,
		})
		cancel()
		if err == nil {
			if cleaned := sanitize.Sanitize(text, o.cfg.MaxSentences); cleaned != "" {
				log.Info("secondary_ok")
				return cleaned, nil
			}
			err = fmt.Errorf("secondary returned empty text")
		}
		lastErr = err
		logProviderError(log, "secondary_call_error", err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no provider available")
	}
	log.Warn("turn_degraded", "error", lastErr.Error())
	placeholder := o.personas.Placeholder(s.Character, s.Language)
	if placeholder == "" {
		placeholder = fixedLine(listeningPrompts, s.Language)
	}
	return placeholder, lastErr
}

func logProviderError(log *slog.Logger, msg string, err error) {
	if pe, ok := llm.AsProviderError(err); ok {
		log.Warn(msg,
			"provider", pe.Provider,
			"kind", string(pe.Kind),
			"status", pe.Status,
			"retryable", pe.Retryable,
			"detail", preview(pe.Detail),
		)
		return
	}
	log.Warn(msg, "error", err.Error())
}

func preview(s string) string {
	const max = 120
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
