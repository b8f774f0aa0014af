package convo

import "time"

// Config carries the orchestrator's tunables. The thresholds are defaults
// tuned by use, not derived values; deployments adjust them freely.
type Config struct {
	// DefaultCharacter and DefaultLanguage fill empty session fields when
	// a session begins.
	DefaultCharacter string
	DefaultLanguage  string

	// Model is the primary provider's model name.
	Model string

	// Temperature is the initial sampling temperature; a retry after a
	// quality-gate failure subtracts RetryTemperatureStep once.
	Temperature          float64
	RetryTemperatureStep float64

	// MaxSentences caps sanitized replies.
	MaxSentences int

	// MismatchThreshold is the consecutive-mismatch count at which the
	// language reminder escalates to an explicit selection prompt.
	MismatchThreshold int

	// MinLetterRatio is the quality gate's wrong-script cutoff.
	MinLetterRatio float64

	// CallTimeout bounds each individual provider call.
	CallTimeout time.Duration

	// Debug appends a sanitized error detail to degraded replies.
	Debug bool
}

const (
	DefaultTemperature          = 0.7
	DefaultRetryTemperatureStep = 0.2
	DefaultMismatchThreshold    = 3
	DefaultCallTimeout          = 45 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.RetryTemperatureStep <= 0 {
		c.RetryTemperatureStep = DefaultRetryTemperatureStep
	}
	if c.MismatchThreshold <= 0 {
		c.MismatchThreshold = DefaultMismatchThreshold
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "ru"
	}
	return c
}
