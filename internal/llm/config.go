package llm

import (
	"fmt"
	"time"
)

// Config holds teacher provider configuration.
type Config struct {
	// Provider selects the backend.
	// Values: "openai" (any OpenAI-compatible endpoint, Poe included),
	// "anthropic", "gemini", "mock".
	Provider string

	// BaseURL of an OpenAI-compatible endpoint. Ignored by the other
	// backends.
	BaseURL string
	APIKey  string
	Model   string

	// NoTemperatureModels is the comma separated temperature denylist.
	NoTemperatureModels string

	// Timeout bounds a single wire attempt.
	Timeout time.Duration
}

// RetryConfig configures gateway retry behavior.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig is the gateway backoff envelope: 500ms doubling up to
// 5s. Callers set MaxAttempts for their own budget.
func DefaultRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
	}
}

// DefaultConfig returns a Config pointing at the Poe marketplace.
func DefaultConfig() Config {
	return Config{
		Provider:            "openai",
		BaseURL:             DefaultBaseURL,
		NoTemperatureModels: DefaultNoTemperatureModels,
		Timeout:             60 * time.Second,
	}
}

// Kind maps the configured backend to its request dialect.
func (c Config) Kind() ProviderKind {
	switch c.Provider {
	case "anthropic":
		return ProviderAnthropic
	case "gemini":
		return ProviderGemini
	default:
		return DetectProvider(c.BaseURL)
	}
}

// Capabilities resolves the capability descriptor for this configuration.
func (c Config) Capabilities() Capabilities {
	return ResolveCapabilities(c.Kind(), c.BaseURL, c.Model, ParseModelRules(c.NoTemperatureModels))
}

// Validate checks that a model is set and that remote backends have a key.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic", "gemini":
	case "mock":
		return nil
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("a teacher model is required for the %s provider", c.Provider)
	}
	if c.APIKey == "" && !(c.Provider == "openai" && IsLocalBaseURL(c.BaseURL)) {
		return fmt.Errorf("an API key is required for the %s provider", c.Provider)
	}
	return nil
}
