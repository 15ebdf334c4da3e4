// Package inference provides the text-completion transport used by the
// enrichment pipeline. Two backends are supported: a local Ollama-style
// HTTP endpoint and the Anthropic Messages API.
package inference

import (
	"context"

	"github.com/rotisserie/eris"
)

// Client performs a single text completion. Implementations may return
// an empty string without error; callers must treat empty or
// non-parseable output as a soft failure for the kind being enriched,
// never as a crash.
type Client interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Config selects and tunes the completion backend.
type Config struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // "local" or "anthropic"

	// Local backend.
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// RatePerMin caps local endpoint calls per minute. 0 disables limiting.
	RatePerMin int `yaml:"rate_per_min" mapstructure:"rate_per_min"`

	// Anthropic backend.
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Model is the default model identifier when callers pass "".
	Model string `yaml:"model" mapstructure:"model"`
}

// New builds a Client from config.
func New(cfg Config) (Client, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, eris.New("inference: anthropic backend requires api_key")
		}
		return NewAnthropic(cfg), nil
	default:
		return nil, eris.Errorf("inference: unknown backend %q", cfg.Backend)
	}
}
