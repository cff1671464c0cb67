// Package config manages application configuration from config.yaml,
// BOT_-prefixed environment variables, and default values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration is returned for any configuration loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// placeholderTokens are credential values copied verbatim from sample
// configs. A bot configured with one of these must fail before any
// network attempt.
var placeholderTokens = map[string]struct{}{
	"your_bot_token_here": {},
	"changeme":            {},
	"replace_me":          {},
	"xxx":                 {},
}

// Config is the root application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	API     APIConfig     `mapstructure:"api"`
	Routing RoutingConfig `mapstructure:"routing"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Session SessionConfig `mapstructure:"session"`
	Bots    []BotConfig   `mapstructure:"bots" validate:"required,min=1,dive"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// APIConfig configures the text-generation backend.
type APIConfig struct {
	Backend  string        `mapstructure:"backend"  validate:"required,oneof=openai gemini"`
	BaseURL  string        `mapstructure:"base_url" validate:"required,url"`
	Token    string        `mapstructure:"token"`
	Referrer string        `mapstructure:"referrer"`
	Timeout  time.Duration `mapstructure:"timeout"  validate:"required,min=1s,max=10m"`
	Cooldown time.Duration `mapstructure:"cooldown" validate:"min=0,max=10m"`
}

// RoutingConfig controls context assembly and reply pacing.
type RoutingConfig struct {
	HistoryLimit   int           `mapstructure:"history_limit"    validate:"required,min=1,max=100"`
	MaxEntryLength int           `mapstructure:"max_entry_length" validate:"required,min=100"`
	MaxReplyLength int           `mapstructure:"max_reply_length" validate:"required,min=1,max=2000"`
	OpenDelayMin   time.Duration `mapstructure:"open_delay_min"   validate:"min=0"`
	OpenDelayMax   time.Duration `mapstructure:"open_delay_max"   validate:"min=0,gtefield=OpenDelayMin"`
}

// RetryConfig bounds the delayed re-attempt scheduler.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"required,min=1,max=10"`
	DelayMin    time.Duration `mapstructure:"delay_min"    validate:"required,min=1ms"`
	DelayMax    time.Duration `mapstructure:"delay_max"    validate:"required,gtefield=DelayMin"`
}

// SessionConfig controls multi-identity startup behavior.
type SessionConfig struct {
	StartupStagger time.Duration `mapstructure:"startup_stagger" validate:"min=0"`
}

// BotConfig describes one bot identity. Immutable for the process lifetime.
type BotConfig struct {
	Name         string   `mapstructure:"name"        validate:"required"`
	Token        string   `mapstructure:"token"       validate:"required"`
	Model        string   `mapstructure:"model"       validate:"required"`
	Personality  string   `mapstructure:"personality" validate:"required"`
	OpenChannels []string `mapstructure:"open_channels"`
}

// IsOpenChannel reports whether the bot treats every message in the
// channel as in-scope, not only direct addresses.
func (b BotConfig) IsOpenChannel(channelID string) bool {
	for _, id := range b.OpenChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// IsPlaceholderToken reports whether a credential is empty or one of the
// known sample values shipped in example configuration files.
func IsPlaceholderToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return true
	}
	_, ok := placeholderTokens[strings.ToLower(token)]
	return ok
}

// Validate checks the complete configuration, including the placeholder
// credential rule that struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	seen := make(map[string]struct{}, len(c.Bots))
	for i, bot := range c.Bots {
		if IsPlaceholderToken(bot.Token) {
			return fmt.Errorf("%w: bot %q has an empty or placeholder token", ErrConfiguration, bot.Name)
		}
		if _, dup := seen[bot.Name]; dup {
			return fmt.Errorf("%w: duplicate bot name %q at index %d", ErrConfiguration, bot.Name, i)
		}
		seen[bot.Name] = struct{}{}
	}

	return nil
}
