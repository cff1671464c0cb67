package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values for optional configuration parameters.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultAPIBackend  = "openai"
	DefaultAPIBaseURL  = "https://text.pollinations.ai/openai"
	DefaultAPIReferrer = "roblox"
	DefaultAPITimeout  = 50 * time.Second
	DefaultAPICooldown = 60 * time.Second

	DefaultHistoryLimit   = 5
	DefaultMaxEntryLength = 4000
	DefaultMaxReplyLength = 1500
	DefaultOpenDelayMin   = time.Minute
	DefaultOpenDelayMax   = 3 * time.Minute

	DefaultRetryMaxAttempts = 3
	DefaultRetryDelayMin    = 20 * time.Second
	DefaultRetryDelayMax    = 60 * time.Second

	DefaultStartupStagger = 3 * time.Second
)

// Load reads configuration in priority order: defaults, the config file at
// path (optional), then BOT_* environment variables. The returned config
// has been fully validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine, the bot list can come from env.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("api.backend", DefaultAPIBackend)
	v.SetDefault("api.base_url", DefaultAPIBaseURL)
	v.SetDefault("api.referrer", DefaultAPIReferrer)
	v.SetDefault("api.timeout", DefaultAPITimeout)
	v.SetDefault("api.cooldown", DefaultAPICooldown)

	v.SetDefault("routing.history_limit", DefaultHistoryLimit)
	v.SetDefault("routing.max_entry_length", DefaultMaxEntryLength)
	v.SetDefault("routing.max_reply_length", DefaultMaxReplyLength)
	v.SetDefault("routing.open_delay_min", DefaultOpenDelayMin)
	v.SetDefault("routing.open_delay_max", DefaultOpenDelayMax)

	v.SetDefault("retry.max_attempts", DefaultRetryMaxAttempts)
	v.SetDefault("retry.delay_min", DefaultRetryDelayMin)
	v.SetDefault("retry.delay_max", DefaultRetryDelayMax)

	v.SetDefault("session.startup_stagger", DefaultStartupStagger)
}
