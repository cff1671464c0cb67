package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hivebot/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Log: config.LogConfig{Level: "info", Format: "json"},
		API: config.APIConfig{
			Backend:  "openai",
			BaseURL:  "https://text.pollinations.ai/openai",
			Referrer: "roblox",
			Timeout:  50 * time.Second,
			Cooldown: 60 * time.Second,
		},
		Routing: config.RoutingConfig{
			HistoryLimit:   5,
			MaxEntryLength: 4000,
			MaxReplyLength: 1500,
			OpenDelayMin:   time.Minute,
			OpenDelayMax:   3 * time.Minute,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			DelayMin:    20 * time.Second,
			DelayMax:    60 * time.Second,
		},
		Session: config.SessionConfig{StartupStagger: 3 * time.Second},
		Bots: []config.BotConfig{
			{
				Name:         "deepbot",
				Token:        "MTA0.real.token",
				Model:        "deepseek-reasoning",
				Personality:  "Dry and curious.",
				OpenChannels: []string{"123", "456"},
			},
		},
	}
}

func TestIsPlaceholderToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"your_bot_token_here", true},
		{"YOUR_BOT_TOKEN_HERE", true},
		{"changeme", true},
		{"  changeme  ", true},
		{"replace_me", true},
		{"xxx", true},
		{"MTA0.real.token", false},
		{"xxxy", false},
	}

	for _, tt := range tests {
		if got := config.IsPlaceholderToken(tt.token); got != tt.want {
			t.Errorf("IsPlaceholderToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no bots", func(c *config.Config) { c.Bots = nil }},
		{"placeholder token", func(c *config.Config) { c.Bots[0].Token = "your_bot_token_here" }},
		{"empty token", func(c *config.Config) { c.Bots[0].Token = "" }},
		{"missing model", func(c *config.Config) { c.Bots[0].Model = "" }},
		{"missing personality", func(c *config.Config) { c.Bots[0].Personality = "" }},
		{"bad log level", func(c *config.Config) { c.Log.Level = "verbose" }},
		{"bad backend", func(c *config.Config) { c.API.Backend = "llama" }},
		{"zero timeout", func(c *config.Config) { c.API.Timeout = 0 }},
		{"reply limit too large", func(c *config.Config) { c.Routing.MaxReplyLength = 5000 }},
		{"delay max below min", func(c *config.Config) {
			c.Retry.DelayMin = time.Minute
			c.Retry.DelayMax = time.Second
		}},
		{"duplicate bot names", func(c *config.Config) {
			c.Bots = append(c.Bots, c.Bots[0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			if !errors.Is(err, config.ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
log:
  level: debug
api:
  timeout: 30s
bots:
  - name: deepbot
    token: MTA0.real.token
    model: deepseek-reasoning
    personality: "Dry and curious."
    open_channels: ["123456789"]
  - name: mistralbot
    token: MTA1.other.token
    model: mistral
    personality: "Cheerful."
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// File values win over defaults.
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("api timeout = %v, want 30s", cfg.API.Timeout)
	}

	// Untouched keys keep their defaults.
	if cfg.Log.Format != config.DefaultLogFormat {
		t.Errorf("log format = %q, want default %q", cfg.Log.Format, config.DefaultLogFormat)
	}
	if cfg.API.BaseURL != config.DefaultAPIBaseURL {
		t.Errorf("base url = %q, want default", cfg.API.BaseURL)
	}
	if cfg.Routing.HistoryLimit != config.DefaultHistoryLimit {
		t.Errorf("history limit = %d, want default %d", cfg.Routing.HistoryLimit, config.DefaultHistoryLimit)
	}
	if cfg.Retry.MaxAttempts != config.DefaultRetryMaxAttempts {
		t.Errorf("retry cap = %d, want default %d", cfg.Retry.MaxAttempts, config.DefaultRetryMaxAttempts)
	}

	if len(cfg.Bots) != 2 {
		t.Fatalf("expected 2 bots, got %d", len(cfg.Bots))
	}
	if !cfg.Bots[0].IsOpenChannel("123456789") {
		t.Error("configured open channel not recognized")
	}
	if cfg.Bots[1].IsOpenChannel("123456789") {
		t.Error("open channel leaked across bot configs")
	}
}

func TestLoadPlaceholderTokenRejected(t *testing.T) {
	t.Parallel()

	yaml := `
bots:
  - name: deepbot
    token: your_bot_token_here
    model: deepseek-reasoning
    personality: "Dry."
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := config.Load(path)
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadMissingFileWithoutBots(t *testing.T) {
	t.Parallel()

	// The file may be absent, but then validation must still demand bots.
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	// Absence is tolerated, so the failure must come from validation, not
	// from reading the file.
	if strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("missing file treated as a read failure: %v", err)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bots: [:::"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := config.Load(path)
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
