// Package genapi implements the outbound text-generation clients and the
// per-model request gate applied in front of them.
package genapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hivebot/internal/config"
)

// Chat roles understood by the generation backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrTimeout marks a generation call that exceeded its hard deadline. It is
// the only non-fatal failure surfaced as an error; other backend failures
// degrade to an empty result after a diagnostic log.
var ErrTimeout = errors.New("generation request timed out")

// Message is one entry of the conversational context sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client generates a completion for the given model from an ordered context
// window. The first message may carry the system prompt.
type Client interface {
	Generate(ctx context.Context, modelID string, msgs []Message) (string, error)
}

// New builds the configured backend client wrapped with the per-model gate,
// timeout enforcement, and failure cool-down.
func New(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (*Throttled, error) {
	var backend Client
	var err error

	switch cfg.Backend {
	case "gemini":
		backend, err = NewGeminiClient(ctx, cfg, log)
	case "openai":
		backend = NewOpenAIClient(cfg, log)
	default:
		err = fmt.Errorf("unknown generation backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewThrottled(backend, cfg.Timeout, cfg.Cooldown, log), nil
}
