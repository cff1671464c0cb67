package genapi

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"hivebot/internal/config"
)

// GeminiClient implements the generation port against the Gemini API for
// deployments without an OpenAI-compatible endpoint.
type GeminiClient struct {
	client *genai.Client
	log    *slog.Logger
}

// NewGeminiClient creates a Gemini-backed client. The configured API token
// is required for this backend.
func NewGeminiClient(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (*GeminiClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gemini backend requires api.token")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Token,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client: gc,
		log:    log.With("component", "gemini_client"),
	}, nil
}

// Generate maps the role-tagged context onto Gemini content and returns the
// response text. A leading system message becomes the system instruction.
func (c *GeminiClient) Generate(ctx context.Context, modelID string, msgs []Message) (string, error) {
	cfg := &genai.GenerateContentConfig{}

	var contents []*genai.Content
	for i, m := range msgs {
		if i == 0 && m.Role == RoleSystem {
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
			continue
		}

		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	c.log.DebugContext(ctx, "Sending generation request", "model", modelID, "contents", len(contents))

	resp, err := c.client.Models.GenerateContent(ctx, modelID, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("gemini request blocked: %v", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned empty content")
	}

	return resp.Text(), nil
}
