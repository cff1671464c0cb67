package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"hivebot/internal/config"
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	baseURL    string
	token      string
	referrer   string
	httpClient *http.Client
	log        *slog.Logger
}

// NewOpenAIClient creates a client for the configured endpoint. Timeout and
// throttling are applied by the Throttled wrapper, not here.
func NewOpenAIClient(cfg config.APIConfig, log *slog.Logger) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		referrer:   cfg.Referrer,
		httpClient: http.DefaultClient,
		log:        log.With("component", "openai_client"),
	}
}

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate issues a single chat-completion request and returns the first
// choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, modelID string, msgs []Message) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{Model: modelID, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat completion request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.referrer != "" {
		req.Header.Set("Referer", c.referrer)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.DebugContext(ctx, "Sending generation request", "model", modelID, "messages", len(msgs))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, string(preview))
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// ListModels fetches the backend's model catalog. Diagnostic glue only; the
// routing pipeline never depends on it.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("model listing returned status %d: %s", resp.StatusCode, string(preview))
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode model listing: %w", err)
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}
