// Package llm is the narrow client for the external inference backend. The
// backend speaks the OpenAI-compatible chat completions shape; any transport
// or protocol failure is surfaced as an inference_unavailable error so
// callers can treat it as retryable.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ANADelta/AlphaClassBot-App2/internal/apperr"
)

// Generator is the interface the chat layer consumes; tests substitute a
// fake.
type Generator interface {
	Generate(ctx context.Context, system, message string) (string, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Generate(ctx context.Context, system, message string) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: message},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInferenceUnavailable, "inference_unavailable", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInferenceUnavailable, "inference_unavailable", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInferenceUnavailable, "inference_unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.Wrap(apperr.KindInferenceUnavailable, "inference_unavailable",
			fmt.Errorf("inference backend returned status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperr.Wrap(apperr.KindInferenceUnavailable, "inference_unavailable", err)
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.New(apperr.KindInferenceUnavailable, "inference_unavailable")
	}
	return parsed.Choices[0].Message.Content, nil
}
