package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// translationInstruction is the fixed user message sent alongside the system
// prompt in translation mode; the task itself lives in the system prompt.
const translationInstruction = "Generate SQL query for this request."

type ClientConfig struct {
	BaseURL             string
	APIKey              string
	Model               string
	Temperature         float64
	HumanizeTemperature float64
	MaxTokens           int
	Timeout             time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint. It never
// retries; transport faults surface as ErrModelUnavailable for an external
// resilience layer to handle.
type Client struct {
	baseURL             string
	apiKey              string
	model               string
	temperature         float64
	humanizeTemperature float64
	maxTokens           int
	client              *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:             strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:              strings.TrimSpace(cfg.APIKey),
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		humanizeTemperature: cfg.HumanizeTemperature,
		maxTokens:           cfg.MaxTokens,
		client:              &http.Client{Timeout: timeout},
	}, nil
}

// Translate sends the built translation prompt as a system message at the
// near-deterministic translation temperature and returns the assistant text.
func (c *Client) Translate(ctx context.Context, systemPrompt string) (string, error) {
	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: translationInstruction},
	}, c.temperature)
}

// Humanize sends the filled narration prompt as a single user message at the
// higher humanization temperature.
func (c *Client) Humanize(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, []chatMessage{
		{Role: "user", Content: prompt},
	}, c.humanizeTemperature)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func (c *Client) complete(ctx context.Context, messages []chatMessage, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response body: %v", ErrModelUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}
