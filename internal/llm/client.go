// Package llm is a client for OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

// Model is the classifier model boundary: a prompt in, response text out.
type Model interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Config holds configuration for the chat completion client.
type Config struct {
	Model        string
	APIKey       string
	BaseURL      string
	SystemPrompt string
	Temperature  float32
	Timeout      time.Duration
	MaxRetries   uint64
	RetryBase    time.Duration
}

// Client calls a chat completions endpoint.
type Client struct {
	client       *resty.Client
	model        string
	endpoint     string
	systemPrompt string
	temperature  float32
	maxRetries   uint64
	retryBase    time.Duration
}

// ErrRateLimited is returned when the model provider answers 429. It is not retried.
var ErrRateLimited = errors.New("model provider rate limited")

// NewClient creates a chat completion client.
// Parameters:
//   - cfg: model, credentials and endpoint.
//
// Returns:
//   - *Client: initialized client.
func NewClient(cfg Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}

	return &Client{
		client:       client,
		model:        cfg.Model,
		endpoint:     baseURL + "/chat/completions",
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxRetries:   cfg.MaxRetries,
		retryBase:    retryBase,
	}
}

// GetModel returns the model name being used.
func (c *Client) GetModel() string {
	return c.model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete implements Model. Network errors and 5xx responses are retried
// with Fibonacci backoff; 429 and other 4xx responses are not.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: c.systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}

	var content string
	b := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(c.retryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var resp chatResponse
		httpResp, err := c.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&resp).
			SetError(&resp).
			Post(c.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("request failed: %w", err))
		}

		switch status := httpResp.StatusCode(); {
		case status == http.StatusTooManyRequests:
			return ErrRateLimited
		case status >= 500:
			return retry.RetryableError(fmt.Errorf("API returned status %d", status))
		case status < 200 || status >= 300:
			if resp.Error != nil {
				return fmt.Errorf("API returned status %d: %s", status, resp.Error.Message)
			}
			return fmt.Errorf("API returned status %d", status)
		}

		if resp.Error != nil {
			return fmt.Errorf("API error: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return fmt.Errorf("empty response from model")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
