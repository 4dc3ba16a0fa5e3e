// Package router is the experimental smart-router path: requests are
// steered to the cheapest configured provider adapter, and every
// successful call records its cost against the agent's budget.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Per-call deadline for provider adapters.
const adapterTimeout = 10 * time.Second

// Response is a normalized adapter result.
type Response struct {
	Output    string `json:"output"`
	TokensIn  int64  `json:"tokens_in"`
	TokensOut int64  `json:"tokens_out"`
	LatencyMs int64  `json:"latency_ms"`
}

// Adapter invokes one AI provider's completion API.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, prompt string) (Response, error)
}

// OpenAIAdapter calls the chat completions API.
type OpenAIAdapter struct {
	apiKey string
	model  string
	client *http.Client
}

// NewOpenAIAdapter creates an OpenAI adapter
func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{
		apiKey: apiKey,
		model:  "gpt-4o-mini",
		client: &http.Client{Timeout: adapterTimeout},
	}
}

// Name implements Adapter.
func (a *OpenAIAdapter) Name() string { return "openai" }

// Invoke implements Adapter.
func (a *OpenAIAdapter) Invoke(ctx context.Context, prompt string) (Response, error) {
	start := time.Now()

	body := map[string]interface{}{
		"model":    a.model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}

	if err := postJSON(ctx, a.client, "https://api.openai.com/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + a.apiKey}, body, &parsed); err != nil {
		return Response{}, fmt.Errorf("openai call failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("openai returned no choices")
	}

	return Response{
		Output:    parsed.Choices[0].Message.Content,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// AnthropicAdapter calls the messages API.
type AnthropicAdapter struct {
	apiKey string
	model  string
	client *http.Client
}

// NewAnthropicAdapter creates an Anthropic adapter
func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{
		apiKey: apiKey,
		model:  "claude-3-5-haiku-latest",
		client: &http.Client{Timeout: adapterTimeout},
	}
}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Invoke implements Adapter.
func (a *AnthropicAdapter) Invoke(ctx context.Context, prompt string) (Response, error) {
	start := time.Now()

	body := map[string]interface{}{
		"model":      a.model,
		"max_tokens": 1024,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := postJSON(ctx, a.client, "https://api.anthropic.com/v1/messages",
		map[string]string{
			"x-api-key":         a.apiKey,
			"anthropic-version": "2023-06-01",
		}, body, &parsed); err != nil {
		return Response{}, fmt.Errorf("anthropic call failed: %w", err)
	}
	if len(parsed.Content) == 0 {
		return Response{}, fmt.Errorf("anthropic returned no content")
	}

	return Response{
		Output:    parsed.Content[0].Text,
		TokensIn:  parsed.Usage.InputTokens,
		TokensOut: parsed.Usage.OutputTokens,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, adapterTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
