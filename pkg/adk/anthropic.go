package adk

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

type AnthropicProvider struct {
	APIKey string
	Model  string

	baseURL string
	opts    Options
	client  *http.Client
}

func NewAnthropicProvider(apiKey, model string, opts Options) *AnthropicProvider {
	if model == "" {
		model = "claude-haiku-4-5"
	}
	opts = opts.withDefaults()
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = anthropicBaseURL
	}
	return &AnthropicProvider{APIKey: apiKey, Model: model, baseURL: base, opts: opts, client: newHTTPClient(opts.Timeout)}
}

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]string, error) {
	// Static list; model discovery is not needed for rewrites.
	return []string{
		"claude-sonnet-4-5",
		"claude-opus-4-5",
		"claude-haiku-4-5",
	}, nil
}

// Generate calls the messages endpoint.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt, system, model string) (string, error) {
	if model == "" {
		model = p.Model
	}
	body := map[string]any{
		"model":       model,
		"max_tokens":  p.opts.MaxTokens,
		"temperature": p.opts.Temperature,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
	}
	if system != "" {
		body["system"] = system
	}
	headers := map[string]string{
		"x-api-key":         p.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := doJSON(ctx, p.client, "Anthropic", http.MethodPost, p.baseURL+"/messages", headers, body, &result); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text content in response")
	}
	return sb.String(), nil
}
