package adk

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const openAIBaseURL = "https://api.openai.com/v1"

type OpenAIProvider struct {
	APIKey string
	Model  string

	baseURL string
	opts    Options
	client  *http.Client
}

func NewOpenAIProvider(apiKey, model string, opts Options) *OpenAIProvider {
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts = opts.withDefaults()
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = openAIBaseURL
	}
	return &OpenAIProvider{APIKey: apiKey, Model: model, baseURL: base, opts: opts, client: newHTTPClient(opts.Timeout)}
}

func (p *OpenAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.APIKey}
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := doJSON(ctx, p.client, "OpenAI", http.MethodGet, p.baseURL+"/models", p.headers(), nil, &result); err != nil {
		return nil, err
	}

	var models []string
	for _, m := range result.Data {
		if strings.HasPrefix(m.ID, "gpt") || strings.HasPrefix(m.ID, "o") {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate calls the chat completions endpoint.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt, system, model string) (string, error) {
	if model == "" {
		model = p.Model
	}
	var msgs []openAIMessage
	if system != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, openAIMessage{Role: "user", Content: prompt})

	body := map[string]any{
		"model":       model,
		"messages":    msgs,
		"temperature": p.opts.Temperature,
		"top_p":       p.opts.TopP,
		"max_tokens":  p.opts.MaxTokens,
	}
	var result struct {
		Choices []struct {
			Message openAIMessage `json:"message"`
		} `json:"choices"`
	}
	if err := doJSON(ctx, p.client, "OpenAI", http.MethodPost, p.baseURL+"/chat/completions", p.headers(), body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return result.Choices[0].Message.Content, nil
}
