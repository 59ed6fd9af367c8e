package adk

import (
	"context"
	"net/http"
	"strings"
)

const ollamaBaseURL = "http://127.0.0.1:11434"

// OllamaProvider talks to a local Ollama daemon.
type OllamaProvider struct {
	Model string

	baseURL string
	opts    Options
	client  *http.Client
}

func NewOllamaProvider(model string, opts Options) *OllamaProvider {
	if model == "" {
		model = "qwen2.5:7b"
	}
	opts = opts.withDefaults()
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = ollamaBaseURL
	}
	return &OllamaProvider{Model: model, baseURL: base, opts: opts, client: newHTTPClient(opts.Timeout)}
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := doJSON(ctx, p.client, "Ollama", http.MethodGet, p.baseURL+"/api/tags", nil, nil, &result); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Generate calls /api/generate without streaming.
func (p *OllamaProvider) Generate(ctx context.Context, prompt, system, model string) (string, error) {
	if model == "" {
		model = p.Model
	}
	body := map[string]any{
		"model":  model,
		"prompt": prompt,
		"system": system,
		"stream": false,
		"options": map[string]any{
			"temperature":    p.opts.Temperature,
			"top_p":          p.opts.TopP,
			"repeat_penalty": 1.1,
			"num_ctx":        4096,
			"num_predict":    p.opts.MaxTokens,
		},
	}
	var result struct {
		Response string `json:"response"`
	}
	if err := doJSON(ctx, p.client, "Ollama", http.MethodPost, p.baseURL+"/api/generate", nil, body, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}
