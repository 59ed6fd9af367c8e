package adk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Generator produces text from a prompt and a system instruction. An empty
// model selects the provider's configured default.
type Generator interface {
	Generate(ctx context.Context, prompt, system, model string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Options tune generation for every provider that supports them.
type Options struct {
	BaseURL     string
	Temperature float32
	TopP        float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultOptions mirror the conservative sampling used for rewrites.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.2,
		TopP:        0.9,
		MaxTokens:   256,
		Timeout:     20 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Temperature == 0 {
		o.Temperature = d.Temperature
	}
	if o.TopP == 0 {
		o.TopP = d.TopP
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	return o
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Status   string
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status: %s: %s", e.Provider, e.Status, e.Body)
}

// doJSON sends body (if any) as JSON and decodes a 2xx response into out.
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", provider, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
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
		return &StatusError{Provider: provider, Status: resp.Status, Body: string(bytes.TrimSpace(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}
