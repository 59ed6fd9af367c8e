package adk

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownProvider is returned for provider names NewGenerator does not know.
var ErrUnknownProvider = errors.New("unknown provider")

// Providers lists the accepted provider names.
var Providers = []string{"ollama", "gemini", "openai", "anthropic"}

func NewGenerator(ctx context.Context, providerName, apiKey, modelName string, opts Options) (Generator, error) {
	switch providerName {
	case "ollama", "":
		return NewOllamaProvider(modelName, opts), nil
	case "gemini":
		return NewGeminiProvider(ctx, apiKey, modelName, opts)
	case "openai":
		return NewOpenAIProvider(apiKey, modelName, opts), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, modelName, opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
}
