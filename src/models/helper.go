package models

import (
	"context"
	"fmt"
	"strings"
)

// DefaultModel is used when no model name is configured for a provider.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "o4-mini-2025-04-16"
	case "gemini", "google":
		return "gemini-1.5-flash"
	case "ollama":
		return "llama3.1"
	case "anthropic", "claude":
		return "claude-3-5-sonnet-latest"
	default:
		return ""
	}
}

// NewLLMProvider returns a concrete Agent.
func NewLLMProvider(ctx context.Context, provider string, model string, promptPrefix string) (Agent, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if strings.TrimSpace(model) == "" {
		model = DefaultModel(provider)
	}
	switch provider {
	case "openai":
		return NewOpenAILLM(model, promptPrefix), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, model, promptPrefix)
	case "ollama":
		return NewOllamaLLM(model, promptPrefix)
	case "anthropic", "claude":
		return NewAnthropicLLM(model, promptPrefix), nil
	case "dummy":
		return NewDummyLLM(promptPrefix), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
