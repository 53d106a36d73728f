// Package llms provides the text generation backends used to write replies.
package llms

import (
	"fmt"
	"strings"

	"llama-bot/types"
)

// Provider constants for backend selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config holds LLM backend configuration.
type Config struct {
	Provider      string // "openai", "anthropic" or "gemini"
	APIKey        string
	BaseURL       string // Optional: OpenAI-compatible endpoint, e.g. a local Llama 3 server
	Model         string
	MaxInputChars int // 0 disables input truncation
}

// DefaultOptions mirrors the sampling settings the bot has always used.
func DefaultOptions() types.GenerationOptions {
	return types.GenerationOptions{
		MaxTokens:   256,
		Temperature: 0.6,
		TopP:        0.9,
	}
}

// New creates the backend selected by cfg.Provider. Defaults to OpenAI.
func New(cfg Config) (types.LLM, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIBackend(cfg)
	case ProviderAnthropic:
		return NewAnthropicBackend(cfg)
	case ProviderGemini:
		return NewGeminiBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// Truncate drops the oldest turns until the conversation fits in maxChars.
// The system message and the newest turn are always kept. maxChars <= 0
// returns conv unchanged.
func Truncate(conv types.Conversation, maxChars int) types.Conversation {
	if maxChars <= 0 || len(conv.Turns) == 0 {
		return conv
	}

	total := len(conv.System.Content)
	for _, t := range conv.Turns {
		total += len(t.Content)
	}

	start := 0
	for total > maxChars && start < len(conv.Turns)-1 {
		total -= len(conv.Turns[start].Content)
		start++
	}
	if start == 0 {
		return conv
	}

	turns := make([]types.Message, len(conv.Turns)-start)
	copy(turns, conv.Turns[start:])
	return types.Conversation{System: conv.System, Turns: turns}
}

func checkReply(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &types.GenerationError{Err: fmt.Errorf("empty response")}
	}
	return text, nil
}
