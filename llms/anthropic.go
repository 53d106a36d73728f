package llms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"llama-bot/types"
)

// AnthropicBackend implements types.LLM using Anthropic's Claude
type AnthropicBackend struct {
	client        *anthropic.Client
	model         string
	maxInputChars int
}

func NewAnthropicBackend(cfg Config) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicBackend{
		client:        &client,
		model:         model,
		maxInputChars: cfg.MaxInputChars,
	}, nil
}

func (a *AnthropicBackend) Model() string {
	return a.model
}

func (a *AnthropicBackend) Generate(ctx context.Context, conv types.Conversation, opts types.GenerationOptions) (string, error) {
	conv = Truncate(conv, a.maxInputChars)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(opts.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: conv.System.Content},
		},
		Messages: a.convertTurns(conv.Turns),
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.TopP > 0 && opts.TopP < 1 {
		params.TopP = anthropic.Float(opts.TopP)
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", &types.GenerationError{Err: fmt.Errorf("anthropic API error: %w", err)}
	}

	slog.DebugContext(ctx, "anthropic generation completed",
		"model", a.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	var result strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.WriteString(block.Text)
		}
	}

	return checkReply(result.String())
}

func (a *AnthropicBackend) convertTurns(turns []types.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == types.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}
