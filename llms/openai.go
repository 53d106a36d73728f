package llms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"llama-bot/types"
)

// OpenAIBackend implements types.LLM with the chat completions API. With a
// BaseURL it talks to any OpenAI-compatible server.
type OpenAIBackend struct {
	client        openai.Client
	model         string
	maxInputChars int
}

func NewOpenAIBackend(cfg Config) (*OpenAIBackend, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
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
		model = "meta-llama/Meta-Llama-3-8B-Instruct"
	}

	return &OpenAIBackend{
		client:        openai.NewClient(opts...),
		model:         model,
		maxInputChars: cfg.MaxInputChars,
	}, nil
}

func (o *OpenAIBackend) Model() string {
	return o.model
}

func (o *OpenAIBackend) Generate(ctx context.Context, conv types.Conversation, opts types.GenerationOptions) (string, error) {
	conv = Truncate(conv, o.maxInputChars)

	params := openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: o.convertMessages(conv.Messages()),
		// max_tokens rather than max_completion_tokens: self-hosted servers only know the former
		MaxTokens:   openai.Int(int64(opts.MaxTokens)),
		Temperature: openai.Float(opts.Temperature),
		TopP:        openai.Float(opts.TopP),
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &types.GenerationError{Err: fmt.Errorf("openai chat completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &types.GenerationError{Err: fmt.Errorf("no choices in response")}
	}

	slog.DebugContext(ctx, "openai generation completed",
		"model", o.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason)

	return checkReply(resp.Choices[0].Message.Content)
}

func (o *OpenAIBackend) convertMessages(msgs []types.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case types.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}
