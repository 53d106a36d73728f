package llms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"llama-bot/types"
)

// GeminiBackend implements types.LLM using Google GenAI Gemini.
type GeminiBackend struct {
	client        *genai.Client
	model         string
	maxInputChars int
}

func NewGeminiBackend(cfg Config) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiBackend{
		client:        client,
		model:         model,
		maxInputChars: cfg.MaxInputChars,
	}, nil
}

func (g *GeminiBackend) Model() string {
	return g.model
}

func (g *GeminiBackend) Generate(ctx context.Context, conv types.Conversation, opts types.GenerationOptions) (string, error) {
	conv = Truncate(conv, g.maxInputChars)

	contents := make([]*genai.Content, 0, len(conv.Turns))
	for _, t := range conv.Turns {
		role := genai.RoleUser
		if t.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, genai.Role(role)))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(conv.System.Content, genai.RoleUser),
		MaxOutputTokens:   int32(opts.MaxTokens),
		Temperature:       genai.Ptr(float32(opts.Temperature)),
		TopP:              genai.Ptr(float32(opts.TopP)),
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", &types.GenerationError{Err: fmt.Errorf("gemini generate failed: %w", err)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &types.GenerationError{Err: fmt.Errorf("no response from gemini")}
	}

	slog.DebugContext(ctx, "gemini generation completed",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"finish_reason", resp.Candidates[0].FinishReason)

	var result string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			result += part.Text
		}
	}

	return checkReply(result)
}
