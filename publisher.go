package main

import (
	"context"
	"log/slog"

	"llama-bot/logger"
	"llama-bot/metrics"
	"llama-bot/types"
)

// Publisher posts generated replies. It never retries: a failed thread is
// simply evaluated again on the next cycle, and a successful reply adds an
// assistant post that clears the thread's owed state.
type Publisher struct {
	forum types.Forum
}

func NewPublisher(forum types.Forum) *Publisher {
	return &Publisher{forum: forum}
}

// Publish issues a single write for the thread. Failures are *types.PublishError.
func (p *Publisher) Publish(ctx context.Context, id types.ThreadID, text string) error {
	if err := p.forum.Reply(ctx, id, text); err != nil {
		return err
	}

	metrics.RepliesPublished.Inc()
	slog.InfoContext(ctx, "reply posted",
		"length", len(text),
		"preview", logger.Truncate(text, 100))
	return nil
}
