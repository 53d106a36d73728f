package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"llama-bot/conversation"
	"llama-bot/guard"
	"llama-bot/logger"
	"llama-bot/mention"
	"llama-bot/metrics"
	"llama-bot/types"
)

// State of the poll loop
type State int32

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	if s == StateScanning {
		return "scanning"
	}
	return "idle"
}

// AgentConfig is fixed for the lifetime of the agent
type AgentConfig struct {
	Interval       time.Duration
	RequestTimeout time.Duration // 0 leaves calls unbounded
	Generation     types.GenerationOptions
}

// CycleReport summarizes one pass over the category
type CycleReport struct {
	Scanned int
	Replied int
	Skipped int
	Failed  int
}

// BotAgent scans the category and answers threads that owe a reply. Threads
// are processed one at a time, in listing order.
type BotAgent struct {
	forum     types.Forum
	llm       types.LLM
	locker    guard.Locker
	publisher *Publisher
	cfg       AgentConfig

	state     atomic.Int32
	lastCycle atomic.Int64 // unix nanos of the last completed cycle
}

// NewBotAgent creates an agent. A nil locker falls back to an in-process one.
func NewBotAgent(forum types.Forum, llm types.LLM, locker guard.Locker, cfg AgentConfig) *BotAgent {
	if locker == nil {
		locker = guard.NewMemory()
	}
	return &BotAgent{
		forum:     forum,
		llm:       llm,
		locker:    locker,
		publisher: NewPublisher(forum),
		cfg:       cfg,
	}
}

func (a *BotAgent) State() State {
	return State(a.state.Load())
}

// LastCycle returns when the last cycle finished, zero if none has.
func (a *BotAgent) LastCycle() time.Time {
	n := a.lastCycle.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run scans immediately, then waits one interval after each cycle, until ctx
// is done.
func (a *BotAgent) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "llamabot.poller"})
	slog.InfoContext(ctx, "poller started", "interval", a.cfg.Interval, "model", a.llm.Model())

	timer := time.NewTimer(a.cfg.Interval)
	defer timer.Stop()

	for {
		a.RunCycle(ctx)
		timer.Reset(a.cfg.Interval)

		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "poller stopping")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle processes every thread of the current listing. Per-thread failures
// are logged and counted; they never stop the cycle.
func (a *BotAgent) RunCycle(ctx context.Context) CycleReport {
	a.state.Store(int32(StateScanning))
	defer func() {
		a.lastCycle.Store(time.Now().UnixNano())
		a.state.Store(int32(StateIdle))
	}()

	ctx = logger.WithLogFields(ctx, logger.LogFields{CycleID: logger.Ptr(uuid.NewString())})
	sc := logger.StartSpan(ctx, "poll.cycle")
	defer sc.End()
	ctx = sc.Context()

	metrics.PollCycles.Inc()
	start := time.Now()
	var report CycleReport

	listCtx, cancel := a.callContext(ctx)
	threads, err := a.forum.ListThreads(listCtx)
	cancel()
	if err != nil {
		sc.RecordError(err)
		metrics.ThreadErrors.WithLabelValues("list").Inc()
		slog.WarnContext(ctx, "failed to list threads", "error", err)
		return report
	}

	slog.InfoContext(ctx, "checking forum", "threads", len(threads))

	for _, summary := range threads {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++
		metrics.ThreadsScanned.Inc()

		outcome, err := a.processThreadSafe(ctx, summary)
		switch {
		case err != nil:
			report.Failed++
			kind := errorKind(err)
			metrics.ThreadErrors.WithLabelValues(kind).Inc()
			slog.WarnContext(ctx, "thread processing failed",
				"thread_id", summary.ID,
				"kind", kind,
				"error", err)
		case outcome == outcomeReplied:
			report.Replied++
		case outcome == outcomeSkipped:
			report.Skipped++
		}
	}

	slog.InfoContext(ctx, "poll cycle completed",
		"scanned", report.Scanned,
		"replied", report.Replied,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration_ms", time.Since(start).Milliseconds())

	return report
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeReplied
	outcomeSkipped
)

func (a *BotAgent) processThreadSafe(ctx context.Context, summary types.ThreadSummary) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.processThread(ctx, summary)
}

func (a *BotAgent) processThread(ctx context.Context, summary types.ThreadSummary) (outcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ThreadID: logger.Ptr(string(summary.ID))})
	sc := logger.StartSpan(ctx, "poll.thread")
	defer sc.End()
	ctx = sc.Context()

	// Held from fetch to publish so a concurrent holder cannot decide on the
	// same pre-reply snapshot.
	release, ok, err := a.locker.TryLock(ctx, summary.ID)
	if err != nil {
		sc.RecordError(err)
		return outcomeNone, &lockError{err: err}
	}
	if !ok {
		metrics.ThreadsSkipped.WithLabelValues("locked").Inc()
		slog.InfoContext(ctx, "thread locked by another responder, skipping")
		return outcomeSkipped, nil
	}
	defer release()

	fetchCtx, cancel := a.callContext(ctx)
	thread, err := a.forum.GetThread(fetchCtx, summary.ID)
	cancel()
	if err != nil {
		sc.RecordError(err)
		return outcomeNone, err
	}

	if !mention.IsReplyOwed(thread.Posts) {
		slog.DebugContext(ctx, "no reply owed", "posts", len(thread.Posts))
		return outcomeNone, nil
	}

	slog.InfoContext(ctx, "mention pending, generating reply",
		"title", summary.Title,
		"posts", len(thread.Posts))

	conv := conversation.Assemble(summary.Title, thread.Posts)
	reply, err := a.generate(ctx, conv)
	if err != nil {
		sc.RecordError(err)
		return outcomeNone, err
	}

	pubCtx, cancel := a.callContext(ctx)
	err = a.publisher.Publish(pubCtx, summary.ID, reply)
	cancel()
	if err != nil {
		sc.RecordError(err)
		return outcomeNone, err
	}

	return outcomeReplied, nil
}

func (a *BotAgent) generate(ctx context.Context, conv types.Conversation) (string, error) {
	genCtx, cancel := a.callContext(ctx)
	defer cancel()

	start := time.Now()
	reply, err := a.llm.Generate(genCtx, conv, a.cfg.Generation)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var genErr *types.GenerationError
		if !errors.As(err, &genErr) {
			err = &types.GenerationError{Err: err}
		}
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", &types.GenerationError{Err: fmt.Errorf("empty response")}
	}

	slog.DebugContext(ctx, "reply generated",
		"duration_ms", time.Since(start).Milliseconds(),
		"length", len(reply))
	return reply, nil
}

func (a *BotAgent) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

type lockError struct {
	err error
}

func (e *lockError) Error() string { return e.err.Error() }
func (e *lockError) Unwrap() error { return e.err }

func errorKind(err error) string {
	var (
		fetchErr *types.FetchError
		genErr   *types.GenerationError
		pubErr   *types.PublishError
		lockErr  *lockError
	)
	switch {
	case errors.As(err, &lockErr):
		return "lock"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &genErr):
		return "generation"
	case errors.As(err, &pubErr):
		return "publish"
	default:
		return "other"
	}
}
