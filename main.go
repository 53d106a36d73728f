package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"llama-bot/config"
	"llama-bot/conversation"
	"llama-bot/guard"
	"llama-bot/llms"
	"llama-bot/logger"
	"llama-bot/mattermost"
	"llama-bot/mention"
	"llama-bot/nodebb"
	"llama-bot/telemetry"
	"llama-bot/types"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("llama-bot failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "llama-bot",
		Short:         "answer @llama mentions on a forum category",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoller(cmd.Context())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "poll the category until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPoller(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "run a single poll cycle and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnce(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "inspect <thread-id>",
			Short: "show whether a thread is owed a reply and the conversation that would be sent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return inspectThread(cmd, types.ThreadID(args[0]))
			},
		},
	)

	return rootCmd
}

func setup(ctx context.Context) (config.Config, *telemetry.Telemetry, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}

	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	logger.Setup(cfg)

	return cfg, tel, nil
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}
}

func newForum(cfg config.Config) types.Forum {
	if cfg.Forum.Provider == config.ForumMattermost {
		return mattermost.New(cfg.Forum.URL, cfg.Forum.APIKey, cfg.Forum.CategoryID, cfg.RequestTimeout)
	}
	return nodebb.NewClient(cfg.Forum.URL, cfg.Forum.APIKey, cfg.Forum.CategoryID, &http.Client{})
}

func newLLM(cfg config.Config) (types.LLM, error) {
	return llms.New(llms.Config{
		Provider:      cfg.LLM.Provider,
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		MaxInputChars: cfg.LLM.MaxInputChars,
	})
}

// newLocker returns a Redis-backed locker when REDIS_URL is set. The returned
// close func is never nil.
func newLocker(ctx context.Context, cfg config.Config) (guard.Locker, func(), error) {
	if !cfg.Redis.Enabled() {
		return guard.NewMemory(), func() {}, nil
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected, reply locks are shared", "ttl", cfg.Redis.LockTTL)

	return guard.NewRedis(client, cfg.Redis.LockTTL), func() { _ = client.Close() }, nil
}

func newAgent(ctx context.Context, cfg config.Config) (*BotAgent, func(), error) {
	llm, err := newLLM(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM backend: %w", err)
	}

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	agent := NewBotAgent(newForum(cfg), llm, locker, AgentConfig{
		Interval:       cfg.CheckInterval,
		RequestTimeout: cfg.RequestTimeout,
		Generation: types.GenerationOptions{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
		},
	})
	return agent, closeLocker, nil
}

func runPoller(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, tel, err := setup(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)

	slog.InfoContext(ctx, "starting llama bot",
		"env", cfg.Env,
		"forum_provider", cfg.Forum.Provider,
		"forum_url", cfg.Forum.URL,
		"category_id", cfg.Forum.CategoryID,
		"llm_provider", cfg.LLM.Provider,
		"check_interval", cfg.CheckInterval)

	agent, closeLocker, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newStatusMux(agent),
	}
	go func() {
		slog.InfoContext(ctx, "status server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "status server failed", "error", err)
		}
	}()

	err = agent.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if errors.Is(err, context.Canceled) {
		slog.Info("llama bot stopped")
		return nil
	}
	return err
}

func newStatusMux(agent *BotAgent) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		last := "never"
		if t := agent.LastCycle(); !t.IsZero() {
			last = t.Format(time.RFC3339)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "OK state=%s last_cycle=%s\n", agent.State(), last)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func runOnce(ctx context.Context) error {
	cfg, tel, err := setup(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)

	agent, closeLocker, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	report := agent.RunCycle(ctx)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d threads failed", report.Failed, report.Scanned)
	}
	return nil
}

// inspectThread prints the owed state and assembled conversation of one
// thread. It never generates or publishes.
func inspectThread(cmd *cobra.Command, id types.ThreadID) error {
	ctx := cmd.Context()
	cfg, tel, err := setup(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)

	thread, err := newForum(cfg).GetThread(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "thread %s: %q\n", thread.ID, thread.Title)
	fmt.Fprintf(out, "posts: %d\n", len(thread.Posts))
	fmt.Fprintf(out, "reply owed: %v\n\n", mention.IsReplyOwed(thread.Posts))

	for _, msg := range conversation.Assemble(thread.Title, thread.Posts).Messages() {
		fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Content)
	}
	return nil
}
